package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/layerupdaters/pkg/engine"
	"github.com/gomlx/layerupdaters/pkg/layerkinds"
	"github.com/gomlx/layerupdaters/pkg/updaters"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == lgtable.HeaderRow {
				s = headerRowStyle
				return
			}
			switch {
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func reportKinds(reg *updaters.Registry) {
	fmt.Println(titleStyle.Render("Layer kinds"))
	table := newPlainTable(true).Headers("Kind", "Type ID", "Weights", "Schema")
	for _, id := range reg.IDs() {
		name := "?"
		weights := "no"
		if kind, found := layerkinds.Lookup(id); found {
			name = kind.Name
			if kind.HasWeights() {
				weights = "yes"
			}
		}
		table.Row(name, id.String(), weights, fmt.Sprintf("%T", reg.MustLookup(id)))
	}
	fmt.Println(table.Render())
}

func reportInstance(inst *engine.Instance) {
	fmt.Println(titleStyle.Render("Updaters"))
	table := newPlainTable(true).Headers("Layer", "Kind", "Input", "Output", "Device memory")
	for i := range inst.Len() {
		layer := inst.Layer(i)
		kind := layer.TypeID.String()
		if k, found := layerkinds.Lookup(layer.TypeID); found {
			kind = k.Name
		}
		table.Row(layer.Name, kind, layer.Input.String(), layer.Output.String(),
			humanize.IBytes(inst.Updater(i).MemoryBytes()))
	}
	table.Row("total", "", "", "", humanize.IBytes(inst.MemoryBytes()))
	fmt.Println(table.Render())
}
