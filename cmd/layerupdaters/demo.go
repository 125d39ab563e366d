package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/layerupdaters/backends"
	"github.com/gomlx/layerupdaters/backends/simgo"
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/gomlx/layerupdaters/pkg/engine"
	"github.com/gomlx/layerupdaters/pkg/layerkinds"
	"github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

var mk = layerconfig.Make

// demoNetwork is a small convolutional classifier for 1x12x12 inputs.
func demoNetwork() []engine.Layer {
	return []engine.Layer{
		{Name: "conv1", TypeID: layerid.Convolution, Input: mk(1, 12, 12), Output: mk(8, 10, 10)},
		{Name: "maxout1", TypeID: layerid.Maxout, Input: mk(8, 10, 10), Output: mk(4, 10, 10)},
		{Name: "pool1", TypeID: layerid.MaxSubsampling, Input: mk(4, 10, 10), Output: mk(4, 5, 5)},
		{Name: "conv2", TypeID: layerid.Convolution, Input: mk(4, 5, 5), Output: mk(6, 4, 4)},
		{Name: "relu2", TypeID: layerid.RectifiedLinear, Input: mk(6, 4, 4), Output: mk(6, 4, 4)},
		{Name: "pool2", TypeID: layerid.AverageSubsampling, Input: mk(6, 4, 4), Output: mk(6, 2, 2)},
		{Name: "tanh3", TypeID: layerid.HyperbolicTangent, Input: mk(6, 2, 2), Output: mk(6, 2, 2)},
		{Name: "conv3", TypeID: layerid.Convolution, Input: mk(6, 2, 2), Output: mk(10, 1, 1)},
		{Name: "softmax", TypeID: layerid.Softmax, Input: mk(10, 1, 1), Output: mk(10, 1, 1)},
	}
}

func randomBuffer(backend backends.Backend, length int) (backends.Buffer, error) {
	values := make([]float32, length)
	for ii := range values {
		values[ii] = rand.Float32()*2 - 1
	}
	return backend.BufferFromFlat(values)
}

// demoBatches allocates the buffers of every layer of the network for batches of entries.
// Consecutive layers share the buffers connecting them.
func demoBatches(backend backends.Backend, layers []engine.Layer, entries int) ([]*updaters.Batch, []backends.Buffer, error) {
	var all []backends.Buffer
	newBuffer := func(length int) (backends.Buffer, error) {
		buf, err := randomBuffer(backend, length)
		if err == nil {
			all = append(all, buf)
		}
		return buf, err
	}
	batches := make([]*updaters.Batch, len(layers))
	var prevOutput, prevOutputErrors backends.Buffer
	for i, layer := range layers {
		var err error
		batch := &updaters.Batch{EntryCount: entries}
		if i == 0 {
			if batch.Input, err = newBuffer(entries * layer.Input.NeuronCount()); err != nil {
				return nil, all, err
			}
		} else {
			batch.Input, batch.InputErrors = prevOutput, prevOutputErrors
		}
		if batch.Output, err = newBuffer(entries * layer.Output.NeuronCount()); err != nil {
			return nil, all, err
		}
		if batch.OutputErrors, err = newBuffer(entries * layer.Output.NeuronCount()); err != nil {
			return nil, all, err
		}
		if kind, found := layerkinds.Lookup(layer.TypeID); found {
			for _, shape := range kind.WeightShapes(layer.Input, layer.Output) {
				size := 1
				for _, dim := range shape {
					size *= dim
				}
				w, err := newBuffer(size)
				if err != nil {
					return nil, all, err
				}
				g, err := newBuffer(size)
				if err != nil {
					return nil, all, err
				}
				batch.Weights = append(batch.Weights, w)
				batch.Gradients = append(batch.Gradients, g)
			}
		}
		prevOutput, prevOutputErrors = batch.Output, batch.OutputErrors
		batches[i] = batch
	}
	return batches, all, nil
}

func runDemo(reg *updaters.Registry, backend *simgo.Backend, steps, entries int) error {
	layers := demoNetwork()
	plan, err := engine.Build(reg, layers)
	if err != nil {
		return err
	}
	inst, err := plan.Instantiate(engine.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() { _ = inst.Finalize() }()
	reportInstance(inst)

	batches, buffers, err := demoBatches(backend, layers, entries)
	defer func() {
		for _, buf := range buffers {
			_ = backend.BufferFinalize(buf)
		}
	}()
	if err != nil {
		return errors.WithMessage(err, "allocating demo batches")
	}

	bar := progressbar.Default(int64(steps), "backward passes")
	for range steps {
		if err := inst.Backward(batches); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Printf("Device memory in use: %s\n", humanize.IBytes(backend.MemoryInUse()))
	return nil
}
