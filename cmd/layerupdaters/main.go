// layerupdaters inspects the layer kinds supported by the compiled-in device backends, and exercises their
// updaters on a small demo network.
//
// Usage:
//
//	layerupdaters -kinds
//	layerupdaters -backend="go:memory=64MiB,dtype=float16" -demo -steps=100 -batch=32
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/layerupdaters/backends"
	"github.com/gomlx/layerupdaters/backends/simgo"
	"github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "", fmt.Sprintf("Backend configuration, formatted as "+
		"\"<backend_name>:<backend_configuration>\". If empty, $%s is used, or the first registered backend.", backends.ConfigEnv))
	flagKinds = flag.Bool("kinds", false, "List the layer kinds with a registered updater schema.")
	flagDemo  = flag.Bool("demo", false, "Instantiate the updaters of a small demo network and run backward passes.")
	flagSteps = flag.Int("steps", 10, "Number of backward passes run by -demo.")
	flagBatch = flag.Int("batch", 16, "Number of entries per batch used by -demo.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if !*flagKinds && !*flagDemo {
		klog.Errorf("Nothing to do, select -kinds and/or -demo. See 'layerupdaters -help'.")
		os.Exit(1)
	}

	var backend backends.Backend
	if *flagBackend != "" {
		backend = must.M1(backends.NewWithConfig(*flagBackend))
	} else {
		backend = must.M1(backends.New())
	}
	defer backend.Finalize()
	simBackend, ok := backend.(*simgo.Backend)
	if !ok {
		klog.Errorf("Backend %q provides no updater schemas.", backend.Name())
		os.Exit(1)
	}
	reg := updaters.NewRegistry()
	must.M(simgo.RegisterSchemas(reg, simBackend))
	reg.Seal()

	fmt.Println(titleStyle.Render(backend.Description()))
	if *flagKinds {
		reportKinds(reg)
	}
	if *flagDemo {
		if err := runDemo(reg, simBackend, *flagSteps, *flagBatch); err != nil {
			klog.Errorf("Demo failed: %+v", err)
			os.Exit(1)
		}
	}
}
