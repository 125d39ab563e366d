// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a device (accelerator) backend needs to implement to hold
// the buffers and the device memory used by layer updaters.
//
// Backends register a constructor during package initialization (see Register), and users
// create one with New or NewWithConfig. Each backend package also provides the updater schemas
// for the layer kinds it can execute -- see for instance backends/simgo.RegisterSchemas.
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Backend is the API that needs to be implemented by a device backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the SimpleGo simulated device.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// DataInterface is the sub-interface that defines the API to transfer Buffer to/from the device.
	DataInterface

	// MemoryInterface is the sub-interface used to account for device memory.
	MemoryInterface

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// Call Register during initialization of a package. Registering the same name twice panics.
func Register(name string, constructor Constructor) {
	if _, found := registeredConstructors[name]; found {
		exceptions.Panicf("backends.Register(%q): backend already registered", name)
	}
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
	klog.V(1).Infof("registered device backend %q", name)
}

// List returns the sorted names of the registered backends.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnv is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific (e.g.: for "go", "memory=64MiB,dtype=float16").
const ConfigEnv = "LAYERUPDATERS_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment LAYERUPDATERS_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(ConfigEnv)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configurations string formated as
// "<backend_name>:<backend_configuration>".
//
// If "<backend_name>" is omitted the first registered backend is used.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(`no registered device backends -- maybe import the default ones with import _ "github.com/gomlx/layerupdaters/backends/default"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends are %q",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q with configuration %q", backendName, backendConfig)
	}
	return backend, nil
}

// ParseOptions splits a backend configuration of the form "key1=value1,key2,key3=value3" into a map.
// Keys without a value map to an empty string.
func ParseOptions(config string) (map[string]string, error) {
	options := make(map[string]string)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errors.Errorf("invalid backend option %q in configuration %q", part, config)
		}
		if _, found := options[key]; found {
			return nil, errors.Errorf("backend option %q given more than once in configuration %q", key, config)
		}
		options[key] = strings.TrimSpace(value)
	}
	return options, nil
}
