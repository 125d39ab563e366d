// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package updaters

import (
	"fmt"

	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/pkg/errors"
)

// Sentinel errors: every error returned by this package, by a Schema or by an Updater construction
// matches (with errors.Is) one of these.
var (
	// ErrUnsupportedType is returned when no schema is registered for a layer kind.
	ErrUnsupportedType = errors.New("unsupported layer type")

	// ErrConfigurationMismatch is returned when the input/output configurations given don't follow
	// the layer kind transformation rule.
	ErrConfigurationMismatch = errors.New("layer configuration mismatch")

	// ErrDuplicateRegistration is returned when registering a schema for a layer kind already registered.
	ErrDuplicateRegistration = errors.New("duplicate schema registration")

	// ErrResourceAllocation is returned when the device couldn't provide the resources for an updater.
	// It may be transient, see IsRetryable.
	ErrResourceAllocation = errors.New("device resource allocation failed")

	// ErrRegistrySealed is returned when registering into a Registry after Seal was called.
	ErrRegistrySealed = errors.New("registry is sealed")
)

// UnsupportedTypeError reports a layer kind without a registered schema.
type UnsupportedTypeError struct {
	ID layerid.ID
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s: no updater schema registered for layer type %s", ErrUnsupportedType, e.ID)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// DuplicateRegistrationError reports a second schema registered for the same layer kind.
type DuplicateRegistrationError struct {
	ID layerid.ID
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("%s: a schema for layer type %s is already registered", ErrDuplicateRegistration, e.ID)
}

func (e *DuplicateRegistrationError) Is(target error) bool { return target == ErrDuplicateRegistration }

// ConfigurationMismatchError reports input/output configurations that are not valid for a layer kind.
type ConfigurationMismatchError struct {
	Kind          string
	Input, Output layerconfig.Specific
	Reason        string
}

func (e *ConfigurationMismatchError) Error() string {
	return fmt.Sprintf("%s: layer %s can't transform input %s into output %s: %s",
		ErrConfigurationMismatch, e.Kind, e.Input, e.Output, e.Reason)
}

func (e *ConfigurationMismatchError) Is(target error) bool { return target == ErrConfigurationMismatch }

// NewConfigurationMismatch creates a *ConfigurationMismatchError with a formatted reason.
func NewConfigurationMismatch(kind string, input, output layerconfig.Specific, format string, args ...any) error {
	return &ConfigurationMismatchError{
		Kind:   kind,
		Input:  input.Clone(),
		Output: output.Clone(),
		Reason: fmt.Sprintf(format, args...),
	}
}

// ResourceAllocationError reports a failure of the device to provide the resources of an updater.
type ResourceAllocationError struct {
	Kind                 string
	Input, Output        layerconfig.Specific
	Requested, Available uint64
	Cause                error
}

func (e *ResourceAllocationError) Error() string {
	msg := fmt.Sprintf("%s: updater for layer %s (input %s, output %s) requested %d bytes",
		ErrResourceAllocation, e.Kind, e.Input, e.Output, e.Requested)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ResourceAllocationError) Is(target error) bool { return target == ErrResourceAllocation }

// Unwrap returns the device error that caused the failure.
func (e *ResourceAllocationError) Unwrap() error { return e.Cause }

// IsRetryable returns whether err is a failure that may succeed if retried later, that is,
// a resource allocation failure. Configuration errors are permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrResourceAllocation)
}
