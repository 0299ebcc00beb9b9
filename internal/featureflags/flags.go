// Package featureflags provides runtime switches for dose routes and level
// computation.
package featureflags

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// Well-known feature flag keys.
const (
	// FlagEnableGelRoute allows gel doses to be recorded. Gel has no
	// kinetic model and contributes nothing to simulated levels.
	FlagEnableGelRoute = "enable_gel_route"

	// FlagDisablePatchRoute rejects new patch doses.
	FlagDisablePatchRoute = "disable_patch_route"

	// FlagMaxSimulationSamples caps the number of samples in one simulation.
	FlagMaxSimulationSamples = "max_simulation_samples"

	// FlagLevelSnapshotsEnabled lets the worker compute cached level snapshots.
	FlagLevelSnapshotsEnabled = "level_snapshots_enabled"
)

// Sample cap bounds. A window needs at least its two end points.
const (
	DefaultMaxSimulationSamples = 20000
	MinSimulationSamples        = 2
)

var (
	// ErrUnknownFlag is returned when updating a key that is not defined.
	ErrUnknownFlag = errors.New("unknown feature flag")

	// ErrInvalidValue is returned when a flag value has the wrong type or range.
	ErrInvalidValue = errors.New("invalid feature flag value")
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// UpdateError reports an invalid entry of a FlagUpdateRequest.
type UpdateError struct {
	Index int
	Key   string
	Err   error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("updates[%d] %q: %v", e.Index, e.Key, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer.
// Returns the default value if the flag is nil or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// Keys returns the defined flag keys in sorted order.
func Keys() []string {
	keys := []string{
		FlagDisablePatchRoute,
		FlagEnableGelRoute,
		FlagLevelSnapshotsEnabled,
		FlagMaxSimulationSamples,
	}
	slices.Sort(keys)
	return keys
}

// ValidateUpdate checks that u names a defined flag and carries a value of
// the right type. Sample caps must be whole numbers within the grid limit.
func ValidateUpdate(u FlagUpdate) error {
	switch u.Key {
	case FlagEnableGelRoute, FlagDisablePatchRoute, FlagLevelSnapshotsEnabled:
		if _, ok := u.Value.(bool); !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, u.Key)
		}
	case FlagMaxSimulationSamples:
		n, ok := u.Value.(float64)
		if !ok || n != math.Trunc(n) || n < MinSimulationSamples || n > pk.MaxGridSamples {
			return fmt.Errorf("%w: %s must be an integer between %d and %d", ErrInvalidValue, u.Key, MinSimulationSamples, pk.MaxGridSamples)
		}
	default:
		return ErrUnknownFlag
	}
	return nil
}

// DefaultFlags returns the default feature flags for the application.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	values := map[string]interface{}{
		FlagEnableGelRoute:        false,
		FlagDisablePatchRoute:     false,
		FlagMaxSimulationSamples:  float64(DefaultMaxSimulationSamples),
		FlagLevelSnapshotsEnabled: true,
	}
	flags := make(map[string]*Flag, len(values))
	for k, v := range values {
		flags[k] = &Flag{Key: k, Value: v, UpdatedAt: now}
	}
	return flags
}
