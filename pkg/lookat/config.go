// Package lookat implements the look trigger: a monitor that fires once every
// occupant of a trigger volume has kept their aim on a target for a continuous
// duration, or fires a timeout if that never happens in time.
package lookat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration is returned for out-of-range monitor settings
	ErrInvalidConfiguration = errors.New("invalid look monitor configuration")

	// ErrTargetUnresolved is returned by resolvers when a target ref names nothing live
	ErrTargetUnresolved = errors.New("look target unresolved")
)

// TargetRef is an opaque descriptor of the thing occupants must look at.
// The resolver decides what it means (entity name, entity ID).
type TargetRef string

// Config holds the settings of one look monitor
type Config struct {
	LookTarget  TargetRef     // What occupants must look at
	LookTime    time.Duration // Continuous gaze required before success
	FieldOfView float64       // Minimum dot product between aim and direction-to-target, [-1, 1]
	Timeout     time.Duration // Time allowed before a forced timeout; 0 disables it
	FireOnce    bool          // Self-destruct after the first outcome or full vacancy
}

// DefaultConfig returns the stock monitor settings for a target
func DefaultConfig(target TargetRef) Config {
	return Config{
		LookTarget:  target,
		LookTime:    500 * time.Millisecond,
		FieldOfView: 0.5, // ~60° half-angle cone
		Timeout:     4 * time.Second,
		FireOnce:    false,
	}
}

// Validate reports every out-of-range field, each wrapping ErrInvalidConfiguration
func (c Config) Validate() error {
	var errs []error

	if c.LookTarget == "" {
		errs = append(errs, fmt.Errorf("%w: look_target is required", ErrInvalidConfiguration))
	}
	if c.LookTime < 0 {
		errs = append(errs, fmt.Errorf("%w: look_time must be >= 0 (got %v)", ErrInvalidConfiguration, c.LookTime))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be >= 0 (got %v)", ErrInvalidConfiguration, c.Timeout))
	}
	// Written this way so NaN fails too
	if !(c.FieldOfView >= -1 && c.FieldOfView <= 1) {
		errs = append(errs, fmt.Errorf("%w: field_of_view must be within [-1, 1] (got %v)", ErrInvalidConfiguration, c.FieldOfView))
	}

	return errors.Join(errs...)
}
