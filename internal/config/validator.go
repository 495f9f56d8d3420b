package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scene.monitors[0].volume")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"", "text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateTick()...)
	errors = append(errors, c.validateLog()...)
	errors = append(errors, c.validateScene()...)

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateTick() []ValidationError {
	var errors []ValidationError

	if c.Tick.Interval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "tick.interval",
			Value:   c.Tick.Interval,
			Message: "must be positive",
		})
	}
	if c.Tick.PawnTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "tick.pawn_timeout",
			Value:   c.Tick.PawnTimeout,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateLog() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Log.Level) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if !slices.Contains(ValidLogFormats(), c.Log.Format) {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Value:   c.Log.Format,
			Message: "must be text or json",
		})
	}

	return errors
}

func (c *Config) validateScene() []ValidationError {
	var errors []ValidationError

	targets := make(map[string]bool)
	for i, t := range c.Scene.Targets {
		field := fmt.Sprintf("scene.targets[%d]", i)
		errors = append(errors, validateName(field, t.Name, targets)...)
		errors = append(errors, validateVector(field+".position", t.Position)...)
	}

	volumes := make(map[string]bool)
	for i, v := range c.Scene.Volumes {
		field := fmt.Sprintf("scene.volumes[%d]", i)
		errors = append(errors, validateName(field, v.Name, volumes)...)
		errors = append(errors, validateVector(field+".min", v.Min)...)
		errors = append(errors, validateVector(field+".max", v.Max)...)
	}

	monitors := make(map[string]bool)
	for i, m := range c.Scene.Monitors {
		field := fmt.Sprintf("scene.monitors[%d]", i)
		errors = append(errors, validateName(field, m.Name, monitors)...)

		if !volumes[m.Volume] {
			errors = append(errors, ValidationError{
				Field:   field + ".volume",
				Value:   m.Volume,
				Message: "must name a configured volume",
			})
		}

		// Targets not in the scene file may be pawn IDs resolved at runtime
		if err := m.LookConfig().Validate(); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   m.Name,
				Message: strings.ReplaceAll(err.Error(), "\n", "; "),
			})
		}
	}

	return errors
}

// validateName requires a non-empty name unique within seen
func validateName(field, name string, seen map[string]bool) []ValidationError {
	if name == "" {
		return []ValidationError{{
			Field:   field + ".name",
			Value:   name,
			Message: "must not be empty",
		}}
	}
	if seen[name] {
		return []ValidationError{{
			Field:   field + ".name",
			Value:   name,
			Message: "must be unique",
		}}
	}
	seen[name] = true
	return nil
}

func validateVector(field string, v []float64) []ValidationError {
	if _, err := vec.From(v); err != nil {
		return []ValidationError{{
			Field:   field,
			Value:   v,
			Message: err.Error(),
		}}
	}
	return nil
}
