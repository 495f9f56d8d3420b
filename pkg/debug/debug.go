// Package debug provides global debug logging flags
package debug

import "github.com/teslashibe/go-looktrigger/internal/log"

// Enabled controls whether debug logging is active (the debugInfo option)
var Enabled bool

// Tracking controls whether verbose per-occupant gaze logs are shown
// Use --debug-tracking flag to enable these very verbose logs
var Tracking bool

// Log emits a diagnostic line only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.L().Info(msg, append(args, "debug", true)...)
	}
}

// TrackLog emits a line only if tracking debug mode is enabled
func TrackLog(msg string, args ...any) {
	if Tracking {
		log.L().Info(msg, append(args, "debug", "tracking")...)
	}
}
