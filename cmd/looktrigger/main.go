// looktrigger: gaze trigger service
// Tracks pawns inside trigger volumes and fires success or timeout outcomes
// when they hold their aim on a target.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
