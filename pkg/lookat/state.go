package lookat

import (
	"time"

	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// Phase is where a monitor is within an occupancy episode
type Phase int

const (
	// PhaseIdle means the volume is empty
	PhaseIdle Phase = iota
	// PhaseActivated means occupants are present but not all looking
	PhaseActivated
	// PhaseLooking means every occupant is looking and gaze time is accumulating
	PhaseLooking
	// PhaseSucceeded means success fired; sticky until vacancy
	PhaseSucceeded
	// PhaseTimedOut means timeout fired; sticky until vacancy
	PhaseTimedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActivated:
		return "activated"
	case PhaseLooking:
		return "looking"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// settled is true once this episode's outcome has fired
func (p Phase) settled() bool {
	return p == PhaseSucceeded || p == PhaseTimedOut
}

// State is the memory of the look state machine
type State struct {
	Phase          Phase
	SinceActivated time.Duration // Since the volume became occupied
	SinceLookAt    time.Duration // Since continuous gaze began; only meaningful while looking
}

// WasLooking reports whether the previous evaluation found all occupants looking
func (s State) WasLooking() bool {
	return s.Phase == PhaseLooking
}

// TimedOut reports whether the sticky timeout flag is set
func (s State) TimedOut() bool {
	return s.Phase == PhaseTimedOut
}

// Advance moves the elapsed-time counters forward by dt
func (s State) Advance(dt time.Duration) State {
	if s.Phase == PhaseIdle {
		return s
	}
	s.SinceActivated += dt
	s.SinceLookAt += dt
	return s
}

// OccupantSnapshot is one occupant's pose for a single tick
type OccupantSnapshot struct {
	ID       string
	Position vec.Vec3
	Forward  vec.Vec3
}

// Input is everything one evaluation needs, gathered synchronously
type Input struct {
	Enabled        bool
	TargetResolved bool
	Target         vec.Vec3
	Occupants      []OccupantSnapshot
}

// OutcomeKind identifies which terminal outcome fired
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeSuccess
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return OutputSuccess
	case OutcomeTimeout:
		return OutputTimeout
	default:
		return "none"
	}
}

// Outcome is the result of one evaluation
type Outcome struct {
	Kind     OutcomeKind
	Occupant OccupantSnapshot // Representative occupant: first in snapshot order
}

// Fired reports whether an outcome was produced
func (o Outcome) Fired() bool {
	return o.Kind != OutcomeNone
}

// GazeDot returns the dot product between an occupant's aim and the direction
// from the occupant to the target. An occupant standing on the target scores 0.
func GazeDot(o OccupantSnapshot, target vec.Vec3) float64 {
	toTarget := target.Sub(o.Position).Normalize()
	return o.Forward.Normalize().Dot(toTarget)
}

// AllLooking reports whether every occupant's gaze dot is >= fov.
// An empty set is not looking.
func AllLooking(occupants []OccupantSnapshot, target vec.Vec3, fov float64) bool {
	if len(occupants) == 0 {
		return false
	}
	for _, o := range occupants {
		if GazeDot(o, target) < fov {
			return false
		}
	}
	return true
}

// Step evaluates one tick. It is a pure function of its inputs: the caller
// advances the counters beforehand and performs delivery of the outcome.
func Step(cfg Config, s State, in Input) (State, Outcome) {
	if !in.Enabled || s.Phase.settled() || !in.TargetResolved || len(in.Occupants) == 0 {
		return s, Outcome{}
	}

	rep := in.Occupants[0]

	if cfg.Timeout != 0 && s.SinceActivated > cfg.Timeout {
		s.Phase = PhaseTimedOut
		return s, Outcome{Kind: OutcomeTimeout, Occupant: rep}
	}

	if !AllLooking(in.Occupants, in.Target, cfg.FieldOfView) {
		s.SinceLookAt = 0
		s.Phase = PhaseActivated
		return s, Outcome{}
	}

	// The tick gaze starts on never fires, even with a zero look time
	if s.Phase != PhaseLooking {
		s.SinceLookAt = 0
		s.Phase = PhaseLooking
		return s, Outcome{}
	}

	if s.SinceLookAt >= cfg.LookTime {
		s.Phase = PhaseSucceeded
		return s, Outcome{Kind: OutcomeSuccess, Occupant: rep}
	}

	return s, Outcome{}
}
