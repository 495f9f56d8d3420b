package lookat

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/debug"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// Output names delivered to the OutputSink
const (
	OutputSuccess = "success"
	OutputTimeout = "timeout"
)

// Occupant is anything inside the volume that has a position and an aim
type Occupant interface {
	ID() string
	Position() vec.Vec3
	Forward() vec.Vec3
}

// Occupancy exposes the current occupants of the monitor's volume
type Occupancy interface {
	Count() int
	Occupants() []Occupant
}

// PositionProvider is a resolved target. ok is false once the target is gone.
type PositionProvider interface {
	Position() (vec.Vec3, bool)
}

// TargetResolver turns a TargetRef into a live PositionProvider
type TargetResolver interface {
	Resolve(ref TargetRef) (PositionProvider, error)
}

// Event is a delivered outcome
type Event struct {
	MonitorID   string
	MonitorName string
	Output      string
	Occupant    OccupantSnapshot
}

// OutputSink accepts fired outcomes. Delivery is fire-and-forget.
type OutputSink interface {
	Fire(ev Event)
}

// Destroyer schedules removal of a monitor after delay
type Destroyer interface {
	RequestDestroy(monitorID string, delay time.Duration)
}

// Deps are the collaborators a Monitor consumes
type Deps struct {
	Occupancy Occupancy
	Resolver  TargetResolver
	Output    OutputSink
	Destroyer Destroyer
	Logger    *slog.Logger
}

// Monitor drives the look state machine for one trigger volume
type Monitor struct {
	id   string
	name string
	cfg  Config
	deps Deps
	log  *slog.Logger

	// State
	state     State
	target    PositionProvider
	enabled   bool
	destroyed bool
	lastDelta time.Duration
}

// NewMonitor creates a monitor after validating its configuration
func NewMonitor(id, name string, cfg Config, deps Deps) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Component("lookat")
	}

	return &Monitor{
		id:      id,
		name:    name,
		cfg:     cfg,
		deps:    deps,
		log:     logger.With("monitor", name, "monitor_id", id),
		enabled: true,
	}, nil
}

// ID returns the monitor's unique ID
func (m *Monitor) ID() string {
	return m.id
}

// Name returns the monitor's configured name
func (m *Monitor) Name() string {
	return m.name
}

// Config returns the monitor's configuration
func (m *Monitor) Config() Config {
	return m.cfg
}

// State returns a copy of the current state
func (m *Monitor) State() State {
	return m.state
}

// Enabled reports whether ticks are evaluated
func (m *Monitor) Enabled() bool {
	return m.enabled
}

// SetEnabled toggles evaluation without touching state
func (m *Monitor) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// Destroyed reports whether destruction has been requested
func (m *Monitor) Destroyed() bool {
	return m.destroyed
}

// TargetResolved reports whether the last episode start resolved the target
func (m *Monitor) TargetResolved() bool {
	return m.target != nil
}

// OnEpisodeStart is called when the volume goes from empty to occupied
func (m *Monitor) OnEpisodeStart(occ Occupant) {
	if m.destroyed {
		return
	}

	m.target = nil
	if m.deps.Resolver != nil {
		target, err := m.deps.Resolver.Resolve(m.cfg.LookTarget)
		if err != nil {
			m.log.Error("look target unresolved, monitor inert until next episode",
				"target", string(m.cfg.LookTarget), "error", err)
		} else {
			m.target = target
		}
	}

	m.state = State{Phase: PhaseActivated}
	debug.Log("look episode started", "monitor", m.name, "occupant", occupantID(occ),
		"target_resolved", m.target != nil)
}

// OnEpisodeEnd is called when the last occupant leaves
func (m *Monitor) OnEpisodeEnd(occ Occupant) {
	if m.destroyed {
		return
	}

	debug.Log("look episode ended", "monitor", m.name, "occupant", occupantID(occ),
		"phase", m.state.Phase.String())

	if m.cfg.FireOnce {
		m.destroy(m.lastDelta)
		return
	}
	m.state = State{}
}

// Tick advances the counters by dt and evaluates one step
func (m *Monitor) Tick(dt time.Duration) Outcome {
	if m.destroyed {
		return Outcome{}
	}

	m.lastDelta = dt
	m.state = m.state.Advance(dt)

	in, ok := m.input()
	if !ok {
		return Outcome{}
	}

	next, outcome := Step(m.cfg, m.state, in)
	if next.Phase != m.state.Phase {
		debug.Log("look phase change", "monitor", m.name,
			"from", m.state.Phase.String(), "to", next.Phase.String(),
			"since_activated", m.state.SinceActivated, "since_look_at", m.state.SinceLookAt)
	}
	m.state = next

	switch outcome.Kind {
	case OutcomeSuccess:
		m.onSuccess(outcome.Occupant, dt)
	case OutcomeTimeout:
		m.onTimeout(outcome.Occupant, dt)
	}

	return outcome
}

// input gathers the tick inputs. ok is false when evaluation is skipped.
func (m *Monitor) input() (Input, bool) {
	if !m.enabled || m.state.Phase.settled() || m.deps.Occupancy == nil {
		return Input{}, false
	}
	if m.target == nil {
		debug.Log("look tick skipped: target unresolved", "monitor", m.name)
		return Input{}, false
	}
	if m.deps.Occupancy.Count() == 0 {
		return Input{}, false
	}

	pos, ok := m.target.Position()
	if !ok {
		debug.Log("look tick skipped: target unavailable", "monitor", m.name)
		return Input{}, false
	}

	occupants := m.deps.Occupancy.Occupants()
	in := Input{
		Enabled:        m.enabled,
		TargetResolved: true,
		Target:         pos,
		Occupants:      make([]OccupantSnapshot, 0, len(occupants)),
	}
	for _, o := range occupants {
		snap := OccupantSnapshot{ID: o.ID(), Position: o.Position(), Forward: o.Forward()}
		in.Occupants = append(in.Occupants, snap)
		if debug.Tracking {
			debug.TrackLog("gaze", "monitor", m.name, "occupant", snap.ID,
				"dot", GazeDot(snap, pos), "fov", m.cfg.FieldOfView)
		}
	}
	return in, true
}

func (m *Monitor) onSuccess(occ OccupantSnapshot, dt time.Duration) {
	m.log.Info("look trigger succeeded", "occupant", occ.ID, "since_look_at", m.state.SinceLookAt)
	m.fire(OutputSuccess, occ)
	if m.cfg.FireOnce {
		m.destroy(dt)
	}
}

func (m *Monitor) onTimeout(occ OccupantSnapshot, dt time.Duration) {
	m.log.Info("look trigger timed out", "occupant", occ.ID, "since_activated", m.state.SinceActivated)
	m.fire(OutputTimeout, occ)
	if m.cfg.FireOnce {
		m.destroy(dt)
	}
}

func (m *Monitor) fire(output string, occ OccupantSnapshot) {
	if m.deps.Output == nil {
		return
	}
	m.deps.Output.Fire(Event{
		MonitorID:   m.id,
		MonitorName: m.name,
		Output:      output,
		Occupant:    occ,
	})
}

// destroy requests removal once, deferred by delay so this tick's delivery completes
func (m *Monitor) destroy(delay time.Duration) {
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.log.Debug("look monitor destroy requested", "delay", delay)
	if m.deps.Destroyer != nil {
		m.deps.Destroyer.RequestDestroy(m.id, delay)
	}
}

func occupantID(o Occupant) string {
	if o == nil {
		return ""
	}
	return o.ID()
}
