// Package engine hosts look monitors on a fixed tick: it feeds scene pawns
// into trigger volumes, ticks every monitor and carries out deferred
// destruction requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/debug"
	"github.com/teslashibe/go-looktrigger/pkg/lookat"
	"github.com/teslashibe/go-looktrigger/pkg/scene"
	"github.com/teslashibe/go-looktrigger/pkg/trigger"
)

var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrVolumeNotFound  = errors.New("volume not found")
	ErrDuplicateName   = errors.New("name already in use")
)

// Options configure the tick loop
type Options struct {
	TickInterval time.Duration // Fixed server tick
	PawnTimeout  time.Duration // Forget pawns without pose updates for this long; 0 disables
}

// DefaultOptions returns a 50Hz tick with a 10s pawn timeout
func DefaultOptions() Options {
	return Options{
		TickInterval: 20 * time.Millisecond,
		PawnTimeout:  10 * time.Second,
	}
}

// binding ties a monitor to the volume it watches
type binding struct {
	monitor  *lookat.Monitor
	volume   string
	removed  bool
	unlisten func()
}

type pendingDestroy struct {
	id        string
	remaining time.Duration
}

// Stats are cumulative engine counters
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Successes uint64 `json:"successes"`
	Timeouts  uint64 `json:"timeouts"`
	Destroyed uint64 `json:"destroyed"`
	Monitors  int    `json:"monitors"`
	Volumes   int    `json:"volumes"`
	Entities  int    `json:"entities"`
}

// Engine is the single-threaded tick host. Exported methods are safe to call
// from other goroutines; monitor evaluation only happens inside Step.
type Engine struct {
	mu    sync.Mutex
	opts  Options
	scene *scene.Scene
	sink  lookat.OutputSink
	log   *slog.Logger

	volumes      map[string]*trigger.Tracker
	volumeOrder  []string
	monitors     map[string]*binding
	monitorOrder []string
	pending      []pendingDestroy

	stats Stats
}

// New creates an engine over a scene. sink may be nil.
func New(opts Options, sc *scene.Scene, sink lookat.OutputSink) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultOptions().TickInterval
	}
	return &Engine{
		opts:     opts,
		scene:    sc,
		sink:     sink,
		log:      log.Component("engine"),
		volumes:  make(map[string]*trigger.Tracker),
		monitors: make(map[string]*binding),
	}
}

// Scene returns the scene the engine observes
func (e *Engine) Scene() *scene.Scene {
	return e.scene
}

// Options returns the tick options
func (e *Engine) Options() Options {
	return e.opts
}

// AddVolume registers a trigger volume
func (e *Engine) AddVolume(v trigger.Volume) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.volumes[v.Name]; exists {
		return fmt.Errorf("volume %q: %w", v.Name, ErrDuplicateName)
	}
	e.volumes[v.Name] = trigger.NewTracker(v)
	e.volumeOrder = append(e.volumeOrder, v.Name)
	return nil
}

// AddMonitor creates a look monitor watching a volume and returns its ID
func (e *Engine) AddMonitor(name, volume string, cfg lookat.Config) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tracker, ok := e.volumes[volume]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVolumeNotFound, volume)
	}
	for _, b := range e.monitors {
		if b.monitor.Name() == name {
			return "", fmt.Errorf("monitor %q: %w", name, ErrDuplicateName)
		}
	}

	id := uuid.New().String()
	m, err := lookat.NewMonitor(id, name, cfg, lookat.Deps{
		Occupancy: tracker,
		Resolver:  e.scene,
		Output:    e,
		Destroyer: e,
		Logger:    log.Component("lookat"),
	})
	if err != nil {
		return "", fmt.Errorf("monitor %q: %w", name, err)
	}

	b := &binding{monitor: m, volume: volume}
	b.unlisten = tracker.Listen(trigger.Listener{
		OnStart: func(occ lookat.Occupant) {
			if !b.removed {
				m.OnEpisodeStart(occ)
			}
		},
		OnEnd: func(occ lookat.Occupant) {
			if !b.removed {
				m.OnEpisodeEnd(occ)
			}
		},
	})

	// Joining a volume mid-episode starts the episode for this monitor
	if tracker.Count() > 0 {
		m.OnEpisodeStart(tracker.Occupants()[0])
	}

	e.monitors[id] = b
	e.monitorOrder = append(e.monitorOrder, id)

	e.log.Info("monitor added", "monitor", name, "monitor_id", id, "volume", volume,
		"target", string(cfg.LookTarget), "look_time", cfg.LookTime,
		"field_of_view", cfg.FieldOfView, "timeout", cfg.Timeout, "fire_once", cfg.FireOnce)
	return id, nil
}

// RemoveMonitor removes a monitor immediately
func (e *Engine) RemoveMonitor(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.monitors[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMonitorNotFound, id)
	}
	e.removeLocked(id)
	return nil
}

func (e *Engine) removeLocked(id string) {
	b, ok := e.monitors[id]
	if !ok {
		return
	}
	b.removed = true
	b.unlisten()
	delete(e.monitors, id)
	for i, mid := range e.monitorOrder {
		if mid == id {
			e.monitorOrder = append(e.monitorOrder[:i], e.monitorOrder[i+1:]...)
			break
		}
	}
	e.log.Info("monitor removed", "monitor", b.monitor.Name(), "monitor_id", id)
}

// SetEnabled toggles evaluation of a monitor
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.monitors[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMonitorNotFound, id)
	}
	b.monitor.SetEnabled(enabled)
	return nil
}

// Step runs one tick of dt
func (e *Engine) Step(dt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Ticks++
	e.reapLocked(dt)

	if e.opts.PawnTimeout > 0 {
		if forgotten := e.scene.Forget(e.opts.PawnTimeout); len(forgotten) > 0 {
			e.log.Info("forgot stale pawns", "count", len(forgotten))
		}
	}

	pawns := e.scene.Pawns()
	for _, name := range e.volumeOrder {
		e.volumes[name].Update(pawns)
	}

	for _, id := range e.monitorOrder {
		b := e.monitors[id]
		if b.monitor.Destroyed() {
			continue
		}
		b.monitor.Tick(dt)
	}
}

// reapLocked removes monitors whose destruction delay has elapsed. It runs at
// the start of a tick, so a request made during tick N is carried out no
// earlier than tick N+1, after tick N's deliveries.
func (e *Engine) reapLocked(dt time.Duration) {
	if len(e.pending) == 0 {
		return
	}
	kept := e.pending[:0]
	for _, p := range e.pending {
		p.remaining -= dt
		if p.remaining <= 0 {
			if _, live := e.monitors[p.id]; live {
				e.removeLocked(p.id)
				e.stats.Destroyed++
			}
			continue
		}
		kept = append(kept, p)
	}
	e.pending = kept
}

// RequestDestroy implements lookat.Destroyer. Called from the tick loop with
// the engine lock held.
func (e *Engine) RequestDestroy(monitorID string, delay time.Duration) {
	e.pending = append(e.pending, pendingDestroy{id: monitorID, remaining: delay})
	debug.Log("monitor destruction scheduled", "monitor_id", monitorID, "delay", delay)
}

// Fire implements lookat.OutputSink, counting outcomes before delivery
func (e *Engine) Fire(ev lookat.Event) {
	switch ev.Output {
	case lookat.OutputSuccess:
		e.stats.Successes++
	case lookat.OutputTimeout:
		e.stats.Timeouts++
	}
	if e.sink != nil {
		e.sink.Fire(ev)
	}
}

// Run ticks until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	e.log.Info("engine started", "tick", e.opts.TickInterval, "pawn_timeout", e.opts.PawnTimeout)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return

		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			e.Step(dt)
		}
	}
}

// Stats returns a copy of the counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats
	s.Monitors = len(e.monitors)
	s.Volumes = len(e.volumes)
	s.Entities = e.scene.Len()
	return s
}

// MonitorInfo is a point-in-time view of one monitor
type MonitorInfo struct {
	ID             string
	Name           string
	Volume         string
	Config         lookat.Config
	State          lookat.State
	Enabled        bool
	TargetResolved bool
	Destroyed      bool
	Occupants      []string
}

// Monitors returns a snapshot of every live monitor in creation order
func (e *Engine) Monitors() []MonitorInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]MonitorInfo, 0, len(e.monitorOrder))
	for _, id := range e.monitorOrder {
		infos = append(infos, e.infoLocked(e.monitors[id]))
	}
	return infos
}

// Monitor returns a snapshot of one monitor
func (e *Engine) Monitor(id string) (MonitorInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.monitors[id]
	if !ok {
		return MonitorInfo{}, fmt.Errorf("%w: %s", ErrMonitorNotFound, id)
	}
	return e.infoLocked(b), nil
}

func (e *Engine) infoLocked(b *binding) MonitorInfo {
	m := b.monitor
	info := MonitorInfo{
		ID:             m.ID(),
		Name:           m.Name(),
		Volume:         b.volume,
		Config:         m.Config(),
		State:          m.State(),
		Enabled:        m.Enabled(),
		TargetResolved: m.TargetResolved(),
		Destroyed:      m.Destroyed(),
		Occupants:      []string{},
	}
	for _, occ := range e.volumes[b.volume].Occupants() {
		info.Occupants = append(info.Occupants, occ.ID())
	}
	return info
}
