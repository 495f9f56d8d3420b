package lookat

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

const tick = 100 * time.Millisecond

// fakeOccupant is a fixed-pose occupant
type fakeOccupant struct {
	id  string
	pos vec.Vec3
	fwd vec.Vec3
}

func (o *fakeOccupant) ID() string         { return o.id }
func (o *fakeOccupant) Position() vec.Vec3 { return o.pos }
func (o *fakeOccupant) Forward() vec.Vec3  { return o.fwd }

type fakeOccupancy struct {
	occupants []Occupant
}

func (f *fakeOccupancy) Count() int            { return len(f.occupants) }
func (f *fakeOccupancy) Occupants() []Occupant { return f.occupants }

type staticTarget struct {
	pos  vec.Vec3
	gone bool
}

func (s *staticTarget) Position() (vec.Vec3, bool) { return s.pos, !s.gone }

type fakeResolver struct {
	target *staticTarget
	err    error
	calls  int
}

func (r *fakeResolver) Resolve(ref TargetRef) (PositionProvider, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.target, nil
}

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Fire(ev Event) { s.events = append(s.events, ev) }

func (s *recordingSink) count(output string) int {
	n := 0
	for _, ev := range s.events {
		if ev.Output == output {
			n++
		}
	}
	return n
}

type destroyRequest struct {
	id    string
	delay time.Duration
}

type recordingDestroyer struct {
	requests []destroyRequest
}

func (d *recordingDestroyer) RequestDestroy(id string, delay time.Duration) {
	d.requests = append(d.requests, destroyRequest{id, delay})
}

// occupantWithDot returns an occupant at the origin whose aim has the given
// dot product with the +X axis. Targets in these tests sit on +X.
func occupantWithDot(id string, dot float64) *fakeOccupant {
	return &fakeOccupant{
		id:  id,
		pos: vec.Zero,
		fwd: vec.New(dot, math.Sqrt(1-dot*dot), 0),
	}
}

type harness struct {
	monitor   *Monitor
	occupancy *fakeOccupancy
	resolver  *fakeResolver
	sink      *recordingSink
	destroyer *recordingDestroyer
}

func newHarness(t *testing.T, cfg Config, occupants ...Occupant) *harness {
	t.Helper()
	h := &harness{
		occupancy: &fakeOccupancy{occupants: occupants},
		resolver:  &fakeResolver{target: &staticTarget{pos: vec.New(10, 0, 0)}},
		sink:      &recordingSink{},
		destroyer: &recordingDestroyer{},
	}
	m, err := NewMonitor("m-1", "statue", cfg, Deps{
		Occupancy: h.occupancy,
		Resolver:  h.resolver,
		Output:    h.sink,
		Destroyer: h.destroyer,
	})
	if err != nil {
		t.Fatalf("NewMonitor error: %v", err)
	}
	h.monitor = m
	return h
}

func (h *harness) start() {
	var first Occupant
	if len(h.occupancy.occupants) > 0 {
		first = h.occupancy.occupants[0]
	}
	h.monitor.OnEpisodeStart(first)
}

// run ticks n times and returns the 1-based tick indexes that fired
func (h *harness) run(n int) []int {
	var fired []int
	for i := 1; i <= n; i++ {
		if h.monitor.Tick(tick).Fired() {
			fired = append(fired, i)
		}
	}
	return fired
}

func testConfig(lookTime time.Duration, fov float64, timeout time.Duration) Config {
	return Config{
		LookTarget:  "statue",
		LookTime:    lookTime,
		FieldOfView: fov,
		Timeout:     timeout,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero look time", func(c *Config) { c.LookTime = 0 }, false},
		{"timeout disabled", func(c *Config) { c.Timeout = 0 }, false},
		{"fov lower bound", func(c *Config) { c.FieldOfView = -1 }, false},
		{"fov upper bound", func(c *Config) { c.FieldOfView = 1 }, false},
		{"negative look time", func(c *Config) { c.LookTime = -time.Second }, true},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, true},
		{"fov too high", func(c *Config) { c.FieldOfView = 1.5 }, true},
		{"fov NaN", func(c *Config) { c.FieldOfView = math.NaN() }, true},
		{"missing target", func(c *Config) { c.LookTarget = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("statue")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("error should wrap ErrInvalidConfiguration: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("statue")
	if cfg.LookTime != 500*time.Millisecond {
		t.Errorf("LookTime = %v, want 500ms", cfg.LookTime)
	}
	if cfg.FieldOfView != 0.5 {
		t.Errorf("FieldOfView = %v, want 0.5", cfg.FieldOfView)
	}
	if cfg.Timeout != 4*time.Second {
		t.Errorf("Timeout = %v, want 4s", cfg.Timeout)
	}
	if cfg.FireOnce {
		t.Error("FireOnce should default to false")
	}
}

func TestNewMonitor_RejectsInvalidConfig(t *testing.T) {
	_, err := NewMonitor("id", "bad", testConfig(-time.Second, 0.5, 0), Deps{})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestGazeDot(t *testing.T) {
	target := vec.New(10, 0, 0)

	tests := []struct {
		name string
		occ  OccupantSnapshot
		want float64
	}{
		{"facing", OccupantSnapshot{Forward: vec.New(1, 0, 0)}, 1},
		{"facing unnormalized aim", OccupantSnapshot{Forward: vec.New(5, 0, 0)}, 1},
		{"orthogonal", OccupantSnapshot{Forward: vec.New(0, 1, 0)}, 0},
		{"away", OccupantSnapshot{Forward: vec.New(-1, 0, 0)}, -1},
		{"on target", OccupantSnapshot{Position: target, Forward: vec.New(1, 0, 0)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GazeDot(tt.occ, target); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("GazeDot = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllLooking(t *testing.T) {
	target := vec.New(10, 0, 0)
	facing := OccupantSnapshot{ID: "a", Forward: vec.New(1, 0, 0)}
	side := OccupantSnapshot{ID: "b", Forward: vec.New(0, 1, 0)}

	if AllLooking(nil, target, 0.5) {
		t.Error("empty set should not count as looking")
	}
	if !AllLooking([]OccupantSnapshot{facing}, target, 1) {
		t.Error("dot equal to the threshold should count as looking")
	}
	if !AllLooking([]OccupantSnapshot{side}, target, 0) {
		t.Error("orthogonal aim should pass a zero threshold")
	}
	if AllLooking([]OccupantSnapshot{facing, side}, target, 0.5) {
		t.Error("one occupant failing should fail the whole set")
	}
}

func TestStep_TransitionTickNeverFires(t *testing.T) {
	cfg := testConfig(0, 0.5, 0)
	in := Input{
		Enabled:        true,
		TargetResolved: true,
		Target:         vec.New(10, 0, 0),
		Occupants:      []OccupantSnapshot{{ID: "a", Forward: vec.New(1, 0, 0)}},
	}

	s, out := Step(cfg, State{Phase: PhaseActivated}, in)
	if out.Fired() {
		t.Fatal("transition tick must not fire even with zero look time")
	}
	if !s.WasLooking() || s.SinceLookAt != 0 {
		t.Fatalf("expected looking with zero gaze time, got %+v", s)
	}

	s, out = Step(cfg, s, in)
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success on the next tick, got %v", out.Kind)
	}
	if s.Phase != PhaseSucceeded {
		t.Errorf("Phase = %v, want succeeded", s.Phase)
	}
}

func TestStep_Guards(t *testing.T) {
	cfg := testConfig(0, 0.5, time.Second)
	good := Input{
		Enabled:        true,
		TargetResolved: true,
		Target:         vec.New(10, 0, 0),
		Occupants:      []OccupantSnapshot{{ID: "a", Forward: vec.New(1, 0, 0)}},
	}
	expired := State{Phase: PhaseLooking, SinceActivated: 2 * time.Second, SinceLookAt: time.Second}

	tests := []struct {
		name  string
		state State
		in    func(Input) Input
	}{
		{"disabled", expired, func(in Input) Input { in.Enabled = false; return in }},
		{"target unresolved", expired, func(in Input) Input { in.TargetResolved = false; return in }},
		{"no occupants", expired, func(in Input) Input { in.Occupants = nil; return in }},
		{"timed out", State{Phase: PhaseTimedOut, SinceActivated: 5 * time.Second}, func(in Input) Input { return in }},
		{"succeeded", State{Phase: PhaseSucceeded, SinceActivated: 5 * time.Second}, func(in Input) Input { return in }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, out := Step(cfg, tt.state, tt.in(good))
			if out.Fired() {
				t.Errorf("guarded step fired %v", out.Kind)
			}
			if s != tt.state {
				t.Errorf("guarded step changed state: %+v -> %+v", tt.state, s)
			}
		})
	}
}

func TestStep_TimeoutIsStrict(t *testing.T) {
	cfg := testConfig(time.Hour, 0.5, 2*time.Second)
	in := Input{
		Enabled:        true,
		TargetResolved: true,
		Target:         vec.New(10, 0, 0),
		Occupants:      []OccupantSnapshot{{ID: "a", Forward: vec.New(-1, 0, 0)}},
	}

	_, out := Step(cfg, State{Phase: PhaseActivated, SinceActivated: 2 * time.Second}, in)
	if out.Fired() {
		t.Error("timeout must not fire when elapsed equals the timeout")
	}
	_, out = Step(cfg, State{Phase: PhaseActivated, SinceActivated: 2*time.Second + 1}, in)
	if out.Kind != OutcomeTimeout {
		t.Errorf("expected timeout once elapsed exceeds it, got %v", out.Kind)
	}
}

func TestStep_RepresentativeIsFirstOccupant(t *testing.T) {
	cfg := testConfig(time.Hour, 0.5, time.Second)
	in := Input{
		Enabled:        true,
		TargetResolved: true,
		Target:         vec.New(10, 0, 0),
		Occupants: []OccupantSnapshot{
			{ID: "first", Forward: vec.New(-1, 0, 0)},
			{ID: "second", Forward: vec.New(1, 0, 0)},
		},
	}

	_, out := Step(cfg, State{Phase: PhaseActivated, SinceActivated: 2 * time.Second}, in)
	if out.Occupant.ID != "first" {
		t.Errorf("representative = %q, want first", out.Occupant.ID)
	}
}

// Scenario A: continuous gaze with no timeout fires success once, on the
// first tick where gaze time reaches the look time.
func TestMonitor_SuccessAfterContinuousGaze(t *testing.T) {
	h := newHarness(t, testConfig(time.Second, 0.9, 0), occupantWithDot("player", 0.95))
	h.start()

	var firedAt []int
	var gazeAtFire time.Duration
	for i := 1; i <= 12; i++ {
		before := h.monitor.State().Advance(tick)
		if h.monitor.Tick(tick).Kind == OutcomeSuccess {
			firedAt = append(firedAt, i)
			gazeAtFire = before.SinceLookAt
		}
	}

	// Tick 1 starts gaze; ticks 2..11 accumulate 100ms each
	if len(firedAt) != 1 || firedAt[0] != 11 {
		t.Fatalf("success fired at ticks %v, want [11]", firedAt)
	}
	if gazeAtFire < time.Second {
		t.Errorf("fired with gaze time %v, want >= 1s", gazeAtFire)
	}
	if h.sink.count(OutputSuccess) != 1 {
		t.Errorf("success delivered %d times, want 1", h.sink.count(OutputSuccess))
	}
	if ev := h.sink.events[0]; ev.Occupant.ID != "player" || ev.MonitorID != "m-1" || ev.MonitorName != "statue" {
		t.Errorf("unexpected event %+v", ev)
	}
	if len(h.destroyer.requests) != 0 {
		t.Error("non fire-once monitor must not request destruction")
	}
}

// Scenario B: never looking; timeout fires once and the monitor stays inert
// until the occupant leaves.
func TestMonitor_TimeoutThenInertUntilVacancy(t *testing.T) {
	h := newHarness(t, testConfig(500*time.Millisecond, 0.5, 2*time.Second), occupantWithDot("player", 0.1))
	h.start()

	fired := h.run(40)
	if len(fired) != 1 || fired[0] != 21 {
		t.Fatalf("timeout fired at ticks %v, want [21]", fired)
	}
	if h.sink.count(OutputTimeout) != 1 || h.sink.count(OutputSuccess) != 0 {
		t.Fatalf("unexpected events %+v", h.sink.events)
	}
	if !h.monitor.State().TimedOut() {
		t.Fatal("expected sticky timed out state")
	}

	// Now looking: still inert
	h.occupancy.occupants = []Occupant{occupantWithDot("player", 1)}
	if fired := h.run(20); len(fired) != 0 {
		t.Errorf("timed out monitor fired at %v", fired)
	}

	// Vacancy resets, next episode is live again
	h.monitor.OnEpisodeEnd(h.occupancy.occupants[0])
	if s := h.monitor.State(); s.Phase != PhaseIdle || s.SinceActivated != 0 {
		t.Fatalf("expected reset to idle, got %+v", s)
	}
	h.start()
	if fired := h.run(10); len(fired) != 1 {
		t.Errorf("new episode fired %d times, want 1", len(fired))
	}
	if h.sink.count(OutputSuccess) != 1 {
		t.Errorf("expected success in the new episode")
	}
}

// Scenario C: every occupant must look.
func TestMonitor_AllOccupantsMustLook(t *testing.T) {
	h := newHarness(t, testConfig(500*time.Millisecond, 0.5, 0),
		occupantWithDot("looker", 0.95), occupantWithDot("distracted", 0.2))
	h.start()

	if fired := h.run(200); len(fired) != 0 {
		t.Fatalf("fired at %v with one occupant looking away", fired)
	}
	if h.monitor.State().WasLooking() {
		t.Error("should never be looking")
	}
}

// Scenario D: fire-once success requests destruction and stops evaluating.
func TestMonitor_FireOnceDestroysAfterSuccess(t *testing.T) {
	cfg := testConfig(200*time.Millisecond, 0.5, 0)
	cfg.FireOnce = true
	h := newHarness(t, cfg, occupantWithDot("player", 1))
	h.start()

	fired := h.run(20)
	if len(fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(fired))
	}
	if len(h.destroyer.requests) != 1 {
		t.Fatalf("destroy requested %d times, want 1", len(h.destroyer.requests))
	}
	if req := h.destroyer.requests[0]; req.id != "m-1" || req.delay != tick {
		t.Errorf("unexpected destroy request %+v", req)
	}
	if !h.monitor.Destroyed() {
		t.Error("monitor should report destroyed")
	}

	// Later callbacks are ignored
	h.monitor.OnEpisodeEnd(h.occupancy.occupants[0])
	h.start()
	if len(h.destroyer.requests) != 1 {
		t.Error("destroyed monitor requested destruction again")
	}
}

func TestMonitor_FireOnceDestroysAfterTimeout(t *testing.T) {
	cfg := testConfig(time.Second, 0.5, 300*time.Millisecond)
	cfg.FireOnce = true
	h := newHarness(t, cfg, occupantWithDot("player", -1))
	h.start()

	h.run(10)
	if h.sink.count(OutputTimeout) != 1 {
		t.Fatalf("timeout delivered %d times, want 1", h.sink.count(OutputTimeout))
	}
	if len(h.destroyer.requests) != 1 {
		t.Fatalf("destroy requested %d times, want 1", len(h.destroyer.requests))
	}
}

func TestMonitor_FireOnceDestroysOnVacancy(t *testing.T) {
	cfg := testConfig(time.Second, 0.5, 0)
	cfg.FireOnce = true
	h := newHarness(t, cfg, occupantWithDot("player", 1))
	h.start()
	h.run(3)

	h.monitor.OnEpisodeEnd(h.occupancy.occupants[0])

	if len(h.sink.events) != 0 {
		t.Errorf("vacancy should not deliver outcomes, got %+v", h.sink.events)
	}
	if len(h.destroyer.requests) != 1 {
		t.Fatalf("destroy requested %d times, want 1", len(h.destroyer.requests))
	}
}

// Scenario E: resolution failure leaves the monitor inert for the episode.
func TestMonitor_TargetResolutionFailure(t *testing.T) {
	h := newHarness(t, testConfig(0, 0.5, time.Second), occupantWithDot("player", 1))
	h.resolver.err = ErrTargetUnresolved
	h.start()

	if h.monitor.TargetResolved() {
		t.Fatal("target should be unresolved")
	}
	if fired := h.run(50); len(fired) != 0 {
		t.Fatalf("unresolved monitor fired at %v", fired)
	}

	// Re-resolved on the next episode only
	h.resolver.err = nil
	h.run(5)
	if h.resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1 (no automatic retry)", h.resolver.calls)
	}

	h.monitor.OnEpisodeEnd(h.occupancy.occupants[0])
	h.start()
	if !h.monitor.TargetResolved() {
		t.Fatal("target should resolve on the next episode")
	}
	if fired := h.run(3); len(fired) != 1 {
		t.Errorf("expected one outcome after re-resolution, got %v", fired)
	}
}

func TestMonitor_GazeBreakResetsAccumulation(t *testing.T) {
	looking := occupantWithDot("player", 1)
	away := occupantWithDot("player", -1)
	h := newHarness(t, testConfig(500*time.Millisecond, 0.5, 0), looking)
	h.start()

	// Start gaze and accumulate 400ms
	if fired := h.run(5); len(fired) != 0 {
		t.Fatalf("fired too early at %v", fired)
	}
	if got := h.monitor.State().SinceLookAt; got != 400*time.Millisecond {
		t.Fatalf("SinceLookAt = %v, want 400ms", got)
	}

	// Break gaze for one tick
	h.occupancy.occupants = []Occupant{away}
	h.run(1)
	s := h.monitor.State()
	if s.WasLooking() || s.SinceLookAt != 0 {
		t.Fatalf("gaze break should reset accumulation, got %+v", s)
	}

	// A full look time is needed again: 1 transition tick + 5 ticks
	h.occupancy.occupants = []Occupant{looking}
	fired := h.run(6)
	if len(fired) != 1 || fired[0] != 6 {
		t.Errorf("fired at %v, want [6]", fired)
	}
}

func TestMonitor_TimeoutBeatsSlowGaze(t *testing.T) {
	h := newHarness(t, testConfig(3*time.Second, 0.5, time.Second), occupantWithDot("player", 1))
	h.start()

	h.run(60)
	if h.sink.count(OutputTimeout) != 1 {
		t.Errorf("timeout delivered %d times, want 1", h.sink.count(OutputTimeout))
	}
	if h.sink.count(OutputSuccess) != 0 {
		t.Error("success must never fire after timeout in the same episode")
	}
}

func TestMonitor_OneOutcomePerEpisode(t *testing.T) {
	h := newHarness(t, testConfig(200*time.Millisecond, 0.5, time.Second), occupantWithDot("player", 1))
	h.start()

	h.run(50)
	if len(h.sink.events) != 1 || h.sink.events[0].Output != OutputSuccess {
		t.Fatalf("expected a single success, got %+v", h.sink.events)
	}
	if h.monitor.State().Phase != PhaseSucceeded {
		t.Errorf("Phase = %v, want succeeded", h.monitor.State().Phase)
	}
}

func TestMonitor_DisabledDoesNotEvaluate(t *testing.T) {
	h := newHarness(t, testConfig(0, 0.5, 200*time.Millisecond), occupantWithDot("player", 1))
	h.monitor.SetEnabled(false)
	h.start()

	if fired := h.run(20); len(fired) != 0 {
		t.Fatalf("disabled monitor fired at %v", fired)
	}

	// Counters kept running, so re-enabling trips the timeout immediately
	h.monitor.SetEnabled(true)
	if out := h.monitor.Tick(tick); out.Kind != OutcomeTimeout {
		t.Errorf("expected timeout after re-enable, got %v", out.Kind)
	}
}

func TestMonitor_TargetGoneSkipsTicks(t *testing.T) {
	h := newHarness(t, testConfig(0, 0.5, 0), occupantWithDot("player", 1))
	h.start()
	h.resolver.target.gone = true

	if fired := h.run(10); len(fired) != 0 {
		t.Fatalf("fired at %v without a target position", fired)
	}
	if h.monitor.State().WasLooking() {
		t.Error("skipped ticks should not change the phase")
	}
}

func TestMonitor_EmptyOccupancySkipsTicks(t *testing.T) {
	h := newHarness(t, testConfig(0, 0.5, 100*time.Millisecond))
	h.start()

	if fired := h.run(10); len(fired) != 0 {
		t.Fatalf("fired at %v with no occupants", fired)
	}
}

func TestPhase_String(t *testing.T) {
	phases := map[Phase]string{
		PhaseIdle:      "idle",
		PhaseActivated: "activated",
		PhaseLooking:   "looking",
		PhaseSucceeded: "succeeded",
		PhaseTimedOut:  "timed_out",
		Phase(99):      "unknown",
	}
	for p, want := range phases {
		if p.String() != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), p.String(), want)
		}
	}
}
