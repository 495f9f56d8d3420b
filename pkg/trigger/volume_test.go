package trigger

import (
	"reflect"
	"testing"

	"github.com/teslashibe/go-looktrigger/pkg/lookat"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

type mockPawn struct {
	id  string
	pos vec.Vec3
}

func (p mockPawn) ID() string         { return p.id }
func (p mockPawn) Position() vec.Vec3 { return p.pos }
func (p mockPawn) Forward() vec.Vec3  { return vec.New(1, 0, 0) }

var (
	in  = vec.New(0, 0, 0)
	out = vec.New(100, 0, 0)
)

func pawns(ps ...mockPawn) []lookat.Occupant {
	result := make([]lookat.Occupant, len(ps))
	for i, p := range ps {
		result[i] = p
	}
	return result
}

// recorder logs callbacks as "kind:id"
type recorder struct {
	calls []string
}

func (r *recorder) listener() Listener {
	rec := func(kind string) func(lookat.Occupant) {
		return func(o lookat.Occupant) { r.calls = append(r.calls, kind+":"+o.ID()) }
	}
	return Listener{
		OnEnter: rec("enter"),
		OnLeave: rec("leave"),
		OnStart: rec("start"),
		OnEnd:   rec("end"),
	}
}

func (r *recorder) take() []string {
	calls := r.calls
	r.calls = nil
	return calls
}

func newTestTracker() (*Tracker, *recorder) {
	tr := NewTracker(NewVolume("hall", vec.New(5, 5, 5), vec.New(-5, -5, -5)))
	rec := &recorder{}
	tr.Listen(rec.listener())
	return tr, rec
}

func TestVolume_Contains(t *testing.T) {
	v := NewVolume("box", vec.New(1, 1, 1), vec.New(-1, -1, -1))

	tests := []struct {
		p    vec.Vec3
		want bool
	}{
		{vec.Zero, true},
		{vec.New(1, 1, 1), true}, // faces are inside
		{vec.New(-1, 0, 0), true},
		{vec.New(1.01, 0, 0), false},
		{vec.New(0, 0, -2), false},
	}

	for _, tt := range tests {
		if got := v.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestTracker_EpisodeTransitions(t *testing.T) {
	tr, rec := newTestTracker()

	tr.Update(pawns(mockPawn{"a", in}))
	if got, want := rec.take(), []string{"enter:a", "start:a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("first enter: got %v, want %v", got, want)
	}

	tr.Update(pawns(mockPawn{"a", in}, mockPawn{"b", in}))
	if got, want := rec.take(), []string{"enter:b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("second enter: got %v, want %v", got, want)
	}
	if tr.Count() != 2 {
		t.Fatalf("Count = %d, want 2", tr.Count())
	}

	tr.Update(pawns(mockPawn{"a", out}, mockPawn{"b", in}))
	if got, want := rec.take(), []string{"leave:a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("partial leave: got %v, want %v", got, want)
	}

	tr.Update(pawns(mockPawn{"b", out}))
	if got, want := rec.take(), []string{"leave:b", "end:b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("last leave: got %v, want %v", got, want)
	}
	if tr.Count() != 0 {
		t.Errorf("Count = %d, want 0", tr.Count())
	}
}

func TestTracker_SwapInOneTick(t *testing.T) {
	tr, rec := newTestTracker()
	tr.Update(pawns(mockPawn{"a", in}))
	rec.take()

	tr.Update(pawns(mockPawn{"a", out}, mockPawn{"b", in}))
	want := []string{"leave:a", "end:a", "enter:b", "start:b"}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("swap: got %v, want %v", got, want)
	}
}

func TestTracker_EntryOrderAndFreshPoses(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Update(pawns(mockPawn{"b", in}))
	tr.Update(pawns(mockPawn{"a", in}, mockPawn{"b", vec.New(1, 0, 0)}))

	occ := tr.Occupants()
	if len(occ) != 2 || occ[0].ID() != "b" || occ[1].ID() != "a" {
		t.Fatalf("expected entry order [b a], got %v", occ)
	}
	if occ[0].Position() != vec.New(1, 0, 0) {
		t.Errorf("occupant pose should be refreshed, got %v", occ[0].Position())
	}
}

func TestTracker_VanishedPawnLeaves(t *testing.T) {
	tr, rec := newTestTracker()
	tr.Update(pawns(mockPawn{"a", in}))
	rec.take()

	// Pawn removed from the scene entirely
	tr.Update(nil)
	if got, want := rec.take(), []string{"leave:a", "end:a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTracker_Clear(t *testing.T) {
	tr, rec := newTestTracker()
	tr.Update(pawns(mockPawn{"a", in}, mockPawn{"b", in}))
	rec.take()

	tr.Clear()
	want := []string{"leave:a", "leave:b", "end:b"}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTracker_OutsidePawnsIgnored(t *testing.T) {
	tr, rec := newTestTracker()
	tr.Update(pawns(mockPawn{"a", out}))

	if tr.Count() != 0 || len(rec.take()) != 0 {
		t.Error("pawns outside the volume should not be tracked")
	}
}

func TestTracker_CancelListener(t *testing.T) {
	tr, rec := newTestTracker()
	other := &recorder{}
	cancel := tr.Listen(other.listener())
	if tr.ListenerCount() != 2 {
		t.Fatalf("ListenerCount = %d, want 2", tr.ListenerCount())
	}

	cancel()
	if tr.ListenerCount() != 1 {
		t.Fatalf("ListenerCount = %d, want 1", tr.ListenerCount())
	}
	cancel()
	if tr.ListenerCount() != 1 {
		t.Errorf("second cancel removed another listener")
	}

	tr.Update(pawns(mockPawn{"a", in}))
	if len(other.calls) != 0 {
		t.Errorf("cancelled listener got %v", other.calls)
	}
	if got := rec.take(); len(got) != 2 {
		t.Errorf("remaining listener got %v, want enter and start", got)
	}
}
