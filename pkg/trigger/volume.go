// Package trigger tracks which pawns are inside a trigger volume and reports
// enter/leave and empty<->occupied transitions.
package trigger

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-looktrigger/pkg/lookat"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// Volume is an axis-aligned box in world coordinates
type Volume struct {
	Name string   `json:"name"`
	Min  vec.Vec3 `json:"min"`
	Max  vec.Vec3 `json:"max"`
}

// NewVolume builds a volume from two corners in any order
func NewVolume(name string, a, b vec.Vec3) Volume {
	return Volume{
		Name: name,
		Min:  vec.New(math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z)),
		Max:  vec.New(math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z)),
	}
}

// Contains reports whether p is inside the box, faces included
func (v Volume) Contains(p vec.Vec3) bool {
	return p.X >= v.Min.X && p.X <= v.Max.X &&
		p.Y >= v.Min.Y && p.Y <= v.Max.Y &&
		p.Z >= v.Min.Z && p.Z <= v.Max.Z
}

func (v Volume) String() string {
	return fmt.Sprintf("%s[%v..%v]", v.Name, v.Min, v.Max)
}

// Listener receives membership callbacks. Any field may be nil.
type Listener struct {
	OnEnter func(occ lookat.Occupant)
	OnLeave func(occ lookat.Occupant)
	OnStart func(occ lookat.Occupant) // Volume went from empty to occupied
	OnEnd   func(occ lookat.Occupant) // Last occupant left
}

// Tracker keeps the membership of one volume. It implements lookat.Occupancy.
// Not safe for concurrent use; the engine drives it from the tick loop.
type Tracker struct {
	volume    Volume
	occupants []lookat.Occupant // entry order
	listeners []*Listener
}

// NewTracker creates a tracker for a volume
func NewTracker(volume Volume) *Tracker {
	return &Tracker{volume: volume}
}

// Volume returns the tracked volume
func (t *Tracker) Volume() Volume {
	return t.volume
}

// Listen adds a membership listener. The returned func unregisters it.
func (t *Tracker) Listen(l Listener) (cancel func()) {
	ref := &l
	t.listeners = append(t.listeners, ref)
	return func() { t.unlisten(ref) }
}

// unlisten builds a new slice so an emit in progress keeps its view
func (t *Tracker) unlisten(ref *Listener) {
	kept := make([]*Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		if l != ref {
			kept = append(kept, l)
		}
	}
	t.listeners = kept
}

// ListenerCount returns the number of registered listeners
func (t *Tracker) ListenerCount() int {
	return len(t.listeners)
}

// Count implements lookat.Occupancy
func (t *Tracker) Count() int {
	return len(t.occupants)
}

// Occupants implements lookat.Occupancy; the first entry is the earliest arrival
func (t *Tracker) Occupants() []lookat.Occupant {
	out := make([]lookat.Occupant, len(t.occupants))
	copy(out, t.occupants)
	return out
}

// Update recomputes membership from the current pawn set. Leaves are
// processed before enters, so a full swap in one tick ends one episode and
// starts another.
func (t *Tracker) Update(pawns []lookat.Occupant) {
	inside := make(map[string]lookat.Occupant, len(pawns))
	for _, p := range pawns {
		if t.volume.Contains(p.Position()) {
			inside[p.ID()] = p
		}
	}

	// Leaves, and refresh poses of those who stay
	kept := t.occupants[:0]
	var left []lookat.Occupant
	for _, occ := range t.occupants {
		if fresh, ok := inside[occ.ID()]; ok {
			kept = append(kept, fresh)
			delete(inside, occ.ID())
		} else {
			left = append(left, occ)
		}
	}
	t.occupants = kept

	for _, occ := range left {
		t.emit(func(l Listener) {
			if l.OnLeave != nil {
				l.OnLeave(occ)
			}
		})
	}
	if len(left) > 0 && len(t.occupants) == 0 {
		last := left[len(left)-1]
		t.emit(func(l Listener) {
			if l.OnEnd != nil {
				l.OnEnd(last)
			}
		})
	}

	// Enters, in pawn order
	for _, p := range pawns {
		occ, ok := inside[p.ID()]
		if !ok {
			continue
		}
		delete(inside, p.ID())

		wasEmpty := len(t.occupants) == 0
		t.occupants = append(t.occupants, occ)
		t.emit(func(l Listener) {
			if l.OnEnter != nil {
				l.OnEnter(occ)
			}
		})
		if wasEmpty {
			t.emit(func(l Listener) {
				if l.OnStart != nil {
					l.OnStart(occ)
				}
			})
		}
	}
}

// Clear empties the volume, firing leave/end callbacks
func (t *Tracker) Clear() {
	t.Update(nil)
}

func (t *Tracker) emit(fn func(Listener)) {
	for _, l := range t.listeners {
		fn(*l)
	}
}
