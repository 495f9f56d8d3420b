package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-looktrigger/pkg/lookat"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

var (
	// ErrNotFound is returned for unknown entity IDs
	ErrNotFound = errors.New("entity not found")

	// ErrNotOwner is returned when a caller touches a pawn reported by someone else
	ErrNotOwner = errors.New("pawn owned by another connection")

	// ErrNotPawn is returned when a pawn operation names a target
	ErrNotPawn = errors.New("entity is not a pawn")
)

// Scene maintains the entities in world coordinates
type Scene struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	names    map[string]string // target name -> entity ID
	order    []string          // insertion order, for stable iteration

	now func() time.Time
}

// New creates an empty scene
func New() *Scene {
	return &Scene{
		entities: make(map[string]*Entity),
		names:    make(map[string]string),
		now:      time.Now,
	}
}

// SetClock overrides the time source (tests)
func (s *Scene) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// UpsertPawn updates or creates a pawn from a pose report. An empty id gets a
// generated one. Returns a copy of the stored entity.
func (s *Scene) UpsertPawn(id, name, owner string, position, forward vec.Vec3) Entity {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertLocked(id, name, owner, position, forward)
}

// UpsertOwnedPawn is UpsertPawn for a pose stream: the ownership check and the
// write happen under one lock. An unowned pawn is claimed by owner.
func (s *Scene) UpsertOwnedPawn(id, name, owner string, position, forward vec.Vec3) (Entity, error) {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entities[id]; exists {
		if e.Kind != KindPawn {
			return Entity{}, fmt.Errorf("%w: %s", ErrNotPawn, id)
		}
		if e.Owner != "" && e.Owner != owner {
			return Entity{}, fmt.Errorf("%w: %s", ErrNotOwner, id)
		}
	}
	return s.upsertLocked(id, name, owner, position, forward), nil
}

func (s *Scene) upsertLocked(id, name, owner string, position, forward vec.Vec3) Entity {
	now := s.now()
	if e, exists := s.entities[id]; exists {
		e.Position = position
		e.Forward = forward
		e.LastSeen = now
		if name != "" {
			e.Name = name
		}
		if owner != "" {
			e.Owner = owner
		}
		return *e
	}

	e := &Entity{
		ID:       id,
		Name:     name,
		Kind:     KindPawn,
		Position: position,
		Forward:  forward,
		Owner:    owner,
		LastSeen: now,
	}
	s.entities[id] = e
	s.order = append(s.order, id)
	return *e
}

// AddTarget registers a named look target. Names are unique.
func (s *Scene) AddTarget(name string, position vec.Vec3) (Entity, error) {
	if name == "" {
		return Entity{}, fmt.Errorf("target name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[name]; exists {
		return Entity{}, fmt.Errorf("target %q already exists", name)
	}

	e := &Entity{
		ID:       uuid.New().String(),
		Name:     name,
		Kind:     KindTarget,
		Position: position,
		LastSeen: s.now(),
	}
	s.entities[e.ID] = e
	s.names[name] = e.ID
	s.order = append(s.order, e.ID)
	return *e, nil
}

// MoveTarget repositions a target by name or ID
func (s *Scene) MoveTarget(ref string, position vec.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(ref)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	e.Position = position
	e.LastSeen = s.now()
	return nil
}

// Remove deletes an entity. Handles resolved from it report unavailable.
func (s *Scene) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.removeLocked(e)
	return nil
}

// RemoveOwnedPawn deletes one pawn if owner reported it
func (s *Scene) RemoveOwnedPawn(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists || e.Kind != KindPawn {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.Owner != owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, id)
	}
	s.removeLocked(e)
	return nil
}

// RemoveOwned deletes every pawn reported by owner and returns how many went
func (s *Scene) RemoveOwned(owner string) int {
	if owner == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range append([]string(nil), s.order...) {
		if e := s.entities[id]; e != nil && e.Kind == KindPawn && e.Owner == owner {
			s.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Forget removes pawns not updated for longer than timeout and returns their IDs
func (s *Scene) Forget(timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var forgotten []string
	for _, id := range append([]string(nil), s.order...) {
		e := s.entities[id]
		if e == nil || e.Kind != KindPawn {
			continue
		}
		if now.Sub(e.LastSeen) > timeout {
			s.removeLocked(e)
			forgotten = append(forgotten, id)
		}
	}
	return forgotten
}

func (s *Scene) removeLocked(e *Entity) {
	delete(s.entities, e.ID)
	if e.Kind == KindTarget && s.names[e.Name] == e.ID {
		delete(s.names, e.Name)
	}
	for i, id := range s.order {
		if id == e.ID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// lookup finds by target name first, then by ID. Caller holds the lock.
func (s *Scene) lookup(ref string) *Entity {
	if id, ok := s.names[ref]; ok {
		return s.entities[id]
	}
	return s.entities[ref]
}

// Get returns a copy of an entity by ID or target name
func (s *Scene) Get(ref string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.lookup(ref)
	if e == nil {
		return Entity{}, false
	}
	return *e, true
}

// Pawns returns every pawn as an occupant, in insertion order
func (s *Scene) Pawns() []lookat.Occupant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]lookat.Occupant, 0, len(s.order))
	for _, id := range s.order {
		if e := s.entities[id]; e.Kind == KindPawn {
			result = append(result, Pawn{e: *e})
		}
	}
	return result
}

// All returns copies of every entity sorted by kind then name/ID
func (s *Scene) All() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Len returns the number of entities
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Resolve implements lookat.TargetResolver. The ref is a target name or any
// entity ID, so pawns can be asked to look at each other.
func (s *Scene) Resolve(ref lookat.TargetRef) (lookat.PositionProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.lookup(string(ref))
	if e == nil {
		return nil, fmt.Errorf("%w: %q", lookat.ErrTargetUnresolved, string(ref))
	}
	return &handle{scene: s, id: e.ID}, nil
}

// handle is a live reference to a resolved entity
type handle struct {
	scene *Scene
	id    string
}

func (h *handle) Position() (vec.Vec3, bool) {
	h.scene.mu.RLock()
	defer h.scene.mu.RUnlock()

	e, ok := h.scene.entities[h.id]
	if !ok {
		return vec.Vec3{}, false
	}
	return e.Position, true
}
