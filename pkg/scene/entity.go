// Package scene holds the entities the look triggers observe: pawns that
// occupy volumes and aim somewhere, and named targets they can be asked to look at.
package scene

import (
	"time"

	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// Kind distinguishes pawns from static targets
type Kind string

const (
	KindPawn   Kind = "pawn"
	KindTarget Kind = "target"
)

// Entity is a pawn or target in world coordinates
type Entity struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Kind     Kind      `json:"kind"`
	Position vec.Vec3  `json:"position"`
	Forward  vec.Vec3  `json:"forward"`         // Aim direction; zero for targets
	Owner    string    `json:"owner,omitempty"` // Ingest connection that reported it
	LastSeen time.Time `json:"last_seen"`
}

// Pawn adapts an entity copy to lookat.Occupant
type Pawn struct {
	e Entity
}

func (p Pawn) ID() string         { return p.e.ID }
func (p Pawn) Position() vec.Vec3 { return p.e.Position }
func (p Pawn) Forward() vec.Vec3  { return p.e.Forward }

// Entity returns the underlying entity copy
func (p Pawn) Entity() Entity { return p.e }
