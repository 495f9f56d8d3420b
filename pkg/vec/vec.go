// Package vec provides the small 3D vector type used for positions and aim directions.
package vec

import (
	"encoding/json"
	"fmt"
	"math"
)

// Vec3 is a float64 3D vector in world units
type Vec3 struct {
	X, Y, Z float64
}

// Zero is the zero vector
var Zero = Vec3{}

// New returns a vector from components
func New(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// From builds a vector from a 3-element slice (config and wire form)
func From(s []float64) (Vec3, error) {
	if len(s) != 3 {
		return Vec3{}, fmt.Errorf("vector needs 3 components, got %d", len(s))
	}
	return Vec3{s[0], s[1], s[2]}, nil
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) LenSq() float64 {
	return v.Dot(v)
}

func (v Vec3) Len() float64 {
	return math.Sqrt(v.LenSq())
}

// Normalize returns the unit vector. The zero vector stays zero.
func (v Vec3) Normalize() Vec3 {
	mag := v.Len()
	if mag == 0 {
		return Vec3{}
	}
	inv := 1.0 / mag
	return Vec3{v.X * inv, v.Y * inv, v.Z * inv}
}

// IsZero reports whether all components are zero
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Slice returns the [x, y, z] form
func (v Vec3) Slice() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// MarshalJSON encodes as [x, y, z]
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{v.X, v.Y, v.Z})
}

// UnmarshalJSON decodes from [x, y, z]
func (v *Vec3) UnmarshalJSON(data []byte) error {
	var s []float64
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode vector: %w", err)
	}
	out, err := From(s)
	if err != nil {
		return err
	}
	*v = out
	return nil
}
