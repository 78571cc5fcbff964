package engine

import "math"

type Kind string

const (
	KindPerson Kind = "person"
	KindHouse  Kind = "house"
	KindStore  Kind = "store"
)

type MoveMode string

const (
	ModeWalk MoveMode = "walk"
	ModeRun  MoveMode = "run"
)

type Vec3 struct{ X, Y, Z float64 }

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Len() float64         { return math.Sqrt(v.Dot(v)) }

// Normalize returns the unit vector, or the zero vector for near-zero input.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < 1e-12 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func Dist(a, b Vec3) float64 { return a.Sub(b).Len() }

// Movement is present on a person iff it has not yet reached its destination.
type Movement struct {
	Target Vec3
	Speed  float64
	Mode   MoveMode
}

type Entity struct {
	ID   string
	Name string
	Kind Kind
	Sex  string // people only, echoed from the area config

	Pos        Vec3
	Properties map[string]any // opaque to the engine

	// Person-only state. Houses and stores never acquire these.
	Awake      bool
	Move       *Movement
	Facing     *Vec3  // unit vector, set by look
	WakeAtTick uint64 // 0 = no pending wake deadline
}

// Movable reports whether movement and sleep commands apply to this entity.
func (e *Entity) Movable() bool { return e.Kind == KindPerson }
