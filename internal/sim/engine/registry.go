package engine

import (
	"fmt"

	"github.com/iplayfast/gameai/internal/sim/area"
)

// Registry is pure storage for the canonical entity set. It holds no policy:
// validation lives in the command processor, and all mutation funnels through
// the single sim goroutine, so no locking is needed here.
//
// Iteration follows insertion order (the area config order) so that every
// per-tick scan is deterministic.
type Registry struct {
	entities map[string]*Entity
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{entities: map[string]*Entity{}}
}

func (r *Registry) Add(e *Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity with empty id")
	}
	if _, ok := r.entities[e.ID]; ok {
		return fmt.Errorf("duplicate entity id %q", e.ID)
	}
	r.entities[e.ID] = e
	r.order = append(r.order, e.ID)
	return nil
}

func (r *Registry) Get(id string) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// ByName resolves an entity by display name, first match in insertion order.
func (r *Registry) ByName(name string) (*Entity, bool) {
	for _, id := range r.order {
		if e := r.entities[id]; e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Mutate applies fn to the entity as a unit. With all writes funneled through
// the sim goroutine this is lookup-plus-call, but keeping mutation behind one
// door preserves the invariant that nothing else touches entity state.
func (r *Registry) Mutate(id string, fn func(*Entity) error) error {
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("entity %q not found", id)
	}
	return fn(e)
}

// All returns entities in insertion order. Callers outside the sim goroutine
// must treat the result as read-only.
func (r *Registry) All() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entities[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// NewRegistryFromArea seeds a registry from the area config. Called exactly
// once at startup; entities are never created or destroyed afterwards.
func NewRegistryFromArea(cfg area.Config) (*Registry, error) {
	r := NewRegistry()
	for _, h := range cfg.Houses {
		e := &Entity{
			ID:         h.ID,
			Name:       h.Name,
			Kind:       KindHouse,
			Pos:        Vec3{X: h.Location.X, Y: h.Location.Y, Z: h.Location.Z},
			Properties: h.Properties,
		}
		if err := r.Add(e); err != nil {
			return nil, err
		}
	}
	for _, s := range cfg.Stores {
		e := &Entity{
			ID:         s.ID,
			Name:       s.Name,
			Kind:       KindStore,
			Pos:        Vec3{X: s.Location.X, Y: s.Location.Y, Z: s.Location.Z},
			Properties: s.Properties,
		}
		if err := r.Add(e); err != nil {
			return nil, err
		}
	}
	for _, p := range cfg.People {
		e := &Entity{
			ID:         p.ID,
			Name:       p.Name,
			Kind:       KindPerson,
			Sex:        p.Sex,
			Pos:        Vec3{X: p.Location.X, Y: p.Location.Y, Z: p.Location.Z},
			Properties: p.Properties,
			Awake:      p.State != "sleeping",
		}
		if err := r.Add(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}
