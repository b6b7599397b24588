package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
)

// Variant selects which demonstration a scene is authored for.
type Variant uint8

const (
	// VariantIndirectDraw renders the plant grid from a static command table.
	VariantIndirectDraw Variant = iota
	// VariantCulled renders the plant grid with per-frame GPU culling.
	VariantCulled
	// VariantNoodleBatch renders cluster-decomposed tubes through a single command.
	VariantNoodleBatch
)

func (v Variant) String() string {
	switch v {
	case VariantIndirectDraw:
		return "indirectdraw"
	case VariantCulled:
		return "indirectdraw-culled"
	case VariantNoodleBatch:
		return "noodlebatch"
	default:
		return "unknown"
	}
}

// Scene is the host-side description of everything one demonstration draws. It holds no GPU state.
type Scene interface {
	// Name returns the scene name.
	Name() string

	// Variant returns the demonstration the scene was authored for.
	Variant() Variant

	// Seed returns the placement seed the scene was built with.
	Seed() uint64

	// Drawables returns every drawable in draw order: sky, ground, then the main drawable.
	Drawables() []*Drawable

	// Drawable returns the drawable with the given name, or nil.
	//
	// Parameters:
	//   - name: drawable name
	//
	// Returns:
	//   - *Drawable: the match or nil
	Drawable(name string) *Drawable

	// Main returns the plant or noodle drawable that carries the instanced workload.
	Main() *Drawable

	// ObjectCount returns the main drawable's instance count.
	ObjectCount() int
}

type scene struct {
	mu *sync.RWMutex

	name    string
	variant Variant
	seed    uint64
	cfg     *config.Config

	drawables []*Drawable
	main      *Drawable

	withGround     bool
	withSky        bool
	computeWorkers int
}

var _ Scene = &scene{}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Variant() Variant {
	return s.variant
}

func (s *scene) Seed() uint64 {
	return s.seed
}

func (s *scene) Drawables() []*Drawable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Drawable, len(s.drawables))
	copy(out, s.drawables)
	return out
}

func (s *scene) Drawable(name string) *Drawable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.drawables {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func (s *scene) Main() *Drawable {
	return s.main
}

func (s *scene) ObjectCount() int {
	if s.main == nil {
		return 0
	}
	return s.main.ObjectCount()
}
