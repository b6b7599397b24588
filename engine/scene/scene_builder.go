package scene

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Names of the drawables a scene may hold.
const (
	DrawablePlants  = "plants"
	DrawableNoodles = "noodles"
	DrawableGround  = "ground"
	DrawableSky     = "skysphere"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithVariant selects the demonstration the scene is authored for. Defaults to VariantIndirectDraw.
//
// Parameters:
//   - v: the variant
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithVariant(v Variant) SceneBuilderOption {
	return func(s *scene) {
		s.variant = v
	}
}

// WithGround toggles the static ground plane.
func WithGround(enabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.withGround = enabled
	}
}

// WithSky toggles the static sky sphere.
func WithSky(enabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.withSky = enabled
	}
}

// WithComputeWorkers sets the number of worker goroutines used for per-primitive placement.
// Defaults to the configured worker count.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}

// NewScene authors a scene from cfg. Geometry is procedural, placement is seeded by
// cfg.EffectiveSeed, and every drawable is validated before return.
//
// Parameters:
//   - name: the name of the scene
//   - cfg: the configuration (must not be nil)
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the authored scene
//   - error: invalid configuration or a drawable that fails validation
func NewScene(name string, cfg *config.Config, options ...SceneBuilderOption) (Scene, error) {
	if cfg == nil {
		return nil, errors.New("scene: NewScene requires a non-nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "scene: invalid config")
	}

	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		variant:        VariantIndirectDraw,
		seed:           cfg.EffectiveSeed(),
		cfg:            cfg,
		withGround:     true,
		withSky:        true,
		computeWorkers: cfg.Workers,
	}
	for _, option := range options {
		option(s)
	}

	if s.withSky {
		s.drawables = append(s.drawables, buildSky())
	}
	if s.withGround {
		s.drawables = append(s.drawables, buildGround(cfg))
	}

	var err error
	switch s.variant {
	case VariantIndirectDraw, VariantCulled:
		cat := CategoryStatic
		if s.variant == VariantCulled {
			cat = CategoryCulled
		}
		pool := worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)
		s.main, err = BuildPlants(cfg, s.seed, cat, pool)
	case VariantNoodleBatch:
		s.main, err = BuildNoodles(cfg, s.seed)
	default:
		err = errors.Newf("scene: unknown variant %d", s.variant)
	}
	if err != nil {
		return nil, err
	}
	s.drawables = append(s.drawables, s.main)

	for _, d := range s.drawables {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	slog.Info("scene authored",
		"scene", name, "variant", s.variant.String(), "seed", s.seed,
		"drawables", len(s.drawables), "objects", s.main.ObjectCount())
	return s, nil
}

// BuildPlants authors the plant grid: cfg.PrimitiveCount primitives on a grid cfg.PrimitiveGridWidth
// wide, each owning cfg.InstancesPerPrimitive contiguous instances. Primitives are placed in
// parallel on pool; each draws from its own derived seed so the result does not depend on
// scheduling.
//
// Parameters:
//   - cfg: the configuration
//   - seed: scene placement seed
//   - cat: CategoryStatic or CategoryCulled
//   - pool: worker pool for the per-primitive placement
//
// Returns:
//   - *Drawable: the plant drawable
//   - error: a failed placement task
func BuildPlants(cfg *config.Config, seed uint64, cat Category, pool worker.DynamicWorkerPool) (*Drawable, error) {
	var meshes MeshSet
	ranges := make([]MeshRange, cfg.PlantTypes)
	materials := make([]Material, cfg.PlantTypes)
	for t := range ranges {
		ranges[t] = meshes.Add(PlantMesh(t))
		materials[t] = Material{Tint: mgl32.Vec4{1, 1, 1, 1}, TextureIndex: uint32(t)}
	}

	perPrim := cfg.InstancesPerPrimitive
	primitives := make([]Primitive, cfg.PrimitiveCount)
	instances := make([]Instance, cfg.PrimitiveCount*perPrim)
	placements := make([]Placement, len(instances))

	for i := range primitives {
		t := i % cfg.PlantTypes
		pos := mgl32.Vec3{
			float32(i%cfg.PrimitiveGridWidth) * cfg.PrimitiveGap,
			0,
			float32(i/cfg.PrimitiveGridWidth) * cfg.PrimitiveGap,
		}
		primitives[i] = Primitive{
			Mesh:          ranges[t],
			Material:      uint32(t),
			Transform:     mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()),
			Position:      pos,
			CullDistance:  cfg.CullDistance,
			InstanceCount: uint32(perPrim),
		}
	}

	// Each task writes a disjoint slice of instances, so no locking is needed.
	err := common.RunTasks(pool, len(primitives), func(i int) error {
		placed := Place(DeriveSeed(seed, i), perPrim, cfg.PlacementRadius, cfg.InstanceScale)
		base := i * perPrim
		tex := primitives[i].Material
		for k, p := range placed {
			instances[base+k] = Instance{
				Rows:      common.Rows(p.Matrix()),
				TexIndex:  tex,
				Primitive: uint32(i),
			}
			placements[base+k] = p
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scene: place plants")
	}

	return &Drawable{
		Name:       DrawablePlants,
		Category:   cat,
		Vertices:   meshes.Vertices,
		Indices:    meshes.Indices,
		Primitives: primitives,
		Instances:  instances,
		Materials:  materials,
		Placements: placements,
	}, nil
}

// noodle tube resolution; 32x32 yields 6144 indices.
const (
	noodleSegments = 32
	noodleSides    = 32
)

// BuildNoodles authors the cluster scene: one tube mesh drawn cfg.ClusterInstanceCount times with
// varied yaw and scale.
//
// Parameters:
//   - cfg: the configuration
//   - seed: scene placement seed
//
// Returns:
//   - *Drawable: the clustered drawable
//   - error: always nil today, kept for symmetry with BuildPlants
func BuildNoodles(cfg *config.Config, seed uint64) (*Drawable, error) {
	var meshes MeshSet
	r := meshes.Add(NoodleMesh(noodleSegments, noodleSides, 2, 0.08))

	placed := PlaceVaried(DeriveSeed(seed, 0), cfg.ClusterInstanceCount, cfg.ClusterRadius)
	instances := make([]Instance, len(placed))
	for i, p := range placed {
		instances[i] = Instance{Rows: common.Rows(p.Matrix())}
	}

	return &Drawable{
		Name:     DrawableNoodles,
		Category: CategoryClustered,
		Vertices: meshes.Vertices,
		Indices:  meshes.Indices,
		Primitives: []Primitive{{
			Mesh:          r,
			Transform:     mgl32.Ident4(),
			CullDistance:  cfg.CullDistance,
			InstanceCount: uint32(len(instances)),
		}},
		Instances:        instances,
		Materials:        []Material{{Tint: mgl32.Vec4{1, 1, 1, 1}}},
		Placements:       placed,
		ClusterTriangles: uint32(cfg.ClusterTriangles),
	}, nil
}

// singleInstance wraps one mesh as a static drawable with one identity-transform instance.
func singleInstance(name string, m Mesh) *Drawable {
	var meshes MeshSet
	r := meshes.Add(m)
	return &Drawable{
		Name:     name,
		Category: CategoryStatic,
		Vertices: meshes.Vertices,
		Indices:  meshes.Indices,
		Primitives: []Primitive{{
			Mesh:          r,
			Transform:     mgl32.Ident4(),
			InstanceCount: 1,
		}},
		Instances: []Instance{{Rows: common.Rows(mgl32.Ident4())}},
		Materials: []Material{{Tint: mgl32.Vec4{1, 1, 1, 1}}},
	}
}

func buildGround(cfg *config.Config) *Drawable {
	rows := (cfg.PrimitiveCount + cfg.PrimitiveGridWidth - 1) / cfg.PrimitiveGridWidth
	extent := float32(max(cfg.PrimitiveGridWidth, rows))*cfg.PrimitiveGap + 4*cfg.PlacementRadius
	return singleInstance(DrawableGround, GroundMesh(max(extent, 2*cfg.ClusterRadius)*2, 16))
}

func buildSky() *Drawable {
	return singleInstance(DrawableSky, SphereMesh(500, 16, 32))
}
