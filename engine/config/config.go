package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// MultiDrawMode selects how the indirect command table is issued.
type MultiDrawMode string

const (
	// MultiDrawAuto uses multi-draw when the device reports support for it.
	MultiDrawAuto MultiDrawMode = "auto"
	// MultiDrawOn requires multi-draw.
	MultiDrawOn MultiDrawMode = "on"
	// MultiDrawOff always issues one draw per command.
	MultiDrawOff MultiDrawMode = "off"
)

// CullTest selects the visibility test the cull pass applies to every instance.
type CullTest string

const (
	CullDistance CullTest = "distance"
	CullFrustum  CullTest = "frustum"
	CullBoth     CullTest = "both"
)

// Backend names the device implementation the engine renders through.
type Backend string

const (
	BackendWGPU     Backend = "wgpu"
	BackendVulkan   Backend = "vulkan"
	BackendSoftware Backend = "software"
)

// Duration wraps time.Duration so config files can write "250ms" or "1s".
type Duration time.Duration

// UnmarshalText parses a Go duration string. Used by go-toml.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", string(b))
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML parses a Go duration string from a YAML scalar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Window holds the presentation surface settings.
type Window struct {
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
	Title  string `toml:"title" yaml:"title"`
	VSync  bool   `toml:"vsync" yaml:"vsync"`
}

// Shaders holds precompiled SPIR-V module paths consumed by the Vulkan backend.
type Shaders struct {
	CullCompute    string `toml:"cull_compute" yaml:"cull_compute"`
	PlantVertex    string `toml:"plant_vertex" yaml:"plant_vertex"`
	PlantFragment  string `toml:"plant_fragment" yaml:"plant_fragment"`
	NoodleVertex   string `toml:"noodle_vertex" yaml:"noodle_vertex"`
	NoodleFragment string `toml:"noodle_fragment" yaml:"noodle_fragment"`
}

// Config carries every tunable of the indirect-draw demos. A zero Config is not usable; start
// from Default or New.
type Config struct {
	PrimitiveCount        int     `toml:"primitive_count" yaml:"primitive_count"`
	PlantTypes            int     `toml:"plant_types" yaml:"plant_types"`
	InstancesPerPrimitive int     `toml:"instances_per_primitive" yaml:"instances_per_primitive"`
	PrimitiveGridWidth    int     `toml:"primitive_grid_width" yaml:"primitive_grid_width"`
	PrimitiveGap          float32 `toml:"primitive_gap" yaml:"primitive_gap"`
	CullDistance          float32 `toml:"cull_distance" yaml:"cull_distance"`
	PlacementRadius       float32 `toml:"placement_radius" yaml:"placement_radius"`
	InstanceScale         float32 `toml:"instance_scale" yaml:"instance_scale"`

	ClusterTriangles     int     `toml:"cluster_triangles" yaml:"cluster_triangles"`
	ClusterInstanceCount int     `toml:"cluster_instance_count" yaml:"cluster_instance_count"`
	ClusterRadius        float32 `toml:"cluster_radius" yaml:"cluster_radius"`

	Benchmark bool  `toml:"benchmark" yaml:"benchmark"`
	Seed      int64 `toml:"seed" yaml:"seed"`

	LocalGroupSize int           `toml:"local_group_size" yaml:"local_group_size"`
	FramesInFlight int           `toml:"frames_in_flight" yaml:"frames_in_flight"`
	FenceTimeout   Duration      `toml:"fence_timeout" yaml:"fence_timeout"`
	MultiDraw      MultiDrawMode `toml:"multi_draw" yaml:"multi_draw"`
	CullTest       CullTest      `toml:"cull_test" yaml:"cull_test"`
	Backend        Backend       `toml:"backend" yaml:"backend"`
	Workers        int           `toml:"workers" yaml:"workers"`

	Window  Window  `toml:"window" yaml:"window"`
	Shaders Shaders `toml:"shaders" yaml:"shaders"`

	// now supplies the time-derived seed. Tests replace it.
	now func() time.Time
}

// Default returns the configuration the demos ship with.
//
// Returns:
//   - *Config: a fresh configuration holding the default values
func Default() *Config {
	return &Config{
		PrimitiveCount:        32,
		PlantTypes:            4,
		InstancesPerPrimitive: 32,
		PrimitiveGridWidth:    4,
		PrimitiveGap:          5,
		CullDistance:          100,
		PlacementRadius:       2,
		InstanceScale:         2,
		ClusterTriangles:      64,
		ClusterInstanceCount:  4096,
		ClusterRadius:         25,
		LocalGroupSize:        64,
		FramesInFlight:        2,
		FenceTimeout:          Duration(time.Second),
		MultiDraw:             MultiDrawAuto,
		CullTest:              CullBoth,
		Backend:               BackendWGPU,
		Workers:               4,
		Window: Window{
			Width:  1280,
			Height: 720,
			Title:  "oxy-indirect",
			VSync:  true,
		},
		Shaders: Shaders{
			CullCompute:    "shaders/cull.comp.spv",
			PlantVertex:    "shaders/indirectdraw.vert.spv",
			PlantFragment:  "shaders/indirectdraw.frag.spv",
			NoodleVertex:   "shaders/noodlebatch.vert.spv",
			NoodleFragment: "shaders/noodlebatch.frag.spv",
		},
		now: time.Now,
	}
}

// New builds a configuration from the defaults and the supplied options.
//
// Parameters:
//   - opts: option functions applied in order
//
// Returns:
//   - *Config: the configured instance
func New(opts ...ConfigOption) *Config {
	c := Default()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ObjectCount is the number of instances in the per-primitive scene.
func (c *Config) ObjectCount() int {
	return c.PrimitiveCount * c.InstancesPerPrimitive
}

// EffectiveSeed returns the placement seed. Benchmark mode always yields 0 so runs are comparable;
// otherwise an explicit Seed wins over the clock.
//
// Returns:
//   - uint64: the seed handed to scene placement
func (c *Config) EffectiveSeed() uint64 {
	if c.Benchmark {
		return 0
	}
	if c.Seed != 0 {
		return uint64(c.Seed)
	}
	now := c.now
	if now == nil {
		now = time.Now
	}
	return uint64(now().Unix())
}

// Timeout returns FenceTimeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FenceTimeout)
}

// Validate reports every field that holds an unusable value.
//
// Returns:
//   - error: nil when valid, otherwise a joined error naming each bad field
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, errors.Newf("%s must be positive, got %d", name, v))
		}
	}
	positivef := func(name string, v float32) {
		if v <= 0 {
			errs = append(errs, errors.Newf("%s must be positive, got %g", name, v))
		}
	}

	positive("primitive_count", c.PrimitiveCount)
	positive("plant_types", c.PlantTypes)
	positive("instances_per_primitive", c.InstancesPerPrimitive)
	positive("primitive_grid_width", c.PrimitiveGridWidth)
	positive("cluster_triangles", c.ClusterTriangles)
	positive("cluster_instance_count", c.ClusterInstanceCount)
	positive("local_group_size", c.LocalGroupSize)
	positive("workers", c.Workers)
	positivef("cull_distance", c.CullDistance)
	positivef("placement_radius", c.PlacementRadius)
	positivef("instance_scale", c.InstanceScale)
	positivef("cluster_radius", c.ClusterRadius)

	if c.PrimitiveGap < 0 {
		errs = append(errs, errors.Newf("primitive_gap must not be negative, got %g", c.PrimitiveGap))
	}
	if c.FramesInFlight < 1 || c.FramesInFlight > 3 {
		errs = append(errs, errors.Newf("frames_in_flight must be 1..3, got %d", c.FramesInFlight))
	}
	if c.FenceTimeout <= 0 {
		errs = append(errs, errors.Newf("fence_timeout must be positive, got %s", time.Duration(c.FenceTimeout)))
	}
	if uint64(c.PrimitiveCount)*uint64(c.InstancesPerPrimitive) > 1<<32-1 {
		errs = append(errs, errors.Newf("object count %d*%d overflows uint32", c.PrimitiveCount, c.InstancesPerPrimitive))
	}
	if err := oneOf("multi_draw", string(c.MultiDraw), MultiDrawAuto, MultiDrawOn, MultiDrawOff); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("cull_test", string(c.CullTest), CullDistance, CullFrustum, CullBoth); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("backend", string(c.Backend), BackendWGPU, BackendVulkan, BackendSoftware); err != nil {
		errs = append(errs, err)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}

	return stderrors.Join(errs...)
}

func oneOf[T ~string](field, got string, allowed ...T) error {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		if string(a) == got {
			return nil
		}
		names[i] = string(a)
	}
	return errors.Newf("%s must be one of %s, got %q", field, strings.Join(names, "|"), got)
}

// String renders the settings that shape the scene, for the startup log line.
func (c *Config) String() string {
	return fmt.Sprintf("primitives=%d instances/prim=%d clusters(tri=%d inst=%d) seed=%d backend=%s cull=%s multidraw=%s frames=%d",
		c.PrimitiveCount, c.InstancesPerPrimitive, c.ClusterTriangles, c.ClusterInstanceCount,
		c.EffectiveSeed(), c.Backend, c.CullTest, c.MultiDraw, c.FramesInFlight)
}
