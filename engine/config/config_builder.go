package config

import "time"

// ConfigOption is a functional option for configuring a Config.
// Use the With* functions to create options.
type ConfigOption func(c *Config)

// WithPrimitives sets the primitive count and the instances placed per primitive.
//
// Parameters:
//   - primitives: number of primitives (one indirect command each)
//   - instancesPerPrimitive: instances placed around every primitive
//
// Returns:
//   - ConfigOption: option function to apply
func WithPrimitives(primitives, instancesPerPrimitive int) ConfigOption {
	return func(c *Config) {
		c.PrimitiveCount = primitives
		c.InstancesPerPrimitive = instancesPerPrimitive
	}
}

// WithClusters sets the triangles per cluster and the instance count of the cluster scene.
//
// Parameters:
//   - triangles: triangles per cluster
//   - instances: instances in the cluster scene
//
// Returns:
//   - ConfigOption: option function to apply
func WithClusters(triangles, instances int) ConfigOption {
	return func(c *Config) {
		c.ClusterTriangles = triangles
		c.ClusterInstanceCount = instances
	}
}

// WithBenchmark toggles benchmark mode, which pins the placement seed to 0.
func WithBenchmark(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Benchmark = enabled
	}
}

// WithSeed sets an explicit placement seed used outside benchmark mode.
func WithSeed(seed int64) ConfigOption {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithFramesInFlight sets the depth of the indirect command ring.
//
// Parameters:
//   - n: 1 for a single shared buffer, 2 for parity double buffering
//
// Returns:
//   - ConfigOption: option function to apply
func WithFramesInFlight(n int) ConfigOption {
	return func(c *Config) {
		c.FramesInFlight = n
	}
}

// WithFenceTimeout sets the longest the host waits on the compute fence.
func WithFenceTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.FenceTimeout = Duration(d)
	}
}

// WithMultiDraw selects the draw issue mode.
func WithMultiDraw(mode MultiDrawMode) ConfigOption {
	return func(c *Config) {
		c.MultiDraw = mode
	}
}

// WithCullTest selects the visibility test applied by the cull pass.
func WithCullTest(test CullTest) ConfigOption {
	return func(c *Config) {
		c.CullTest = test
	}
}

// WithBackend selects the device implementation.
func WithBackend(b Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = b
	}
}

// WithWorkers sets the worker-pool size for host-side parallel phases.
func WithWorkers(n int) ConfigOption {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithClock replaces the clock used to derive a seed when none is configured.
func WithClock(now func() time.Time) ConfigOption {
	return func(c *Config) {
		c.now = now
	}
}
