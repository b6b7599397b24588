package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 1024, c.ObjectCount())
	assert.Equal(t, 2, c.FramesInFlight)
	assert.Equal(t, time.Second, c.Timeout())
}

func TestEffectiveSeed(t *testing.T) {
	clock := func() time.Time { return time.Unix(1234, 0) }

	assert.Equal(t, uint64(1234), New(WithClock(clock)).EffectiveSeed(), "clock-derived")
	assert.Equal(t, uint64(7), New(WithClock(clock), WithSeed(7)).EffectiveSeed(), "explicit seed")
	assert.Equal(t, uint64(0), New(WithClock(clock), WithSeed(7), WithBenchmark(true)).EffectiveSeed(), "benchmark pins zero")
}

func TestValidateCollectsEveryField(t *testing.T) {
	c := New(
		WithPrimitives(0, -1),
		WithFramesInFlight(5),
		WithFenceTimeout(0),
		WithMultiDraw("sometimes"),
		WithCullTest("occlusion"),
	)
	err := c.Validate()
	require.Error(t, err)
	for _, field := range []string{
		"primitive_count", "instances_per_primitive", "frames_in_flight",
		"fence_timeout", "multi_draw", "cull_test",
	} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
primitive_count = 8
instances_per_primitive = 16
fence_timeout = "250ms"
cull_test = "distance"
backend = "software"

[window]
width = 640
height = 480
`), 0o644))

	c, err := Load(path, WithBenchmark(true))
	require.NoError(t, err)
	assert.Equal(t, 8, c.PrimitiveCount)
	assert.Equal(t, 128, c.ObjectCount())
	assert.Equal(t, 250*time.Millisecond, c.Timeout())
	assert.Equal(t, CullDistance, c.CullTest)
	assert.Equal(t, BackendSoftware, c.Backend)
	assert.Equal(t, 640, c.Window.Width)
	assert.Equal(t, "oxy-indirect", c.Window.Title, "untouched fields keep defaults")
	assert.True(t, c.Benchmark)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cluster_triangles: 32
cluster_instance_count: 100
frames_in_flight: 1
fence_timeout: 2s
multi_draw: "off"
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, c.ClusterTriangles)
	assert.Equal(t, 100, c.ClusterInstanceCount)
	assert.Equal(t, 1, c.FramesInFlight)
	assert.Equal(t, 2*time.Second, c.Timeout())
	assert.Equal(t, MultiDrawOff, c.MultiDraw)
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("no_such_field = 1\n"), 0o644))
	_, err = Load(unknown)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yml")
	require.NoError(t, os.WriteFile(invalid, []byte("local_group_size: 0\n"), 0o644))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "local_group_size")

	ini := filepath.Join(dir, "demo.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = Load(ini)
	assert.ErrorContains(t, err, "unsupported config format")
}
