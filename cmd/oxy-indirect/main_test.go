package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/common"
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessRuns(t *testing.T) {
	for _, v := range []string{"indirectdraw", "indirectdraw-culled", "noodlebatch"} {
		t.Run(v, func(t *testing.T) {
			cmd := newRootCommand()
			cmd.SetArgs([]string{"headless", "--variant", v, "--frames", "3", "--benchmark", "--log-level", "warn"})
			require.NoError(t, cmd.Execute())
		})
	}
}

func TestHeadlessRejectsUnknownVariant(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"headless", "--variant", "cubes"})
	assert.ErrorContains(t, cmd.Execute(), "unknown variant")
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"headless", "--log-level", "loud"})
	assert.ErrorContains(t, cmd.Execute(), "--log-level")
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.toml")
	require.NoError(t, os.WriteFile(path, []byte("cull_test = \"frustum\"\nseed = 7\nworkers = 2\n"), 0o600))

	opts := &rootOptions{}
	cmd := newRoot(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--seed", "9"}))

	cfg, err := opts.config(cmd)
	require.NoError(t, err)
	assert.Equal(t, config.CullFrustum, cfg.CullTest, "file value kept")
	assert.EqualValues(t, 9, cfg.Seed, "flag wins")
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, config.BackendWGPU, cfg.Backend, "unset flags leave defaults")
}

func TestParseVariant(t *testing.T) {
	v, err := parseVariant("noodlebatch")
	require.NoError(t, err)
	assert.Equal(t, scene.VariantNoodleBatch, v)
}

func TestSceneCameraSeesGridCentre(t *testing.T) {
	cfg := config.Default()
	cam := sceneCamera(cfg, scene.VariantIndirectDraw)
	view := cam.View()

	centre := cam.Controller().Target()
	assert.InDelta(t, 7.5, centre.X(), 1e-5)
	assert.InDelta(t, 17.5, centre.Z(), 1e-5)

	f := common.ExtractFrustum(view.Projection.Mul4(view.View))
	assert.True(t, f.SphereVisible(centre, 1))
}
