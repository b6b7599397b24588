package main

import (
	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newIndirectDrawCommand(opts *rootOptions) *cobra.Command {
	var culled bool
	cmd := &cobra.Command{
		Use:   "indirectdraw",
		Short: "Plant grid drawn from one indirect command per primitive",
		Long: "Renders the plant grid with one multi-draw (or one draw per primitive on devices " +
			"without multiDrawIndirect). With --cull a compute pass rewrites the instance counts " +
			"every frame and hands the indirect buffer between the compute and graphics queues.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := scene.VariantIndirectDraw
			if culled {
				v = scene.VariantCulled
			}
			return runDemo(cmd, opts, v, "")
		},
	}
	cmd.Flags().BoolVar(&culled, "cull", false, "regenerate instance counts with the compute cull pass")
	return cmd
}

func newNoodleBatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "noodlebatch",
		Short: "Cluster-decomposed tubes drawn through a single indirect command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, opts, scene.VariantNoodleBatch, "")
		},
	}
}

func newHeadlessCommand(opts *rootOptions) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "headless",
		Short: "Run a demo on the in-memory device without a window",
		Long: "Runs the full frame protocol on the software device: packing, staged upload, the " +
			"host-executed cull pass and the queue ownership barriers. Defaults to 120 frames.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := parseVariant(variant)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("frames") {
				opts.frames = 120
			}
			return runDemo(cmd, opts, v, config.BackendSoftware)
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "indirectdraw", "demo: indirectdraw, indirectdraw-culled or noodlebatch")
	return cmd
}

func parseVariant(s string) (scene.Variant, error) {
	for _, v := range []scene.Variant{scene.VariantIndirectDraw, scene.VariantCulled, scene.VariantNoodleBatch} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, errors.Newf("unknown variant %q", s)
}
