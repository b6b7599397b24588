package main

import (
	"log/slog"
	"os"

	"github.com/Carmen-Shannon/oxy-indirect/engine/config"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every demo.
type rootOptions struct {
	configPath string
	logLevel   string

	backend        string
	multiDraw      string
	cullTest       string
	benchmark      bool
	seed           int64
	framesInFlight int
	workers        int
	frames         uint64
	profile        bool
}

func newRootCommand() *cobra.Command {
	return newRoot(&rootOptions{})
}

// newRoot binds the persistent flags to opts.
func newRoot(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "oxy-indirect",
		Short:         "GPU-driven indirect multi-draw demos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(opts.logLevel)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "TOML or YAML configuration file")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&opts.backend, "backend", "", "device backend: wgpu, vulkan or software")
	f.StringVar(&opts.multiDraw, "multi-draw", "", "multi-draw mode: auto, on or off")
	f.StringVar(&opts.cullTest, "cull-test", "", "cull test: distance, frustum or both")
	f.BoolVar(&opts.benchmark, "benchmark", false, "fixed seed 0 and a run summary on exit")
	f.Int64Var(&opts.seed, "seed", 0, "placement seed (0 derives one from the clock)")
	f.IntVar(&opts.framesInFlight, "frames-in-flight", 0, "indirect ring depth")
	f.IntVar(&opts.workers, "workers", 0, "host worker pool size")
	f.Uint64Var(&opts.frames, "frames", 0, "stop after this many frames (0 runs until closed)")
	f.BoolVar(&opts.profile, "profile", false, "log frame statistics every second")

	cmd.AddCommand(
		newIndirectDrawCommand(opts),
		newNoodleBatchCommand(opts),
		newHeadlessCommand(opts),
	)
	return cmd
}

// setupLogging installs the process-wide text logger on stderr.
func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// overrides turns the flags the user actually set into config options, so file values survive
// flags left at their defaults.
func (o *rootOptions) overrides(cmd *cobra.Command) []config.ConfigOption {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}

	var out []config.ConfigOption
	if changed("backend") {
		out = append(out, config.WithBackend(config.Backend(o.backend)))
	}
	if changed("multi-draw") {
		out = append(out, config.WithMultiDraw(config.MultiDrawMode(o.multiDraw)))
	}
	if changed("cull-test") {
		out = append(out, config.WithCullTest(config.CullTest(o.cullTest)))
	}
	if changed("benchmark") {
		out = append(out, config.WithBenchmark(o.benchmark))
	}
	if changed("seed") {
		out = append(out, config.WithSeed(o.seed))
	}
	if changed("frames-in-flight") {
		out = append(out, config.WithFramesInFlight(o.framesInFlight))
	}
	if changed("workers") {
		out = append(out, config.WithWorkers(o.workers))
	}
	return out
}

// config loads the configuration file when one is given, applies the flag overrides and the
// extra options, and validates the result.
func (o *rootOptions) config(cmd *cobra.Command, extra ...config.ConfigOption) (*config.Config, error) {
	opts := append(o.overrides(cmd), extra...)
	if o.configPath != "" {
		return config.Load(o.configPath, opts...)
	}
	c := config.New(opts...)
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return c, nil
}
