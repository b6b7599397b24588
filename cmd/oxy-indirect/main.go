// Command oxy-indirect runs the GPU-driven indirect draw demos.
//
//	oxy-indirect indirectdraw [--cull]    plant grid from a static or GPU-culled command table
//	oxy-indirect noodlebatch              cluster-decomposed tubes through one indirect command
//	oxy-indirect headless                 any demo on the in-memory device, for CI and benchmarks
package main

import (
	"log/slog"
	"os"
	"runtime"
)

func init() {
	// GLFW and the surface it hands to the backends belong to the main thread.
	runtime.LockOSThread()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("oxy-indirect failed", "err", err)
		os.Exit(1)
	}
}
