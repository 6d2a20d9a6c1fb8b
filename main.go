/*
Castle renders a small castle standing in animated water, or the same
castle built from coloured shapes, to exercise the engine frame loop.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/castle/engine"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/testbed"
)

func main() {
	configPath := flag.String("config", "", "application config file (.toml or .yaml)")
	variant := flag.String("variant", "", "demo to run: castle or shapes")
	backend := flag.String("backend", "", "renderer backend: vulkan or headless")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until the window is closed")
	land := flag.Bool("land", false, "add the hills terrain around the castle")
	flag.Parse()

	config, err := engine.LoadApplicationConfig(*configPath)
	if err != nil {
		core.LogFatal("loading config: %s", err)
	}
	if *variant != "" {
		config.Variant = *variant
	}
	if *backend != "" {
		config.Backend = *backend
	}
	if *frames > 0 {
		config.FrameLimit = *frames
	}

	tb, err := testbed.NewTestGame(config, *land)
	if err != nil {
		core.LogFatal("%s", err)
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("%s", err)
	}

	// capture sigterm and other system calls
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("initializing: %s", err)
	}

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("shutting down: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
