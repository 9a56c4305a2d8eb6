/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/navkagleb/benzin-sub002/engine"
	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/testbed"
)

func main() {
	configPath := flag.String("config", "engine.toml", "path of the engine configuration")
	texturePath := flag.String("texture", "assets/checkerboard.bmp", "BMP texture uploaded by the testbed")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until quit")
	flag.Parse()

	tb, err := testbed.NewTestGame(&engine.ApplicationConfig{
		Name:       "Benzin Testbed",
		ConfigPath: *configPath,
		MaxFrames:  *frames,
	}, *texturePath)
	if err != nil {
		core.LogFatal("failed to create testbed: %s", err)
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("failed to create engine: %s", err)
	}

	if err := e.Initialize(); err != nil {
		core.LogError("failed to initialize engine: %s", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the loop owns the GPU, so a signal only asks it to stop
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if runErr != nil {
		core.LogError("engine stopped: %s", runErr)
	}
	if err := e.Shutdown(); err != nil {
		core.LogError("engine shutdown: %s", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
