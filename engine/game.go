package engine

import (
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the GPU context exists.
type Initialize func(ctx *gpu.Context) error
type Update func(deltaTime float64) error

// Render records the frame's work into frame's command list through ctx.
type Render func(ctx *gpu.Context, frame *gpu.Frame, deltaTime float64) error
type OnResize func(width uint32, height uint32) error

// Shutdown runs before the GPU context is torn down, so the game can free
// its descriptors and resources.
type Shutdown func(ctx *gpu.Context) error
