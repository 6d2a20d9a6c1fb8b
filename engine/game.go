package engine

import (
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/frame"
	"github.com/spaghettifunk/castle/engine/scene"
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

/**
 * @brief What a game hands to the engine once its geometry is uploaded.
 * The engine seals the scene and builds the renderer from it.
 */
type Setup struct {
	Scene    *scene.Scene
	Renderer renderer.Config
}

// Initialize builds the scene. The device and the asset manager are ready when it runs.
type Initialize func(e *Engine) (*Setup, error)

// Update runs before the engine waits for a free frame resource: input and camera.
type Update func(deltaTime float64) error

// Render fills the frame resource returned by BeginFrame; the engine draws it afterwards.
type Render func(r *renderer.Renderer, fc *frame.Context, deltaTime, totalTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
