package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/castle/engine/assets"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/platform"
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
	"github.com/spaghettifunk/castle/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	backend      renderer.RendererType
	runID        string

	isRunning   bool
	isSuspended bool

	// nil for the headless backend.
	platform     *platform.Platform
	assetManager *assets.AssetManager
	jobSystem    *systems.JobSystem

	device   metadata.Device
	scene    *scene.Scene
	renderer *renderer.Renderer

	width      uint32
	height     uint32
	clock      *core.Clock
	frameCount uint64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	config := g.ApplicationConfig
	if err := config.Validate(); err != nil {
		return nil, err
	}
	backend, err := renderer.ParseRendererType(config.Backend)
	if err != nil {
		return nil, err
	}
	if g.FnInitialize == nil || g.FnRender == nil {
		return nil, fmt.Errorf("game %s must provide an initialize and a render function", config.Name)
	}

	if err := core.SetLogLevel(config.LogLevel); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	runID := uuid.New().String()
	core.SetLogRunID(runID)

	var p *platform.Platform
	if backend == renderer.RENDERER_TYPE_VULKAN {
		if p, err = platform.New(); err != nil {
			return nil, err
		}
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	js, err := systems.NewJobSystem(runtime.NumCPU(), 64)
	if err != nil {
		_ = am.Shutdown()
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageBootComplete,
		gameInstance: g,
		config:       config,
		backend:      backend,
		runID:        runID,
		clock:        core.NewClock(),
		platform:     p,
		assetManager: am,
		jobSystem:    js,
		isRunning:    true,
		isSuspended:  false,
		width:        config.StartWidth,
		height:       config.StartHeight,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	// initialize input
	if err := core.InputInitialize(); err != nil {
		return err
	}

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)

	if e.platform != nil {
		if err := e.platform.Startup(e.config.Name,
			e.config.StartPosX,
			e.config.StartPosY,
			e.config.StartWidth,
			e.config.StartHeight); err != nil {
			return err
		}
		// High DPI displays hand out framebuffers bigger than the window.
		if w, h := e.platform.FramebufferSize(); w > 0 && h > 0 {
			e.width, e.height = w, h
		}
	}

	// initialize subsystems
	if err := e.assetManager.Initialize(e.config.AssetsDir); err != nil {
		if e.backend == renderer.RENDERER_TYPE_VULKAN {
			return err
		}
		core.LogWarn("running without assets: %s", err)
	}

	device, err := NewDevice(BackendConfig{
		Type:            e.backend,
		ApplicationName: e.config.Name,
		Width:           e.width,
		Height:          e.height,
		Validation:      e.config.Validation,
		ShaderSource:    e.assetManager.ShaderSource,
	}, e.platform)
	if err != nil {
		return fmt.Errorf("creating %s device: %w", e.backend, err)
	}
	e.device = device

	setup, err := e.gameInstance.FnInitialize(e)
	if err != nil {
		return fmt.Errorf("initializing game %s: %w", e.config.Name, err)
	}
	if setup == nil || setup.Scene == nil {
		return fmt.Errorf("game %s did not build a scene", e.config.Name)
	}
	e.scene = setup.Scene
	if !e.scene.Sealed() {
		e.scene.Seal()
	}

	rc := setup.Renderer
	if rc.FrameResourceCount == 0 {
		rc.FrameResourceCount = e.config.FrameResourceCount
	}
	if e.renderer, err = renderer.New(e.device, e.scene, rc); err != nil {
		return err
	}

	// Geometry uploads must be complete before the first frame reads them.
	if err := e.renderer.Flush(context.Background()); err != nil {
		return err
	}

	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized: %s backend, %dx%d, run %s", e.config.Name, e.backend, e.width, e.height, e.runID)
	return nil
}

func (e *Engine) Run(ctx context.Context) error {
	e.currentStage = EngineStageRunning
	e.clock.Start()

	for e.isRunning {
		if ctx.Err() != nil {
			break
		}
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning = false
			break
		}

		if e.isSuspended {
			e.clock.Stop()
			// Nothing to draw into, wait for the window to come back.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		e.clock.Resume()

		// Update clock and get delta time.
		e.clock.Update()
		delta := e.clock.Delta()
		total := e.clock.Elapsed()
		frameStartTime := time.Now()

		if err := e.frame(ctx, delta, total); err != nil {
			core.LogError("frame %d failed: %s", e.frameCount, err)
			e.isRunning = false
			return err
		}

		core.MetricsUpdate(time.Since(frameStartTime).Seconds())
		if fps, ms, refreshed := core.MetricsFrame(); refreshed && e.platform != nil {
			e.platform.SetTitle(fmt.Sprintf("%s    fps: %.0f   mspf: %.3f", e.config.Name, fps, ms))
		}

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		// As a safety, input is the last thing to be updated before
		// this frame ends.
		core.InputUpdate()

		e.frameCount++
		if e.config.FrameLimit > 0 && e.frameCount >= e.config.FrameLimit {
			e.isRunning = false
		}
	}

	return nil
}

// frame runs the update, waits for a free frame resource, fills it and submits it.
func (e *Engine) frame(ctx context.Context, delta, total float64) error {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}
	}

	fc, err := e.renderer.BeginFrame(ctx)
	if err != nil {
		return err
	}

	e.applyMaterialChanges()

	if err := e.gameInstance.FnRender(e.renderer, fc, delta, total); err != nil {
		return fmt.Errorf("game render: %w", err)
	}
	return e.renderer.DrawFrame(fc)
}

// applyMaterialChanges moves material edits made on disk into the scene.
func (e *Engine) applyMaterialChanges() {
	for _, cfg := range e.assetManager.MaterialChanges() {
		id, err := e.scene.FindMaterial(cfg.Name)
		if err != nil {
			core.LogWarn("material %s changed on disk but is not used by the scene", cfg.Name)
			continue
		}
		e.scene.UpdateMaterial(id, *cfg)
		core.LogInfo("material %s reloaded", cfg.Name)
		core.EventFire(core.EventContext{
			Type: core.EVENT_CODE_MATERIAL_CHANGED,
			Data: cfg.Name,
		})
	}
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	ctx := context.Background()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// The GPU must be idle before anything it reads is released.
	if e.renderer != nil {
		keep(e.renderer.Shutdown(ctx))
	}
	if e.gameInstance.FnShutdown != nil {
		keep(e.gameInstance.FnShutdown())
	}
	if e.scene != nil {
		e.scene.Destroy()
	}
	if e.device != nil {
		keep(e.device.Destroy())
	}
	keep(e.jobSystem.Shutdown())
	keep(e.assetManager.Shutdown())
	keep(core.EventSystemShutdown())
	keep(core.InputShutdown())
	if e.platform != nil {
		keep(e.platform.Shutdown())
	}
	return firstErr
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Config() *ApplicationConfig {
	return e.config
}

func (e *Engine) Device() metadata.Device {
	return e.device
}

func (e *Engine) Assets() *assets.AssetManager {
	return e.assetManager
}

func (e *Engine) Jobs() *systems.JobSystem {
	return e.jobSystem
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Scene() *scene.Scene {
	return e.scene
}

func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) onEvent(context core.EventContext) {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		{
			core.LogInfo("EVENT_CODE_APPLICATION_QUIT recieved, shutting down.")
			e.isRunning = false
		}
	}
}

func (e *Engine) onKey(context core.EventContext) {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	if ke.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EventContext{
			Type: core.EVENT_CODE_APPLICATION_QUIT,
		})
	}
}

func (e *Engine) onResized(ec core.EventContext) {
	if ec.Type != core.EVENT_CODE_RESIZED {
		return
	}
	se, ok := ec.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", ec.Type)
		return
	}

	width := se.WindowWidth
	height := se.WindowHeight

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height

	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.renderer != nil {
		if err := e.renderer.OnResize(context.Background(), width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
}
