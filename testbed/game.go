package testbed

import (
	"github.com/spaghettifunk/castle/engine"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/frame"
	"github.com/spaghettifunk/castle/testbed/scenes"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	demo scenes.Demo
	opts scenes.Options

	width  uint32
	height uint32
}

// NewTestGame wraps the demo named in config.Variant into a game.
func NewTestGame(config *engine.ApplicationConfig, land bool) (*TestGame, error) {
	if config == nil {
		config = engine.DefaultApplicationConfig()
	}
	opts := scenes.Options{
		Land:        land,
		BindingMode: config.BindingMode,
	}
	demo, err := scenes.New(config.Variant, opts)
	if err != nil {
		return nil, err
	}

	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				demo: demo,
				opts: opts,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) (*engine.Setup, error) {
	state := g.state()
	core.LogInfo("initializing the %s demo...", state.demo.Name())

	// Missing material files fall back to the built in materials.
	materials, err := e.Assets().LoadMaterials()
	if err != nil {
		core.LogWarn("using built in materials: %s", err)
		materials = nil
	}
	if len(materials) > 0 {
		state.opts.Materials = materials
		if state.demo, err = scenes.New(state.demo.Name(), state.opts); err != nil {
			return nil, err
		}
	}

	s, rc, err := state.demo.Build(e.Device(), e.Jobs(), e.Config().FrameResourceCount)
	if err != nil {
		return nil, err
	}

	core.EventRegister(core.EVENT_CODE_MATERIAL_CHANGED, g.onMaterialChanged)
	return &engine.Setup{Scene: s, Renderer: rc}, nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().demo.Update(float32(deltaTime))
	return nil
}

func (g *TestGame) Render(r *renderer.Renderer, fc *frame.Context, deltaTime, totalTime float64) error {
	return g.state().demo.Render(r, fc, float32(deltaTime), float32(totalTime))
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	state.demo.OnResize(width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down the %s demo", g.state().demo.Name())
	return nil
}

func (g *TestGame) onMaterialChanged(context core.EventContext) {
	if name, ok := context.Data.(string); ok {
		core.LogDebug("material %s will be uploaded to the next %d frame resources", name, g.ApplicationConfig.FrameResourceCount)
	}
}
