package scenes

import (
	"image/color"

	"golang.org/x/image/colornames"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/components"
	"github.com/spaghettifunk/castle/engine/renderer/frame"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
	"github.com/spaghettifunk/castle/engine/systems"
)

// Vertex colour of every submesh.
var shapeColours = map[string]color.RGBA{
	submeshWall:      colornames.Red,
	submeshGround:    {R: 0, G: 26, B: 0, A: 255},
	submeshColumn:    colornames.Green,
	submeshColumnTop: colornames.Yellow,
	submeshBase1:     colornames.Blue,
	submeshBase2:     colornames.Deeppink,
	submeshBase3:     colornames.Cyan,
	submeshTop:       colornames.Red,
}

/**
 * @brief The castle made of vertex coloured shapes, without lights or
 * textures. Holding 1 shows the wireframe.
 */
type Shapes struct {
	opts     Options
	camera   *components.Camera
	controls *OrbitControls

	wireframe     bool
	width, height uint32
}

func NewShapes(opts Options) *Shapes {
	camera := components.NewCamera(components.CameraConfig{
		Theta:    1.5 * math.K_PI,
		Phi:      0.2 * math.K_PI,
		Radius:   35,
		ZoomRate: 0.05,
	})
	return &Shapes{
		opts:     opts,
		camera:   camera,
		controls: NewOrbitControls(camera),
	}
}

func (sh *Shapes) Name() string {
	return "shapes"
}

func (sh *Shapes) Camera() *components.Camera {
	return sh.camera
}

func (sh *Shapes) Build(device metadata.Device, jobs *systems.JobSystem, frameResourceCount int) (*scene.Scene, renderer.Config, error) {
	mode := renderer.BINDING_MODE_DESCRIPTOR_TABLE
	if sh.opts.BindingMode != "" {
		var err error
		if mode, err = renderer.ParseBindingMode(sh.opts.BindingMode); err != nil {
			return nil, renderer.Config{}, err
		}
	}

	meshes, err := systems.GenerateMeshes(jobs, shapeRequests())
	if err != nil {
		return nil, renderer.Config{}, err
	}

	s, err := scene.New(frameResourceCount)
	if err != nil {
		return nil, renderer.Config{}, err
	}

	b := scene.NewGeometryBuilder(shapesGeometry)
	for _, req := range shapeRequests() {
		if err := b.AddColoured(req.Name, meshes[req.Name], math.NewVec4FromColor(shapeColours[req.Name])); err != nil {
			return nil, renderer.Config{}, err
		}
	}
	if err := addGeometry(device, s, b); err != nil {
		return nil, renderer.Config{}, err
	}
	if err := addPlacements(s, castleLayout(11), false); err != nil {
		s.Destroy()
		return nil, renderer.Config{}, err
	}
	s.Seal()

	vertexShader := "shapes.vert"
	if mode == renderer.BINDING_MODE_ROOT_ADDRESS {
		vertexShader = "shapes_root.vert"
	}

	core.LogInfo("shapes built: %d items, %d vertices, %s binding", s.ItemCount(), b.VertexCount(), mode)
	return s, renderer.Config{
		FrameResourceCount: frameResourceCount,
		BindingMode:        mode,
		ClearColour:        math.NewVec4FromColor(colornames.Lightsteelblue),
		VertexShader:       vertexShader,
		FragmentShader:     "shapes.frag",
	}, nil
}

func (sh *Shapes) Update(deltaTime float32) {
	sh.controls.Update()
	sh.wireframe = core.InputIsKeyDown(core.KEY_1)
}

func (sh *Shapes) Render(r *renderer.Renderer, fc *frame.Context, deltaTime, totalTime float32) error {
	r.SetWireframe(sh.wireframe)
	pass := passConstants(sh.camera, sh.width, sh.height, deltaTime, totalTime, nil)
	_, err := r.UpdateFrame(fc, &pass)
	return err
}

func (sh *Shapes) OnResize(width, height uint32) {
	sh.width, sh.height = width, height
	if height > 0 {
		sh.camera.SetAspectRatio(float32(width) / float32(height))
	}
}
