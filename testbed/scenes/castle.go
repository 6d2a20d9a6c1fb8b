package scenes

import (
	"fmt"

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

const (
	waterGeometry = "waterGeo"
	landGeometry  = "landGeo"

	// A new wave is started every quarter second.
	waveInterval     float32 = 0.25
	waveMinMagnitude float32 = 0.2
	waveMaxMagnitude float32 = 0.5

	// Texture scrolling speed of the water, in texture widths per second.
	waterScrollU float32 = 0.1
	waterScrollV float32 = 0.02
)

// DefaultCastleMaterials are used for every material missing from the assets directory.
func DefaultCastleMaterials() []metadata.MaterialConfig {
	return []metadata.MaterialConfig{
		{Name: materialGrass, DiffuseSrvHeapIndex: 0, DiffuseAlbedo: [4]float32{1, 1, 1, 1}, FresnelR0: [3]float32{0.01, 0.01, 0.01}, Roughness: 0.125},
		{Name: materialWater, DiffuseSrvHeapIndex: 1, DiffuseAlbedo: [4]float32{1, 1, 1, 1}, FresnelR0: [3]float32{0.2, 0.2, 0.2}, Roughness: 0},
		{Name: materialWirefence, DiffuseSrvHeapIndex: 2, DiffuseAlbedo: [4]float32{1, 1, 1, 1}, FresnelR0: [3]float32{0.1, 0.1, 0.1}, Roughness: 0.25},
		{Name: materialStone, DiffuseSrvHeapIndex: 3, DiffuseAlbedo: [4]float32{1, 1, 1, 1}, FresnelR0: [3]float32{0.1, 0.1, 0.1}, Roughness: 0.25},
	}
}

// mergeMaterials overrides the defaults with loaded materials of the same name
// and appends the others in the order they were loaded.
func mergeMaterials(loaded []*metadata.MaterialConfig) []metadata.MaterialConfig {
	materials := DefaultCastleMaterials()
	index := make(map[string]int, len(materials))
	for i, m := range materials {
		index[m.Name] = i
	}
	for _, m := range loaded {
		if m == nil {
			continue
		}
		if i, ok := index[m.Name]; ok {
			materials[i] = *m
			continue
		}
		index[m.Name] = len(materials)
		materials = append(materials, *m)
	}
	return materials
}

/**
 * @brief A lit, textured castle standing in animated water. Waves are
 * simulated on the CPU and streamed into the frame resource every frame.
 */
type Castle struct {
	opts     Options
	camera   *components.Camera
	controls *OrbitControls
	lighting *scene.Lighting
	rng      *math.Random

	scene         *scene.Scene
	waves         *scene.Waves
	water         *metadata.MeshGeometry
	waterMaterial scene.MaterialID
	// Total time at which the last wave was started.
	waveTimeBase float32

	width, height uint32
}

func NewCastle(opts Options) *Castle {
	camera := components.NewCamera(components.CameraConfig{
		Theta:    1.5 * math.K_PI,
		Phi:      math.K_HALF_PI - 0.1,
		Radius:   50,
		ZoomRate: 0.2,
	})
	return &Castle{
		opts:     opts,
		camera:   camera,
		controls: NewOrbitControls(camera),
		lighting: scene.CastleLighting(),
		rng:      math.NewRandom(opts.Seed),
	}
}

func (c *Castle) Name() string {
	return "castle"
}

func (c *Castle) Camera() *components.Camera {
	return c.camera
}

func (c *Castle) Build(device metadata.Device, jobs *systems.JobSystem, frameResourceCount int) (*scene.Scene, renderer.Config, error) {
	mode, err := renderer.ParseBindingMode(c.opts.BindingMode)
	if err != nil {
		return nil, renderer.Config{}, err
	}
	if mode != renderer.BINDING_MODE_ROOT_ADDRESS {
		return nil, renderer.Config{}, fmt.Errorf("castle binds materials and textures and needs %s binding, got %s", renderer.BINDING_MODE_ROOT_ADDRESS, mode)
	}

	requests := shapeRequests()
	if c.opts.Land {
		requests = append(requests, systems.MeshRequest{
			Name: landGeometry,
			Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
				return g.CreateGrid(160, 160, 50, 50)
			},
		})
	}
	meshes, err := systems.GenerateMeshes(jobs, requests)
	if err != nil {
		return nil, renderer.Config{}, err
	}

	s, err := scene.New(frameResourceCount)
	if err != nil {
		return nil, renderer.Config{}, err
	}
	if err := c.populate(device, s, meshes); err != nil {
		s.Destroy()
		return nil, renderer.Config{}, err
	}
	s.Seal()
	c.scene = s

	core.LogInfo("castle built: %d items, %d materials, %d wave vertices", s.ItemCount(), s.MaterialCount(), c.waves.VertexCount())
	return s, renderer.Config{
		FrameResourceCount: frameResourceCount,
		BindingMode:        mode,
		ClearColour:        math.NewVec4FromColor(colornames.Lightsteelblue),
		VertexShader:       "castle.vert",
		FragmentShader:     "castle.frag",
		DynamicVertexCount: uint32(c.waves.VertexCount()),
	}, nil
}

// populate adds the geometries, the materials and the items. Geometry added to s is released with it.
func (c *Castle) populate(device metadata.Device, s *scene.Scene, meshes map[string]*metadata.MeshData) error {
	b := scene.NewGeometryBuilder(shapesGeometry)
	for _, req := range shapeRequests() {
		if err := b.Add(req.Name, meshes[req.Name]); err != nil {
			return err
		}
	}
	if err := addGeometry(device, s, b); err != nil {
		return err
	}

	if c.opts.Land {
		land := meshes[landGeometry]
		scene.ApplyHills(land)
		lb := scene.NewGeometryBuilder(landGeometry)
		if err := lb.Add("grid", land); err != nil {
			return err
		}
		if err := addGeometry(device, s, lb); err != nil {
			return err
		}
	}

	waves, err := scene.NewWaves(128, 128, 1.0, 0.03, 4.0, 0.2)
	if err != nil {
		return err
	}
	water, err := scene.BuildDynamicGeometry(device, waterGeometry, waves.VertexCount(), waves.Indices())
	if err != nil {
		return err
	}
	if _, err := s.AddGeometry(water); err != nil {
		water.Destroy()
		return err
	}
	c.waves = waves
	c.water = water

	for _, m := range mergeMaterials(c.opts.Materials) {
		if _, err := s.AddMaterial(m); err != nil {
			return err
		}
	}
	if c.waterMaterial, err = s.FindMaterial(materialWater); err != nil {
		return err
	}

	if _, err := s.AddItem(scene.ItemDesc{
		Geometry:     waterGeometry,
		Submesh:      "grid",
		Material:     materialWater,
		TexTransform: texScale(5, 5),
	}); err != nil {
		return err
	}
	if c.opts.Land {
		if _, err := s.AddItem(scene.ItemDesc{
			Geometry:     landGeometry,
			Submesh:      "grid",
			Material:     materialGrass,
			TexTransform: texScale(5, 5),
		}); err != nil {
			return err
		}
	}
	return addPlacements(s, castleLayout(13), true)
}

func addGeometry(device metadata.Device, s *scene.Scene, b *scene.GeometryBuilder) error {
	geo, err := b.Build(device)
	if err != nil {
		return err
	}
	if _, err := s.AddGeometry(geo); err != nil {
		geo.Destroy()
		return err
	}
	return nil
}

func (c *Castle) Update(deltaTime float32) {
	c.controls.Update()
}

func (c *Castle) Render(r *renderer.Renderer, fc *frame.Context, deltaTime, totalTime float32) error {
	c.animateMaterials(deltaTime)

	pass := passConstants(c.camera, c.width, c.height, deltaTime, totalTime, c.lighting)
	if _, err := r.UpdateFrame(fc, &pass); err != nil {
		return err
	}
	if err := c.updateWaves(fc, deltaTime, totalTime); err != nil {
		return err
	}
	return r.BindDynamicVertices(fc, c.water)
}

// animateMaterials scrolls the water texture, wrapping the offset to [0, 1).
func (c *Castle) animateMaterials(deltaTime float32) {
	t := c.scene.Material(c.waterMaterial).MatTransform
	t.Data[12] += waterScrollU * deltaTime
	t.Data[13] += waterScrollV * deltaTime
	if t.Data[12] >= 1 {
		t.Data[12] -= 1
	}
	if t.Data[13] >= 1 {
		t.Data[13] -= 1
	}
	c.scene.SetMaterialTransform(c.waterMaterial, t)
}

func (c *Castle) updateWaves(fc *frame.Context, deltaTime, totalTime float32) error {
	if totalTime-c.waveTimeBase >= waveInterval {
		c.waveTimeBase += waveInterval
		if err := c.waves.DisturbRandom(c.rng, waveMinMagnitude, waveMaxMagnitude); err != nil {
			return err
		}
	}
	c.waves.Update(deltaTime)

	if fc.Resource.WavesVB == nil {
		return fmt.Errorf("frame resource %d has no wave vertex region", fc.Index)
	}
	return c.waves.WriteVertices(fc.Resource.WavesVB)
}

func (c *Castle) OnResize(width, height uint32) {
	c.width, c.height = width, height
	if height > 0 {
		c.camera.SetAspectRatio(float32(width) / float32(height))
	}
}
