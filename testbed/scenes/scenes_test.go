package scenes

import (
	"context"
	"testing"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/headless"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
	"github.com/spaghettifunk/castle/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFrameResources = 3
	testDeltaTime      = float32(1.0 / 60.0)

	// Ground, six walls, four columns, four caps, three bases and the top.
	layoutItems = 19
)

type harness struct {
	device   *headless.Device
	demo     Demo
	scene    *scene.Scene
	renderer *renderer.Renderer
	config   renderer.Config
}

func newJobs(t *testing.T) *systems.JobSystem {
	t.Helper()
	jobs, err := systems.NewJobSystem(2, 16)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, jobs.Shutdown()) })
	return jobs
}

func newHarness(t *testing.T, demo Demo) *harness {
	t.Helper()
	device := headless.New(800, 600)

	s, config, err := demo.Build(device, newJobs(t), testFrameResources)
	require.NoError(t, err)
	require.True(t, s.Sealed())

	r, err := renderer.New(device, s, config)
	require.NoError(t, err)
	require.NoError(t, r.Flush(context.Background()))
	demo.OnResize(800, 600)

	t.Cleanup(func() {
		assert.NoError(t, r.Shutdown(context.Background()))
		s.Destroy()
		assert.Equal(t, 0, device.LiveBuffers())
		_ = device.Destroy()
	})
	return &harness{device: device, demo: demo, scene: s, renderer: r, config: config}
}

// run renders n frames and waits for the GPU to finish them.
func (h *harness) run(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		h.demo.Update(testDeltaTime)
		fc, err := h.renderer.BeginFrame(ctx)
		require.NoError(t, err)
		require.NoError(t, h.demo.Render(h.renderer, fc, testDeltaTime, float32(i+1)*testDeltaTime))
		require.NoError(t, h.renderer.DrawFrame(fc))
	}
	require.NoError(t, h.renderer.Flush(ctx))
}

func TestNewSelectsDemo(t *testing.T) {
	d, err := New("castle", Options{})
	require.NoError(t, err)
	assert.Equal(t, "castle", d.Name())

	d, err = New("Shapes", Options{})
	require.NoError(t, err)
	assert.Equal(t, "shapes", d.Name())

	d, err = New("", Options{})
	require.NoError(t, err)
	assert.Equal(t, "castle", d.Name())

	_, err = New("skybox", Options{})
	assert.Error(t, err)
}

func TestCastleLayout(t *testing.T) {
	layout := castleLayout(13)
	require.Len(t, layout, layoutItems)

	back := layout[1]
	assert.Equal(t, submeshWall, back.submesh)
	assert.InDelta(t, 0, back.world.Data[12], 1e-5)
	assert.InDelta(t, 4, back.world.Data[13], 1e-5)
	assert.InDelta(t, 9, back.world.Data[14], 1e-5)

	// The side walls are turned a quarter, so their length runs along z.
	left := layout[2]
	p := math.NewVec3(0.5, 0, 0).Transform(left.world)
	assert.InDelta(t, -9, p.X, 1e-4)
	assert.InDelta(t, 9, math32Abs(p.Z), 1e-4)

	for _, pl := range layout {
		if pl.submesh == submeshColumnTop {
			assert.InDelta(t, 13, pl.world.Data[13], 1e-5)
		}
		assert.NotEmpty(t, pl.material)
	}
	assert.Equal(t, submeshTop, layout[len(layout)-1].submesh)
}

func math32Abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func TestMergeMaterials(t *testing.T) {
	merged := mergeMaterials([]*metadata.MaterialConfig{
		{Name: materialWater, DiffuseSrvHeapIndex: 1, Roughness: 0.5},
		{Name: "marble", DiffuseSrvHeapIndex: 4},
		nil,
	})
	require.Len(t, merged, 5)
	assert.Equal(t, materialGrass, merged[0].Name)
	assert.Equal(t, materialWater, merged[1].Name)
	assert.InDelta(t, 0.5, merged[1].Roughness, 1e-6)
	assert.Equal(t, "marble", merged[4].Name)
}

func TestCastleBuildsAndRenders(t *testing.T) {
	castle := NewCastle(Options{Seed: 7})
	h := newHarness(t, castle)

	assert.Equal(t, uint32(layoutItems+1), h.scene.ItemCount())
	assert.Equal(t, uint32(4), h.scene.MaterialCount())
	assert.Equal(t, renderer.BINDING_MODE_ROOT_ADDRESS, h.config.BindingMode)
	assert.Equal(t, uint32(128*128), h.config.DynamicVertexCount)

	h.run(t, 5)

	lists := h.device.Executed()
	require.Len(t, lists, 5)
	for _, list := range lists {
		assert.Empty(t, list.Errors)
		require.Len(t, list.Draws, layoutItems+1)
		// The waves are drawn first, from the frame's own vertex region.
		assert.NotZero(t, list.Draws[0].VertexBuffer.Address)
		assert.Equal(t, uint32(128*128)*list.Draws[0].VertexBuffer.Stride, list.Draws[0].VertexBuffer.SizeInBytes)
	}
	assert.NotEqual(t, lists[0].Draws[0].VertexBuffer.Address, lists[1].Draws[0].VertexBuffer.Address)
	assert.Equal(t, 5, h.device.Presents())
}

func TestCastleScrollsWaterTexture(t *testing.T) {
	castle := NewCastle(Options{})
	h := newHarness(t, castle)

	castle.animateMaterials(5)
	water := h.scene.Material(castle.waterMaterial)
	assert.InDelta(t, 0.5, water.MatTransform.Data[12], 1e-5)
	assert.InDelta(t, 0.1, water.MatTransform.Data[13], 1e-5)
	assert.Equal(t, testFrameResources, water.NumFramesDirty)

	castle.animateMaterials(6)
	water = h.scene.Material(castle.waterMaterial)
	assert.InDelta(t, 0.1, water.MatTransform.Data[12], 1e-5)
	assert.InDelta(t, 0.22, water.MatTransform.Data[13], 1e-5)
}

func TestCastleStartsWavesEveryQuarterSecond(t *testing.T) {
	castle := NewCastle(Options{Seed: 1})
	h := newHarness(t, castle)

	fc, err := h.renderer.BeginFrame(context.Background())
	require.NoError(t, err)
	require.NoError(t, castle.updateWaves(fc, testDeltaTime, 0.1))
	assert.Zero(t, castle.waveTimeBase)

	require.NoError(t, castle.updateWaves(fc, testDeltaTime, 0.3))
	assert.InDelta(t, 0.25, castle.waveTimeBase, 1e-6)

	disturbed := false
	for i := 0; i < castle.waves.VertexCount(); i++ {
		if castle.waves.Position(i).Y != 0 {
			disturbed = true
			break
		}
	}
	assert.True(t, disturbed)
	require.NoError(t, h.renderer.DrawFrame(fc))
	require.NoError(t, h.renderer.Flush(context.Background()))
}

func TestCastleWithLandAndLoadedMaterials(t *testing.T) {
	castle := NewCastle(Options{
		Land:      true,
		Materials: []*metadata.MaterialConfig{{Name: materialStone, DiffuseSrvHeapIndex: 3, Roughness: 0.9}},
	})
	h := newHarness(t, castle)

	assert.Equal(t, uint32(layoutItems+2), h.scene.ItemCount())
	id, err := h.scene.FindMaterial(materialStone)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, h.scene.Material(id).Roughness, 1e-6)

	h.run(t, 2)
	for _, list := range h.device.Executed() {
		assert.Empty(t, list.Errors)
		assert.Len(t, list.Draws, layoutItems+2)
	}
}

func TestCastleRequiresRootAddressBinding(t *testing.T) {
	castle := NewCastle(Options{BindingMode: "descriptor_table"})
	device := headless.New(800, 600)
	t.Cleanup(func() { _ = device.Destroy() })

	_, _, err := castle.Build(device, newJobs(t), testFrameResources)
	assert.Error(t, err)
	assert.Equal(t, 0, device.LiveBuffers())
}

func TestShapesBuildsAndRenders(t *testing.T) {
	shapes := NewShapes(Options{})
	h := newHarness(t, shapes)

	assert.Equal(t, uint32(layoutItems), h.scene.ItemCount())
	assert.Zero(t, h.scene.MaterialCount())
	assert.Equal(t, renderer.BINDING_MODE_DESCRIPTOR_TABLE, h.config.BindingMode)
	assert.Zero(t, h.config.DynamicVertexCount)
	assert.Equal(t, "shapes.vert", h.config.VertexShader)

	h.run(t, 3)
	lists := h.device.Executed()
	require.Len(t, lists, 3)
	for _, list := range lists {
		assert.Empty(t, list.Errors)
		assert.Len(t, list.Draws, layoutItems)
		assert.False(t, list.Draws[0].Wireframe)
	}
}

func TestShapesWireframeWhileKeyHeld(t *testing.T) {
	require.NoError(t, core.InputInitialize())
	t.Cleanup(func() { _ = core.InputShutdown() })

	shapes := NewShapes(Options{BindingMode: "root_address"})
	h := newHarness(t, shapes)
	assert.Equal(t, "shapes_root.vert", h.config.VertexShader)

	core.InputProcessKey(core.KEY_1, true)
	h.run(t, 1)
	core.InputProcessKey(core.KEY_1, false)
	h.run(t, 1)

	lists := h.device.Executed()
	require.Len(t, lists, 2)
	assert.True(t, lists[0].Draws[0].Wireframe)
	assert.False(t, lists[1].Draws[0].Wireframe)
}

func TestOrbitControls(t *testing.T) {
	require.NoError(t, core.InputInitialize())
	t.Cleanup(func() { _ = core.InputShutdown() })

	castle := NewCastle(Options{})
	camera := castle.Camera()
	theta, radius := camera.Theta, camera.Radius

	// Moving without a button held does nothing.
	core.InputProcessMouseMove(100, 100)
	castle.Update(testDeltaTime)
	core.InputUpdate()
	assert.Equal(t, theta, camera.Theta)

	core.InputProcessButton(core.BUTTON_LEFT, true)
	core.InputProcessMouseMove(140, 100)
	castle.Update(testDeltaTime)
	core.InputUpdate()
	assert.Greater(t, camera.Theta, theta)
	assert.Equal(t, radius, camera.Radius)
	core.InputProcessButton(core.BUTTON_LEFT, false)

	core.InputProcessButton(core.BUTTON_RIGHT, true)
	core.InputProcessMouseMove(150, 100)
	castle.Update(testDeltaTime)
	core.InputUpdate()
	assert.InDelta(t, radius+0.2*10, camera.Radius, 1e-4)
}
