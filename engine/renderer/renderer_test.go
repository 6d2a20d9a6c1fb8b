package renderer

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/headless"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrameResources = 3

type fixture struct {
	device   *headless.Device
	scene    *scene.Scene
	renderer *Renderer
}

func quad() *metadata.MeshData {
	return &metadata.MeshData{
		Vertices: []metadata.Vertex{
			{Position: math.NewVec3(-1, -1, 0)},
			{Position: math.NewVec3(-1, 1, 0)},
			{Position: math.NewVec3(1, 1, 0)},
			{Position: math.NewVec3(1, -1, 0)},
		},
		Indices32: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// newFixture builds a scene of itemCount quads sharing two materials.
func newFixture(t *testing.T, mode BindingMode, itemCount int) *fixture {
	t.Helper()
	device := headless.New(800, 600)

	s, err := scene.New(testFrameResources)
	require.NoError(t, err)

	b := scene.NewGeometryBuilder("quads")
	require.NoError(t, b.Add("quad", quad()))
	require.NoError(t, b.Add("half", &metadata.MeshData{Vertices: quad().Vertices, Indices32: []uint32{0, 1, 2}}))
	geo, err := b.Build(device)
	require.NoError(t, err)
	_, err = s.AddGeometry(geo)
	require.NoError(t, err)

	_, err = s.AddMaterial(metadata.MaterialConfig{Name: "stone", DiffuseSrvHeapIndex: 3, Roughness: 0.25})
	require.NoError(t, err)
	_, err = s.AddMaterial(metadata.MaterialConfig{Name: "water", DiffuseSrvHeapIndex: 1})
	require.NoError(t, err)

	for i := 0; i < itemCount; i++ {
		submesh := "quad"
		if i%2 == 1 {
			submesh = "half"
		}
		_, err := s.AddItem(scene.ItemDesc{
			Geometry: "quads",
			Submesh:  submesh,
			Material: []string{"stone", "water"}[i%2],
			World:    math.NewMat4Translation(math.NewVec3(float32(i), 0, 0)),
		})
		require.NoError(t, err)
	}
	s.Seal()

	r, err := New(device, s, Config{
		FrameResourceCount: testFrameResources,
		BindingMode:        mode,
		ClearColour:        math.NewVec4(0.69, 0.77, 0.87, 1),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, r.Shutdown(context.Background()))
		s.Destroy()
		assert.Equal(t, 0, device.LiveBuffers())
		_ = device.Destroy()
	})
	return &fixture{device: device, scene: s, renderer: r}
}

func (f *fixture) frame(t *testing.T, totalTime float32) UpdateStats {
	t.Helper()
	fc, err := f.renderer.BeginFrame(context.Background())
	require.NoError(t, err)
	pass := BuildPassConstants(PassInput{
		View:      math.NewMat4Identity(),
		Proj:      math.NewMat4Identity(),
		Width:     800,
		Height:    600,
		TotalTime: totalTime,
	})
	stats, err := f.renderer.UpdateFrame(fc, &pass)
	require.NoError(t, err)
	require.NoError(t, f.renderer.DrawFrame(fc))
	return stats
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	_, err := binary.Decode(data, binary.LittleEndian, &out)
	require.NoError(t, err)
	return out
}

func TestParseBindingMode(t *testing.T) {
	mode, err := ParseBindingMode("descriptor_table")
	require.NoError(t, err)
	assert.Equal(t, BINDING_MODE_DESCRIPTOR_TABLE, mode)

	mode, err = ParseBindingMode("")
	require.NoError(t, err)
	assert.Equal(t, BINDING_MODE_ROOT_ADDRESS, mode)

	_, err = ParseBindingMode("bindless")
	assert.Error(t, err)
}

func TestEveryDrawReadsItsOwnObjectRecord(t *testing.T) {
	for _, mode := range []BindingMode{BINDING_MODE_ROOT_ADDRESS, BINDING_MODE_DESCRIPTOR_TABLE} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, mode, 5)
			for i := 0; i < 2*testFrameResources; i++ {
				f.frame(t, float32(i))
			}
			require.NoError(t, f.renderer.Flush(context.Background()))

			executed := f.device.Executed()
			require.Len(t, executed, 2*testFrameResources)

			for n, list := range executed {
				require.Empty(t, list.Errors)
				require.Len(t, list.Draws, 5)
				slot := n % testFrameResources
				res := f.renderer.Ring().Resource(slot)

				for i, draw := range list.Draws {
					item := f.scene.Item(scene.ItemID(i))
					if mode == BINDING_MODE_ROOT_ADDRESS {
						assert.Equal(t, res.ObjectCB.AddressOf(item.ObjCBIndex), draw.Addresses[rootSlotObject])
					} else {
						assert.Equal(t, res.ObjectCB.AddressOf(item.ObjCBIndex), draw.Addresses[tableSlotObject])
					}

					constants := decode[metadata.ObjectConstants](t, draw.Constants[0])
					assert.Equal(t, item.World.Transposed(), constants.World, "frame %d item %d", n, i)
					assert.Equal(t, item.IndexCount, draw.IndexCount)
					assert.Equal(t, item.StartIndexLocation, draw.StartIndex)
					assert.Equal(t, uint32(1), draw.InstanceCount)
				}
			}
		})
	}
}

func TestPassIsBoundOncePerFrame(t *testing.T) {
	f := newFixture(t, BINDING_MODE_ROOT_ADDRESS, 3)
	for i := 0; i < 4; i++ {
		f.frame(t, float32(i)+0.5)
	}
	require.NoError(t, f.renderer.Flush(context.Background()))

	for n, list := range f.device.Executed() {
		slot := n % testFrameResources
		for _, draw := range list.Draws {
			assert.Equal(t, f.renderer.Ring().Resource(slot).PassCB.Address(), draw.Addresses[rootSlotPass])
			pass := decode[metadata.PassConstants](t, draw.Constants[rootSlotPass])
			assert.Equal(t, float32(n)+0.5, pass.TotalTime)
			assert.Equal(t, math.NewVec2(800, 600), pass.RenderTargetSize)
		}
		assert.Equal(t, math.NewVec4(0.69, 0.77, 0.87, 1), list.Clear.Colour)
		assert.Equal(t, float32(1), list.Clear.Depth)
		assert.Equal(t, float32(800), list.Viewport.Width)
	}
	assert.Equal(t, 4, f.device.Presents())
}

func TestMaterialsAndTexturesAreBoundInRootMode(t *testing.T) {
	f := newFixture(t, BINDING_MODE_ROOT_ADDRESS, 4)
	stats := f.frame(t, 0)
	assert.Equal(t, UpdateStats{Objects: 4, Materials: 2}, stats)
	require.NoError(t, f.renderer.Flush(context.Background()))

	list := f.device.Executed()[0]
	for i, draw := range list.Draws {
		item := f.scene.Item(scene.ItemID(i))
		mat := f.scene.Material(item.Material)
		assert.Equal(t, mat.DiffuseSrvHeapIndex, draw.Textures[rootSlotTexture])

		constants := decode[metadata.MaterialConstants](t, draw.Constants[rootSlotMaterial])
		assert.Equal(t, mat.Roughness, constants.Roughness)
	}
}

func TestDescriptorTableModeSkipsMaterialRegion(t *testing.T) {
	f := newFixture(t, BINDING_MODE_DESCRIPTOR_TABLE, 2)
	stats := f.frame(t, 0)
	assert.Equal(t, 0, stats.Materials)
	assert.Nil(t, f.renderer.Ring().Resource(0).MaterialCB)
	require.NoError(t, f.renderer.Flush(context.Background()))

	for _, draw := range f.device.Executed()[0].Draws {
		assert.Equal(t, f.renderer.Ring().Resource(0).PassCB.Address(), draw.Addresses[tableSlotPass])
		assert.Empty(t, draw.Textures)
	}
}

func TestWireframeSelectsPipeline(t *testing.T) {
	f := newFixture(t, BINDING_MODE_ROOT_ADDRESS, 1)
	f.frame(t, 0)
	f.renderer.SetWireframe(true)
	assert.True(t, f.renderer.IsWireframe())
	f.frame(t, 1)
	f.renderer.SetWireframe(false)
	f.frame(t, 2)
	require.NoError(t, f.renderer.Flush(context.Background()))

	executed := f.device.Executed()
	require.Len(t, executed, 3)
	assert.False(t, executed[0].Draws[0].Wireframe)
	assert.True(t, executed[1].Draws[0].Wireframe)
	assert.Equal(t, "opaque_wireframe", executed[1].Draws[0].Pipeline)
	assert.False(t, executed[2].Draws[0].Wireframe)
}

func TestOnResizeDrainsAndUpdatesViewport(t *testing.T) {
	f := newFixture(t, BINDING_MODE_ROOT_ADDRESS, 1)
	f.frame(t, 0)
	f.frame(t, 1)

	require.NoError(t, f.renderer.OnResize(context.Background(), 1024, 768))
	assert.Equal(t, 0, f.renderer.Ring().InFlight())
	w, h := f.device.Surface().Size()
	assert.Equal(t, [2]uint32{1024, 768}, [2]uint32{w, h})

	// Minimised windows report a zero size and keep the old surface.
	require.NoError(t, f.renderer.OnResize(context.Background(), 0, 0))

	f.frame(t, 2)
	require.NoError(t, f.renderer.Flush(context.Background()))
	executed := f.device.Executed()
	assert.Equal(t, float32(1024), executed[len(executed)-1].Viewport.Width)
	assert.Equal(t, float32(768), executed[len(executed)-1].Viewport.Height)
}

func TestNewRejectsUnsealedScene(t *testing.T) {
	device := headless.New(16, 16)
	defer device.Destroy()

	s, err := scene.New(testFrameResources)
	require.NoError(t, err)
	_, err = New(device, s, Config{FrameResourceCount: testFrameResources})
	assert.Error(t, err)

	s.Seal()
	_, err = New(device, s, Config{FrameResourceCount: testFrameResources})
	assert.Error(t, err, "empty scenes have nothing to draw")
}

func TestBindDynamicVertices(t *testing.T) {
	device := headless.New(16, 16)
	defer device.Destroy()

	s, err := scene.New(testFrameResources)
	require.NoError(t, err)
	waves, err := scene.NewWaves(8, 8, 1, 0.03, 4, 0.2)
	require.NoError(t, err)
	geo, err := scene.BuildDynamicGeometry(device, "water", waves.VertexCount(), waves.Indices())
	require.NoError(t, err)
	_, err = s.AddGeometry(geo)
	require.NoError(t, err)
	_, err = s.AddItem(scene.ItemDesc{Geometry: "water", Submesh: "grid"})
	require.NoError(t, err)
	s.Seal()

	r, err := New(device, s, Config{FrameResourceCount: testFrameResources, DynamicVertexCount: uint32(waves.VertexCount())})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, r.Shutdown(context.Background()))
		s.Destroy()
	}()

	for i := 0; i < testFrameResources; i++ {
		fc, err := r.BeginFrame(context.Background())
		require.NoError(t, err)
		require.NoError(t, waves.WriteVertices(fc.Resource.WavesVB))
		require.NoError(t, r.BindDynamicVertices(fc, geo))
		pass := BuildPassConstants(PassInput{View: math.NewMat4Identity(), Proj: math.NewMat4Identity()})
		_, err = r.UpdateFrame(fc, &pass)
		require.NoError(t, err)
		require.NoError(t, r.DrawFrame(fc))
	}
	require.NoError(t, r.Flush(context.Background()))

	for n, list := range device.Executed() {
		res := r.Ring().Resource(n)
		require.Len(t, list.Draws, 1)
		assert.Equal(t, res.WavesVB.Address(), list.Draws[0].VertexBuffer.Address, fmt.Sprintf("frame %d", n))
		assert.Equal(t, uint32(48), list.Draws[0].VertexBuffer.Stride)
	}
}

func TestBuildPassConstants(t *testing.T) {
	view := math.NewMat4LookAtLH(math.NewVec3(0, 5, -10), math.NewVec3(0, 0, 0), math.NewVec3(0, 1, 0))
	proj := math.NewMat4PerspectiveFovLH(0.25*math.K_PI, 4.0/3.0, 1, 1000)
	lighting := scene.CastleLighting()

	pass := BuildPassConstants(PassInput{
		View: view, Proj: proj, EyePos: math.NewVec3(0, 5, -10),
		Width: 400, Height: 200, NearZ: 1, FarZ: 1000,
		DeltaTime: 0.016, Lighting: lighting,
	})

	assert.Equal(t, view.Transposed(), pass.View)
	assert.Equal(t, view.Mul(proj).Transposed(), pass.ViewProj)
	assert.True(t, pass.InvView.Transposed().Mul(view).Compare(math.NewMat4Identity(), 1e-4))
	assert.Equal(t, math.NewVec2(0.0025, 0.005), pass.InvRenderTargetSize)
	assert.Equal(t, lighting.Ambient, pass.AmbientLight)
}

func TestParseRendererType(t *testing.T) {
	rt, err := ParseRendererType("")
	require.NoError(t, err)
	assert.Equal(t, RENDERER_TYPE_VULKAN, rt)

	rt, err = ParseRendererType("headless")
	require.NoError(t, err)
	assert.Equal(t, RENDERER_TYPE_HEADLESS, rt)
	assert.Equal(t, "headless", rt.String())

	_, err = ParseRendererType("metal")
	assert.Error(t, err)
}
