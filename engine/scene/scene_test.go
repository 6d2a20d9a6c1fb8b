package scene

import (
	"context"
	"fmt"
	"testing"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/frame"
	"github.com/spaghettifunk/castle/engine/renderer/headless"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func triangle() *metadata.MeshData {
	return &metadata.MeshData{
		Vertices: []metadata.Vertex{
			{Position: math.NewVec3(0, 0, 0)},
			{Position: math.NewVec3(1, 0, 0)},
			{Position: math.NewVec3(0, 1, 0)},
		},
		Indices32: []uint32{0, 1, 2},
	}
}

type fixture struct {
	device *headless.Device
	scene  *Scene
	ring   *frame.Ring
}

// newFixture builds a scene with itemCount items and materialCount materials
// (item i uses material i % materialCount) and a ring sized for it.
func newFixture(t *testing.T, count, itemCount, materialCount int) *fixture {
	t.Helper()
	device := headless.New(32, 32)

	s, err := New(count)
	require.NoError(t, err)

	b := NewGeometryBuilder("shapes")
	require.NoError(t, b.Add("tri", triangle()))
	geo, err := b.Build(device)
	require.NoError(t, err)
	_, err = s.AddGeometry(geo)
	require.NoError(t, err)

	for i := 0; i < materialCount; i++ {
		_, err := s.AddMaterial(metadata.MaterialConfig{Name: fmt.Sprintf("mat%d", i), Roughness: 0.5})
		require.NoError(t, err)
	}
	for i := 0; i < itemCount; i++ {
		desc := ItemDesc{Geometry: "shapes", Submesh: "tri"}
		if materialCount > 0 {
			desc.Material = fmt.Sprintf("mat%d", i%materialCount)
		}
		_, err := s.AddItem(desc)
		require.NoError(t, err)
	}
	s.Seal()

	ring, err := frame.NewRing(device, count, frame.ResourceConfig{
		PassCount:     1,
		ObjectCount:   s.ItemCount(),
		MaterialCount: s.MaterialCount(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, ring.Destroy(context.Background()))
		s.Destroy()
		assert.Equal(t, 0, device.LiveBuffers())
		_ = device.Destroy()
	})
	return &fixture{device: device, scene: s, ring: ring}
}

type frameWrites struct {
	index     int
	objects   int
	materials int
}

// advance runs one frame of constant updates and submits it.
func (f *fixture) advance(t *testing.T) frameWrites {
	t.Helper()
	fc, err := f.ring.Begin(context.Background())
	require.NoError(t, err)
	objects, err := f.scene.UpdateObjectConstants(fc.Resource.ObjectCB)
	require.NoError(t, err)
	materials := 0
	if fc.Resource.MaterialCB != nil {
		materials, err = f.scene.UpdateMaterialConstants(fc.Resource.MaterialCB)
		require.NoError(t, err)
	}
	require.NoError(t, f.ring.End(fc))
	return frameWrites{index: fc.Index, objects: objects, materials: materials}
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	for i := 0; i < f.scene.FrameResourceCount(); i++ {
		f.advance(t)
	}
}

func TestNewItemsAndMaterialsStartDirty(t *testing.T) {
	f := newFixture(t, 3, 2, 1)
	assert.Equal(t, 3, f.scene.Item(0).NumFramesDirty)
	assert.Equal(t, 3, f.scene.Material(0).NumFramesDirty)

	for i := 0; i < 3; i++ {
		w := f.advance(t)
		assert.Equal(t, 2, w.objects)
		assert.Equal(t, 1, w.materials)
	}
	w := f.advance(t)
	assert.Zero(t, w.objects)
	assert.Zero(t, w.materials)
}

func TestMarkDirtySaturates(t *testing.T) {
	f := newFixture(t, 3, 1, 1)
	f.settle(t)

	for i := 0; i < 10; i++ {
		f.scene.MarkItemDirty(0)
		f.scene.MarkMaterialDirty(0)
	}
	assert.Equal(t, 3, f.scene.Item(0).NumFramesDirty)
	assert.Equal(t, 3, f.scene.Material(0).NumFramesDirty)

	// Marking again halfway through restarts the count instead of adding to it.
	f.advance(t)
	f.scene.MarkItemDirty(0)
	assert.Equal(t, 3, f.scene.Item(0).NumFramesDirty)
	f.settle(t)

	// A second change before the first reached every slot still reaches all of them.
	first := math.NewMat4Translation(math.NewVec3(1, 0, 0))
	second := math.NewMat4Translation(math.NewVec3(0, 5, 0))
	f.scene.SetItemWorld(0, first)
	f.advance(t)
	f.scene.SetItemWorld(0, second)
	f.scene.SetItemWorld(0, second)
	assert.Equal(t, 3, f.scene.Item(0).NumFramesDirty)
	for i := 0; i < 3; i++ {
		f.advance(t)
	}
	assert.Zero(t, f.scene.Item(0).NumFramesDirty)

	require.NoError(t, f.ring.Flush(context.Background()))
	for slot := 0; slot < 3; slot++ {
		got, err := f.ring.Resource(slot).ObjectCB.Read(0)
		require.NoError(t, err)
		assert.Equal(t, second.Transposed(), got.World, "slot %d", slot)
	}
}

func TestItemChangeReachesEveryRingSlot(t *testing.T) {
	f := newFixture(t, 3, 1, 0)
	f.settle(t)

	world := math.NewMat4Translation(math.NewVec3(1, 2, 3))
	f.scene.SetItemWorld(0, world)

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		w := f.advance(t)
		assert.Equal(t, 1, w.objects)
		seen[w.index] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 0, f.scene.Item(0).NumFramesDirty)

	require.NoError(t, f.ring.Flush(context.Background()))
	for slot := 0; slot < 3; slot++ {
		got, err := f.ring.Resource(slot).ObjectCB.Read(0)
		require.NoError(t, err)
		assert.Equal(t, world.Transposed(), got.World, "slot %d", slot)
	}
	assert.Zero(t, f.advance(t).objects)
}

func TestChangesPropagateWithinRingSize(t *testing.T) {
	for count := 1; count <= 4; count++ {
		t.Run(fmt.Sprintf("N=%d", count), func(t *testing.T) {
			const items = 5
			f := newFixture(t, count, items, 0)
			f.settle(t)
			rng := rand.New(rand.NewSource(uint64(count)))

			expected := make([]math.Mat4, items)
			for i := range expected {
				expected[i] = math.NewMat4Identity()
			}
			for n := 0; n < 30; n++ {
				id := ItemID(rng.Intn(items))
				expected[id] = math.NewMat4Translation(math.NewVec3(float32(n), 0, 0))
				f.scene.SetItemWorld(id, expected[id])

				// N frames later every slot holds the value: at most N-1 more frames after this one.
				for k := 0; k < count; k++ {
					f.advance(t)
				}
				require.NoError(t, f.ring.Flush(context.Background()))
				for slot := 0; slot < count; slot++ {
					for i := 0; i < items; i++ {
						got, err := f.ring.Resource(slot).ObjectCB.Read(uint32(i))
						require.NoError(t, err)
						require.Equal(t, expected[i].Transposed(), got.World, "slot %d item %d", slot, i)
					}
				}
				for i := 0; i < items; i++ {
					require.Equal(t, 0, f.scene.Item(ItemID(i)).NumFramesDirty)
				}
			}
		})
	}
}

func TestSharedMaterialUploadedOncePerSlot(t *testing.T) {
	f := newFixture(t, 3, 2, 1)
	f.settle(t)
	require.Equal(t, f.scene.Item(0).Material, f.scene.Item(1).Material)

	offset := math.NewMat4Translation(math.NewVec3(0.1, 0.02, 0))
	f.scene.SetMaterialTransform(0, offset)

	perSlot := map[int]int{}
	for i := 0; i < 6; i++ {
		w := f.advance(t)
		perSlot[w.index] += w.materials
		assert.Zero(t, w.objects, "items are untouched by a material change")
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, perSlot)

	require.NoError(t, f.ring.Flush(context.Background()))
	for slot := 0; slot < 3; slot++ {
		got, err := f.ring.Resource(slot).MaterialCB.Read(0)
		require.NoError(t, err)
		assert.Equal(t, offset.Transposed(), got.MatTransform)
		assert.Equal(t, float32(0.5), got.Roughness)
	}
}

func TestUpdateMaterialKeepsTransform(t *testing.T) {
	f := newFixture(t, 2, 1, 1)
	f.settle(t)
	offset := math.NewMat4Translation(math.NewVec3(0.5, 0, 0))
	f.scene.SetMaterialTransform(0, offset)

	f.scene.UpdateMaterial(0, metadata.MaterialConfig{Name: "mat0", Roughness: 0.9, FresnelR0: [3]float32{0.1, 0.2, 0.3}})
	m := f.scene.Material(0)
	assert.Equal(t, float32(0.9), m.Roughness)
	assert.Equal(t, math.NewVec3(0.1, 0.2, 0.3), m.FresnelR0)
	assert.Equal(t, offset, m.MatTransform)
	assert.Equal(t, 2, m.NumFramesDirty)
}

func TestCapacityViolationIsReported(t *testing.T) {
	device := headless.New(8, 8)
	defer device.Destroy()

	s, err := New(1)
	require.NoError(t, err)
	b := NewGeometryBuilder("g")
	require.NoError(t, b.Add("tri", triangle()))
	geo, err := b.Build(device)
	require.NoError(t, err)
	_, err = s.AddGeometry(geo)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = s.AddItem(ItemDesc{Geometry: "g", Submesh: "tri"})
		require.NoError(t, err)
	}

	ring, err := frame.NewRing(device, 1, frame.ResourceConfig{ObjectCount: 1})
	require.NoError(t, err)
	fc, err := ring.Begin(context.Background())
	require.NoError(t, err)

	written, err := s.UpdateObjectConstants(fc.Resource.ObjectCB)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, 1, written)

	require.NoError(t, ring.End(fc))
	require.NoError(t, ring.Destroy(context.Background()))
	s.Destroy()
}

func TestAddItemResolvesNames(t *testing.T) {
	device := headless.New(8, 8)
	defer device.Destroy()

	s, err := New(3)
	require.NoError(t, err)
	defer s.Destroy()

	b := NewGeometryBuilder("g")
	require.NoError(t, b.Add("a", triangle()))
	require.NoError(t, b.Add("b", triangle()))
	geo, err := b.Build(device)
	require.NoError(t, err)
	geoID, err := s.AddGeometry(geo)
	require.NoError(t, err)
	_, err = s.AddGeometry(&metadata.MeshGeometry{Name: "g"})
	assert.Error(t, err)

	matID, err := s.AddMaterial(metadata.MaterialConfig{Name: "stone", DiffuseSrvHeapIndex: 3})
	require.NoError(t, err)

	world := math.NewMat4Scale(math.NewVec3(2, 2, 2))
	id, err := s.AddItem(ItemDesc{Geometry: "g", Submesh: "b", Material: "stone", World: world})
	require.NoError(t, err)

	ri := s.Item(id)
	assert.Equal(t, uint32(id), ri.ObjCBIndex)
	assert.Equal(t, geoID, ri.Geometry)
	assert.Equal(t, matID, ri.Material)
	assert.Equal(t, uint32(3), ri.IndexCount)
	assert.Equal(t, uint32(3), ri.StartIndexLocation)
	assert.Equal(t, int32(3), ri.BaseVertexLocation)
	assert.Equal(t, world, ri.World)
	assert.Equal(t, math.NewMat4Identity(), ri.TexTransform)
	assert.Equal(t, []ItemID{id}, s.Layer(RENDER_LAYER_OPAQUE))
	assert.Equal(t, uint32(3), s.Material(matID).DiffuseSrvHeapIndex)

	_, err = s.AddItem(ItemDesc{Geometry: "missing", Submesh: "a"})
	assert.ErrorIs(t, err, core.ErrUnknownGeometry)
	_, err = s.AddItem(ItemDesc{Geometry: "g", Submesh: "missing"})
	assert.ErrorIs(t, err, core.ErrUnknownSubmesh)
	_, err = s.AddItem(ItemDesc{Geometry: "g", Submesh: "a", Material: "missing"})
	assert.ErrorIs(t, err, core.ErrUnknownMaterial)
	_, err = s.AddItem(ItemDesc{Geometry: "g", Submesh: "a", Layer: RENDER_LAYER_COUNT})
	assert.ErrorIs(t, err, core.ErrUnknownLayer)
	_, err = s.AddItem(ItemDesc{Geometry: "g", Submesh: "a", PrimitiveType: metadata.PrimitiveTopologyLineList})
	assert.ErrorIs(t, err, core.ErrUnsupported)

	found, err := s.FindMaterial("stone")
	require.NoError(t, err)
	assert.Equal(t, matID, found)

	s.Seal()
	_, err = s.AddItem(ItemDesc{Geometry: "g", Submesh: "a"})
	assert.ErrorIs(t, err, core.ErrSceneSealed)
	_, err = s.AddMaterial(metadata.MaterialConfig{Name: "grass"})
	assert.ErrorIs(t, err, core.ErrSceneSealed)
	assert.Equal(t, uint32(1), s.ItemCount())
}

func TestNewRejectsZeroFrameResources(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}
