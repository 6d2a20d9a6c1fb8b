package scene

import (
	"fmt"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// ObjectWriter receives object constants for the current frame resource.
type ObjectWriter interface {
	CopyData(index uint32, record *metadata.ObjectConstants) error
}

// MaterialWriter receives material constants for the current frame resource.
type MaterialWriter interface {
	CopyData(index uint32, record *metadata.MaterialConstants) error
}

/**
 * @brief Owns every render item, material and geometry of a demo. Items live
 * in one dense slice and layers only hold their ids, so an item's id is also
 * its object constant index for the lifetime of the scene.
 *
 * Items and materials are added while the scene is built. Sealing it fixes
 * the counts the frame resources are sized with.
 */
type Scene struct {
	frameResourceCount int

	items      []RenderItem
	materials  []Material
	geometries []*metadata.MeshGeometry
	layers     [RENDER_LAYER_COUNT][]ItemID

	geometriesByName map[string]GeometryID
	materialsByName  map[string]MaterialID

	sealed bool
}

// New creates an empty scene whose dirty counts propagate to frameResourceCount frame resources.
func New(frameResourceCount int) (*Scene, error) {
	if frameResourceCount < 1 {
		return nil, fmt.Errorf("scene needs at least one frame resource, got %d", frameResourceCount)
	}
	return &Scene{
		frameResourceCount: frameResourceCount,
		geometriesByName:   make(map[string]GeometryID),
		materialsByName:    make(map[string]MaterialID),
	}, nil
}

func (s *Scene) FrameResourceCount() int {
	return s.frameResourceCount
}

// AddGeometry takes ownership of geo.
func (s *Scene) AddGeometry(geo *metadata.MeshGeometry) (GeometryID, error) {
	if s.sealed {
		return 0, core.ErrSceneSealed
	}
	if _, ok := s.geometriesByName[geo.Name]; ok {
		return 0, fmt.Errorf("geometry %s already added", geo.Name)
	}
	id := GeometryID(len(s.geometries))
	s.geometries = append(s.geometries, geo)
	s.geometriesByName[geo.Name] = id
	return id, nil
}

func (s *Scene) AddMaterial(config metadata.MaterialConfig) (MaterialID, error) {
	if s.sealed {
		return NoMaterial, core.ErrSceneSealed
	}
	if _, ok := s.materialsByName[config.Name]; ok {
		return NoMaterial, fmt.Errorf("material %s already added", config.Name)
	}
	id := MaterialID(len(s.materials))
	m := Material{
		Name:           config.Name,
		MatCBIndex:     uint32(id),
		MatTransform:   math.NewMat4Identity(),
		NumFramesDirty: s.frameResourceCount,
	}
	m.apply(config)
	s.materials = append(s.materials, m)
	s.materialsByName[config.Name] = id
	return id, nil
}

// AddItem resolves the names in desc and appends the item to its layer.
func (s *Scene) AddItem(desc ItemDesc) (ItemID, error) {
	if s.sealed {
		return 0, core.ErrSceneSealed
	}
	if desc.Layer < 0 || desc.Layer >= RENDER_LAYER_COUNT {
		return 0, fmt.Errorf("layer %d: %w", desc.Layer, core.ErrUnknownLayer)
	}
	// Pipelines are built for triangle lists only.
	if desc.PrimitiveType != metadata.PrimitiveTopologyTriangleList {
		return 0, fmt.Errorf("topology %d: %w", desc.PrimitiveType, core.ErrUnsupported)
	}
	geoID, ok := s.geometriesByName[desc.Geometry]
	if !ok {
		return 0, fmt.Errorf("%s: %w", desc.Geometry, core.ErrUnknownGeometry)
	}
	submesh, ok := s.geometries[geoID].DrawArgs[desc.Submesh]
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", desc.Geometry, desc.Submesh, core.ErrUnknownSubmesh)
	}
	matID := NoMaterial
	if desc.Material != "" {
		if matID, ok = s.materialsByName[desc.Material]; !ok {
			return 0, fmt.Errorf("%s: %w", desc.Material, core.ErrUnknownMaterial)
		}
	}

	id := ItemID(len(s.items))
	s.items = append(s.items, RenderItem{
		World:              identityIfZero(desc.World),
		TexTransform:       identityIfZero(desc.TexTransform),
		NumFramesDirty:     s.frameResourceCount,
		ObjCBIndex:         uint32(id),
		Material:           matID,
		Geometry:           geoID,
		PrimitiveType:      desc.PrimitiveType,
		IndexCount:         submesh.IndexCount,
		StartIndexLocation: submesh.StartIndexLocation,
		BaseVertexLocation: submesh.BaseVertexLocation,
	})
	s.layers[desc.Layer] = append(s.layers[desc.Layer], id)
	return id, nil
}

// Seal freezes the item and material counts.
func (s *Scene) Seal() {
	s.sealed = true
	s.geometriesByName = nil
	core.LogDebug("scene sealed with %d items, %d materials, %d geometries", len(s.items), len(s.materials), len(s.geometries))
}

func (s *Scene) Sealed() bool {
	return s.sealed
}

func (s *Scene) ItemCount() uint32 {
	return uint32(len(s.items))
}

func (s *Scene) MaterialCount() uint32 {
	return uint32(len(s.materials))
}

// Item returns a pointer into the arena. It stays valid once the scene is sealed.
func (s *Scene) Item(id ItemID) *RenderItem {
	return &s.items[id]
}

func (s *Scene) Layer(layer RenderLayer) []ItemID {
	return s.layers[layer]
}

func (s *Scene) Material(id MaterialID) *Material {
	return &s.materials[id]
}

func (s *Scene) Geometry(id GeometryID) *metadata.MeshGeometry {
	return s.geometries[id]
}

// FindMaterial looks a material up by name.
func (s *Scene) FindMaterial(name string) (MaterialID, error) {
	id, ok := s.materialsByName[name]
	if !ok {
		return NoMaterial, fmt.Errorf("%s: %w", name, core.ErrUnknownMaterial)
	}
	return id, nil
}

// MarkItemDirty schedules the item's constants for upload to every frame resource.
func (s *Scene) MarkItemDirty(id ItemID) {
	s.items[id].NumFramesDirty = s.frameResourceCount
}

// MarkMaterialDirty schedules the material's constants for upload to every frame resource.
func (s *Scene) MarkMaterialDirty(id MaterialID) {
	s.materials[id].NumFramesDirty = s.frameResourceCount
}

func (s *Scene) SetItemWorld(id ItemID, world math.Mat4) {
	s.items[id].World = world
	s.MarkItemDirty(id)
}

func (s *Scene) SetMaterialTransform(id MaterialID, transform math.Mat4) {
	s.materials[id].MatTransform = transform
	s.MarkMaterialDirty(id)
}

// UpdateMaterial applies new surface properties, keeping the material's transform.
func (s *Scene) UpdateMaterial(id MaterialID, config metadata.MaterialConfig) {
	s.materials[id].apply(config)
	s.MarkMaterialDirty(id)
}

/**
 * @brief Writes the constants of every dirty item into the current frame
 * resource and decrements its dirty count.
 * @return The number of records written.
 */
func (s *Scene) UpdateObjectConstants(w ObjectWriter) (int, error) {
	written := 0
	for i := range s.items {
		ri := &s.items[i]
		if ri.NumFramesDirty <= 0 {
			continue
		}
		constants := ri.Constants()
		if err := w.CopyData(ri.ObjCBIndex, &constants); err != nil {
			return written, fmt.Errorf("updating object constants of item %d: %w", i, err)
		}
		ri.NumFramesDirty--
		written++
	}
	return written, nil
}

/**
 * @brief Same as UpdateObjectConstants, for materials.
 */
func (s *Scene) UpdateMaterialConstants(w MaterialWriter) (int, error) {
	written := 0
	for i := range s.materials {
		m := &s.materials[i]
		if m.NumFramesDirty <= 0 {
			continue
		}
		constants := m.Constants()
		if err := w.CopyData(m.MatCBIndex, &constants); err != nil {
			return written, fmt.Errorf("updating material constants of %s: %w", m.Name, err)
		}
		m.NumFramesDirty--
		written++
	}
	return written, nil
}

// Destroy releases the geometry buffers. The GPU must be idle.
func (s *Scene) Destroy() {
	for _, geo := range s.geometries {
		geo.Destroy()
	}
	s.geometries = nil
	s.items = nil
	s.materials = nil
	for i := range s.layers {
		s.layers[i] = nil
	}
}
