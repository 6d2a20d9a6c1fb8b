package scenes

import (
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
	"github.com/spaghettifunk/castle/engine/systems"
)

// Submeshes of the shapes geometry.
const (
	shapesGeometry = "shapeGeo"

	submeshWall      = "wholeWall"
	submeshGround    = "ground"
	submeshColumn    = "column"
	submeshColumnTop = "columnTop"
	submeshBase1     = "Base1"
	submeshBase2     = "Base2"
	submeshBase3     = "Base3"
	submeshTop       = "top"
)

// Material names used by the castle layout.
const (
	materialGrass     = "grass"
	materialWater     = "water"
	materialWirefence = "wirefence"
	materialStone     = "stone"
)

// shapeRequests lists the unit shapes every castle piece is scaled from, in submesh order.
func shapeRequests() []systems.MeshRequest {
	return []systems.MeshRequest{
		{Name: submeshWall, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateBox(1, 1, 1, 0)
		}},
		{Name: submeshGround, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateGrid(24, 24, 25, 25)
		}},
		{Name: submeshColumn, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateCylinder(0.5, 0.5, 1, 20, 20)
		}},
		{Name: submeshColumnTop, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateSphere(0.5, 4, 2)
		}},
		{Name: submeshBase1, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateCylinder(0.5, 0.5, 1, 10, 2)
		}},
		{Name: submeshBase2, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateCylinder(0.5, 0.5, 1, 8, 2)
		}},
		{Name: submeshBase3, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateCylinder(0.5, 0, 1, 10, 1)
		}},
		{Name: submeshTop, Generate: func(g systems.GeometryGenerator) (*metadata.MeshData, error) {
			return g.CreateSphere(0.5, 11, 10)
		}},
	}
}

/**
 * @brief One piece of the castle: a scaled, rotated and translated submesh
 * of the shapes geometry.
 */
type placement struct {
	submesh  string
	world    math.Mat4
	tex      math.Mat4
	material string
}

// srt places a unit shape: scale, then a rotation of yaw about y, then translation.
func srt(scale math.Vec3, yaw float32, translation math.Vec3) math.Mat4 {
	return math.TransformFromPositionRotationScale(translation, math.NewVec3(0, yaw, 0), scale).GetWorld()
}

func texScale(u, v float32) math.Mat4 {
	return math.NewMat4Scale(math.NewVec3(u, v, 1))
}

/**
 * @brief The castle: ground, four walls with a gate, a column with a cap on
 * every corner and a stepped keep in the middle.
 *
 * @param columnTopHeight Height of the column caps.
 * @return The pieces in draw order. The identity is used for texture
 * transforms that are not listed.
 */
func castleLayout(columnTopHeight float32) []placement {
	wallTex := texScale(4, 1.6)
	layout := []placement{
		{submesh: submeshGround, material: materialWirefence},

		{submesh: submeshWall, world: srt(math.NewVec3(18, 8, 0.5), 0, math.NewVec3(0, 4, 9)), tex: wallTex, material: materialStone},
		{submesh: submeshWall, world: srt(math.NewVec3(18, 8, 0.5), math.K_HALF_PI, math.NewVec3(-9, 4, 0)), tex: wallTex, material: materialStone},
		{submesh: submeshWall, world: srt(math.NewVec3(18, 8, 0.5), math.K_HALF_PI, math.NewVec3(9, 4, 0)), tex: wallTex, material: materialStone},
		{submesh: submeshWall, world: srt(math.NewVec3(6, 5, 0.5), 0, math.NewVec3(-5, 2.5, -9)), tex: texScale(1.33, 1.11), material: materialStone},
		{submesh: submeshWall, world: srt(math.NewVec3(6, 5, 0.5), 0, math.NewVec3(5, 2.5, -9)), tex: texScale(1.33, 1.11), material: materialStone},
		{submesh: submeshWall, world: srt(math.NewVec3(18, 3, 0.5), 0, math.NewVec3(0, 6.5, -9)), tex: texScale(4, 0.66), material: materialStone},
	}

	corners := []math.Vec3{
		math.NewVec3(-9, 0, -9),
		math.NewVec3(9, 0, -9),
		math.NewVec3(-9, 0, 9),
		math.NewVec3(9, 0, 9),
	}
	for _, c := range corners {
		layout = append(layout, placement{
			submesh:  submeshColumn,
			world:    srt(math.NewVec3(2, 10, 2), 0, math.NewVec3(c.X, 5, c.Z)),
			material: materialWirefence,
		})
	}
	for _, c := range corners {
		layout = append(layout, placement{
			submesh:  submeshColumnTop,
			world:    srt(math.NewVec3(2, 2, 2), 0, math.NewVec3(c.X, columnTopHeight, c.Z)),
			material: materialWirefence,
		})
	}

	return append(layout,
		placement{submesh: submeshBase1, world: srt(math.NewVec3(14, 6, 14), 0, math.NewVec3(0, 3, 0)), material: materialWirefence},
		placement{submesh: submeshBase2, world: srt(math.NewVec3(10, 4, 10), 0, math.NewVec3(0, 8, 0)), material: materialWirefence},
		placement{submesh: submeshBase3, world: srt(math.NewVec3(4, 6, 4), 0, math.NewVec3(0, 13, 0)), material: materialWirefence},
		placement{submesh: submeshTop, world: srt(math.NewVec3(2, 2, 2), 0, math.NewVec3(0, 18, 0)), material: materialWirefence},
	)
}

// addPlacements appends the layout to s. Materials are dropped when withMaterials is false.
func addPlacements(s *scene.Scene, layout []placement, withMaterials bool) error {
	for _, p := range layout {
		desc := scene.ItemDesc{
			Geometry:      shapesGeometry,
			Submesh:       p.submesh,
			World:         p.world,
			TexTransform:  p.tex,
			Layer:         scene.RENDER_LAYER_OPAQUE,
			PrimitiveType: metadata.PrimitiveTopologyTriangleList,
		}
		if withMaterials {
			desc.Material = p.material
		}
		if _, err := s.AddItem(desc); err != nil {
			return err
		}
	}
	return nil
}
