package scene

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// HillsHeight is the height of the land at (x, z).
func HillsHeight(x, z float32) float32 {
	return 0.3 * (z*math32.Sin(0.1*x) + x*math32.Cos(0.1*z))
}

// HillsNormal is the unit normal of the land at (x, z).
func HillsNormal(x, z float32) math.Vec3 {
	n := math.NewVec3(
		-0.03*z*math32.Cos(0.1*x)-0.3*math32.Cos(0.1*z),
		1.0,
		-0.3*math32.Sin(0.1*x)+0.03*x*math32.Sin(0.1*z),
	)
	return n.Normalized()
}

// ApplyHills displaces a flat grid into hills in place.
func ApplyHills(mesh *metadata.MeshData) {
	for i := range mesh.Vertices {
		p := mesh.Vertices[i].Position
		mesh.Vertices[i].Position.Y = HillsHeight(p.X, p.Z)
		mesh.Vertices[i].Normal = HillsNormal(p.X, p.Z)
	}
}
