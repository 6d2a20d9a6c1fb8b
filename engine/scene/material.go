package scene

import (
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

/**
 * @brief Surface properties shared by any number of render items.
 */
type Material struct {
	Name string

	/** @brief Index of the material's record in the material constant regions. */
	MatCBIndex uint32
	/** @brief Index of the texture sampled by the material. */
	DiffuseSrvHeapIndex uint32

	DiffuseAlbedo math.Vec4
	FresnelR0     math.Vec3
	Roughness     float32
	/** @brief Used to animate texture coordinates. */
	MatTransform math.Mat4

	/** @brief Same meaning as RenderItem.NumFramesDirty. */
	NumFramesDirty int
}

func (m *Material) apply(config metadata.MaterialConfig) {
	m.DiffuseSrvHeapIndex = config.DiffuseSrvHeapIndex
	m.DiffuseAlbedo = math.NewVec4(config.DiffuseAlbedo[0], config.DiffuseAlbedo[1], config.DiffuseAlbedo[2], config.DiffuseAlbedo[3])
	m.FresnelR0 = math.NewVec3(config.FresnelR0[0], config.FresnelR0[1], config.FresnelR0[2])
	m.Roughness = config.Roughness
}

// Constants builds the record uploaded for the material.
func (m *Material) Constants() metadata.MaterialConstants {
	return metadata.MaterialConstants{
		DiffuseAlbedo: m.DiffuseAlbedo,
		FresnelR0:     m.FresnelR0,
		Roughness:     m.Roughness,
		MatTransform:  m.MatTransform.Transposed(),
	}
}

// Constants builds the record uploaded for the item.
func (ri *RenderItem) Constants() metadata.ObjectConstants {
	return metadata.ObjectConstants{
		World:        ri.World.Transposed(),
		TexTransform: ri.TexTransform.Transposed(),
	}
}
