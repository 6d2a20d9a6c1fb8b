package scene

import (
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// ItemID is the position of a render item in the scene arena. It doubles as
// the item's object constant index in every frame resource.
type ItemID uint32

type GeometryID uint32

type MaterialID int32

// NoMaterial marks items drawn without material constants.
const NoMaterial MaterialID = -1

type RenderLayer int

const (
	RENDER_LAYER_OPAQUE RenderLayer = iota
	RENDER_LAYER_COUNT
)

/**
 * @brief Everything needed to draw one shape: its transforms, the submesh it
 * draws and the material it is shaded with.
 */
type RenderItem struct {
	/** @brief Local to world space. */
	World math.Mat4
	/** @brief Applied to texture coordinates before the material transform. */
	TexTransform math.Mat4

	/**
	 * @brief How many frame resources still hold stale object constants.
	 * Set to the frame resource count whenever the item changes.
	 */
	NumFramesDirty int

	/** @brief Index of the item's record in the object constant regions. */
	ObjCBIndex uint32

	Material MaterialID
	Geometry GeometryID

	PrimitiveType metadata.PrimitiveTopology

	IndexCount         uint32
	StartIndexLocation uint32
	BaseVertexLocation int32
}

/**
 * @brief Describes a render item by name. Names are resolved once by AddItem;
 * a zero matrix means identity.
 */
type ItemDesc struct {
	Geometry string
	Submesh  string
	// Optional.
	Material string

	World        math.Mat4
	TexTransform math.Mat4

	Layer         RenderLayer
	PrimitiveType metadata.PrimitiveTopology
}

func identityIfZero(m math.Mat4) math.Mat4 {
	if m == (math.Mat4{}) {
		return math.NewMat4Identity()
	}
	return m
}
