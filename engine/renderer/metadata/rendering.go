package metadata

import "github.com/spaghettifunk/castle/engine/math"

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
)

type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
)

type IndexFormat int

const (
	IndexFormatUint16 IndexFormat = iota
	IndexFormatUint32
)

func (f IndexFormat) Size() uint32 {
	if f == IndexFormatUint32 {
		return 4
	}
	return 2
}

type BufferUsage int

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
	BufferUsageConstant
)

/** @brief How a root slot receives its data. */
type RootParameterKind int

const (
	// A constant buffer bound by GPU address.
	RootParameterConstantBuffer RootParameterKind = iota
	// A single constant buffer view taken from the descriptor heap.
	RootParameterDescriptorTable
	// A texture selected by index.
	RootParameterTexture
)

type RootParameter struct {
	Kind RootParameterKind
	// Size of one constant record in bytes, before alignment.
	RecordSize uint32
}

type PipelineDesc struct {
	Name string
	// Root slots in binding order; the slot number is the position in this list.
	Parameters     []RootParameter
	VertexShader   string
	FragmentShader string
	CullMode       FaceCullMode
	IsWireframe    bool
}

type ClearValue struct {
	Colour  math.Vec4
	Depth   float32
	Stencil uint32
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

type ScissorRect struct {
	Left, Top, Right, Bottom int32
}
