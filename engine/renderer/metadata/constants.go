package metadata

import (
	"encoding/binary"

	"github.com/spaghettifunk/castle/engine/math"
)

/** @brief Constant buffer views must start on this boundary and span a multiple of it. */
const ConstantBufferAlignment uint64 = 256

/** @brief The number of light slots in the pass constants. */
const MaxLights = 16

/**
 * @brief Rounds a record size up to the constant buffer alignment.
 */
func CalcConstantBufferByteSize(byteSize uint64) uint64 {
	return GetAligned(byteSize, ConstantBufferAlignment)
}

// RecordSize is the packed byte size of a fixed-size record, or -1 if the type has no fixed size.
func RecordSize[T any]() int {
	var zero T
	return binary.Size(&zero)
}

/**
 * @brief Per drawable constants. Matrices are stored transposed.
 */
type ObjectConstants struct {
	World        math.Mat4
	TexTransform math.Mat4
}

/**
 * @brief Per material constants. The transform is stored transposed.
 */
type MaterialConstants struct {
	DiffuseAlbedo math.Vec4
	FresnelR0     math.Vec3
	Roughness     float32
	MatTransform  math.Mat4
}

type Light struct {
	Strength     math.Vec3
	FalloffStart float32
	Direction    math.Vec3
	FalloffEnd   float32
	Position     math.Vec3
	SpotPower    float32
}

/**
 * @brief Per pass constants. Every field lines up with 16-byte rows so
 * the record can be read as a std140 block.
 */
type PassConstants struct {
	View                math.Mat4
	InvView             math.Mat4
	Proj                math.Mat4
	InvProj             math.Mat4
	ViewProj            math.Mat4
	InvViewProj         math.Mat4
	EyePosW             math.Vec3
	_                   float32
	RenderTargetSize    math.Vec2
	InvRenderTargetSize math.Vec2
	NearZ               float32
	FarZ                float32
	TotalTime           float32
	DeltaTime           float32
	AmbientLight        math.Vec4
	Lights              [MaxLights]Light
}

/**
 * @brief The vertex layout shared by every pipeline.
 */
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	TexC     math.Vec2
	Colour   math.Vec4
}
