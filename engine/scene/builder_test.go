package scene

import (
	"encoding/binary"
	"testing"

	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/headless"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quad() *metadata.MeshData {
	return &metadata.MeshData{
		Vertices: []metadata.Vertex{
			{Position: math.NewVec3(0, 0, 0)},
			{Position: math.NewVec3(1, 0, 0)},
			{Position: math.NewVec3(1, 1, 0)},
			{Position: math.NewVec3(0, 1, 0)},
		},
		Indices32: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestBuilderRecordsSubmeshOffsets(t *testing.T) {
	b := NewGeometryBuilder("shapeGeo")
	require.NoError(t, b.Add("wall", quad()))
	require.NoError(t, b.Add("top", triangle()))
	assert.Error(t, b.Add("wall", quad()))
	assert.Error(t, b.Add("empty", &metadata.MeshData{}))

	wall, ok := b.Submesh("wall")
	require.True(t, ok)
	assert.Equal(t, metadata.SubmeshGeometry{IndexCount: 6}, wall)

	top, ok := b.Submesh("top")
	require.True(t, ok)
	assert.Equal(t, metadata.SubmeshGeometry{IndexCount: 3, StartIndexLocation: 6, BaseVertexLocation: 4}, top)
	assert.Equal(t, 7, b.VertexCount())
	assert.Equal(t, 9, b.IndexCount())
}

func TestBuilderUploadsSixteenBitIndices(t *testing.T) {
	device := headless.New(8, 8)
	defer device.Destroy()

	b := NewGeometryBuilder("shapeGeo")
	require.NoError(t, b.AddColoured("wall", quad(), math.NewVec4(1, 0, 0, 1)))
	require.NoError(t, b.Add("top", triangle()))
	geo, err := b.Build(device)
	require.NoError(t, err)
	defer geo.Destroy()

	assert.Equal(t, metadata.IndexFormatUint16, geo.IndexFormat)
	assert.Equal(t, uint32(9*2), geo.IndexBufferByteSize)
	assert.Equal(t, uint32(48), geo.VertexByteStride)
	assert.Equal(t, uint32(7*48), geo.VertexBufferByteSize)
	assert.Len(t, geo.DrawArgs, 2)
	assert.Nil(t, geo.VertexBuffer.Bytes(), "static buffers are not CPU visible")

	vb := geo.VertexBufferView()
	assert.Equal(t, geo.VertexBuffer.Address(), vb.Address)
	assert.Equal(t, uint32(48), vb.Stride)
	ib := geo.IndexBufferView()
	assert.Equal(t, metadata.IndexFormatUint16, ib.Format)
	assert.Equal(t, uint32(18), ib.SizeInBytes)
}

func TestEncodedVerticesKeepColour(t *testing.T) {
	red := math.NewVec4(1, 0, 0, 1)
	b := NewGeometryBuilder("g")
	require.NoError(t, b.AddColoured("tri", triangle(), red))

	data, err := encodeVertices(b.vertices)
	require.NoError(t, err)
	var v metadata.Vertex
	_, err = binary.Decode(data[48:], binary.LittleEndian, &v)
	require.NoError(t, err)
	assert.Equal(t, math.NewVec3(1, 0, 0), v.Position)
	assert.Equal(t, red, v.Colour)
}

func TestLargeMeshesUseThirtyTwoBitIndices(t *testing.T) {
	indices := []uint32{0, 70000, 1}
	data, format := encodeIndices(indices, 70001)
	assert.Equal(t, metadata.IndexFormatUint32, format)
	assert.Equal(t, uint32(70000), binary.LittleEndian.Uint32(data[4:]))

	data, format = encodeIndices([]uint32{0, 1, 2}, 3)
	assert.Equal(t, metadata.IndexFormatUint16, format)
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[4:]))
}

func TestDynamicGeometryHasNoStaticVertices(t *testing.T) {
	device := headless.New(8, 8)
	defer device.Destroy()

	geo, err := BuildDynamicGeometry(device, "waterGeo", 4, []uint32{0, 1, 2, 0, 2, 3})
	require.NoError(t, err)
	defer geo.Destroy()

	assert.Nil(t, geo.VertexBuffer)
	assert.Equal(t, uint32(6), geo.DrawArgs["grid"].IndexCount)
	assert.Equal(t, uint32(4*48), geo.VertexBufferByteSize)

	view := metadata.VertexBufferView{Address: 0x1234, SizeInBytes: 192, Stride: 48}
	geo.DynamicVertexBuffer = view
	assert.Equal(t, view, geo.VertexBufferView())

	_, err = BuildDynamicGeometry(device, "empty", 0, nil)
	assert.Error(t, err)
}
