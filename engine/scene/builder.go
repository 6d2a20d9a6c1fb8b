package scene

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

/**
 * @brief Concatenates meshes into one vertex and one index allocation and
 * records where each of them landed.
 */
type GeometryBuilder struct {
	name      string
	vertices  []metadata.Vertex
	indices   []uint32
	submeshes map[string]metadata.SubmeshGeometry
}

func NewGeometryBuilder(name string) *GeometryBuilder {
	return &GeometryBuilder{
		name:      name,
		submeshes: make(map[string]metadata.SubmeshGeometry),
	}
}

// Add appends mesh as the submesh called name.
func (b *GeometryBuilder) Add(name string, mesh *metadata.MeshData) error {
	if _, ok := b.submeshes[name]; ok {
		return fmt.Errorf("geometry %s: submesh %s already added", b.name, name)
	}
	if len(mesh.Indices32) == 0 {
		return fmt.Errorf("geometry %s: submesh %s has no indices", b.name, name)
	}
	b.submeshes[name] = metadata.SubmeshGeometry{
		IndexCount:         uint32(len(mesh.Indices32)),
		StartIndexLocation: uint32(len(b.indices)),
		BaseVertexLocation: int32(len(b.vertices)),
	}
	b.vertices = append(b.vertices, mesh.Vertices...)
	b.indices = append(b.indices, mesh.Indices32...)
	return nil
}

// AddColoured appends mesh with every vertex painted colour.
func (b *GeometryBuilder) AddColoured(name string, mesh *metadata.MeshData, colour math.Vec4) error {
	painted := metadata.MeshData{
		Vertices:  make([]metadata.Vertex, len(mesh.Vertices)),
		Indices32: mesh.Indices32,
	}
	for i, v := range mesh.Vertices {
		v.Colour = colour
		painted.Vertices[i] = v
	}
	return b.Add(name, &painted)
}

func (b *GeometryBuilder) VertexCount() int {
	return len(b.vertices)
}

func (b *GeometryBuilder) IndexCount() int {
	return len(b.indices)
}

func (b *GeometryBuilder) Submesh(name string) (metadata.SubmeshGeometry, bool) {
	sm, ok := b.submeshes[name]
	return sm, ok
}

// Build uploads the concatenated data into static buffers. Indices are
// narrowed to 16 bits whenever every vertex can be addressed with them.
func (b *GeometryBuilder) Build(device metadata.Device) (*metadata.MeshGeometry, error) {
	if len(b.vertices) == 0 {
		return nil, fmt.Errorf("geometry %s is empty", b.name)
	}
	vertexData, err := encodeVertices(b.vertices)
	if err != nil {
		return nil, fmt.Errorf("geometry %s: %w", b.name, err)
	}
	indexData, format := encodeIndices(b.indices, len(b.vertices))

	vb, err := device.CreateStaticBuffer(b.name+".vertices", metadata.BufferUsageVertex, vertexData)
	if err != nil {
		return nil, fmt.Errorf("geometry %s: %w", b.name, err)
	}
	ib, err := device.CreateStaticBuffer(b.name+".indices", metadata.BufferUsageIndex, indexData)
	if err != nil {
		vb.Destroy()
		return nil, fmt.Errorf("geometry %s: %w", b.name, err)
	}

	drawArgs := make(map[string]metadata.SubmeshGeometry, len(b.submeshes))
	for k, v := range b.submeshes {
		drawArgs[k] = v
	}
	return &metadata.MeshGeometry{
		Name:                 b.name,
		VertexBuffer:         vb,
		IndexBuffer:          ib,
		VertexByteStride:     uint32(metadata.RecordSize[metadata.Vertex]()),
		VertexBufferByteSize: uint32(len(vertexData)),
		IndexFormat:          format,
		IndexBufferByteSize:  uint32(len(indexData)),
		DrawArgs:             drawArgs,
	}, nil
}

/**
 * @brief Creates a geometry whose vertices are rewritten every frame. Only
 * the index buffer is static; the owner points DynamicVertexBuffer at the
 * current frame resource before drawing.
 */
func BuildDynamicGeometry(device metadata.Device, name string, vertexCount int, indices []uint32) (*metadata.MeshGeometry, error) {
	if vertexCount <= 0 || len(indices) == 0 {
		return nil, fmt.Errorf("dynamic geometry %s needs vertices and indices", name)
	}
	indexData, format := encodeIndices(indices, vertexCount)
	ib, err := device.CreateStaticBuffer(name+".indices", metadata.BufferUsageIndex, indexData)
	if err != nil {
		return nil, fmt.Errorf("dynamic geometry %s: %w", name, err)
	}
	stride := uint32(metadata.RecordSize[metadata.Vertex]())
	return &metadata.MeshGeometry{
		Name:                 name,
		IndexBuffer:          ib,
		VertexByteStride:     stride,
		VertexBufferByteSize: stride * uint32(vertexCount),
		IndexFormat:          format,
		IndexBufferByteSize:  uint32(len(indexData)),
		DrawArgs: map[string]metadata.SubmeshGeometry{
			"grid": {IndexCount: uint32(len(indices))},
		},
	}, nil
}

func encodeVertices(vertices []metadata.Vertex) ([]byte, error) {
	data := make([]byte, binary.Size(vertices))
	if _, err := binary.Encode(data, binary.LittleEndian, vertices); err != nil {
		return nil, err
	}
	return data, nil
}

func encodeIndices(indices []uint32, vertexCount int) ([]byte, metadata.IndexFormat) {
	if vertexCount <= 0xffff {
		mesh := metadata.MeshData{Indices32: indices}
		data := make([]byte, 2*len(indices))
		for i, idx := range mesh.Indices16() {
			binary.LittleEndian.PutUint16(data[2*i:], idx)
		}
		return data, metadata.IndexFormatUint16
	}
	data := make([]byte, 4*len(indices))
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(data[4*i:], idx)
	}
	return data, metadata.IndexFormatUint32
}
