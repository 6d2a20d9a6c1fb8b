package metadata

/**
 * @brief CPU side output of a geometry producer.
 */
type MeshData struct {
	Vertices  []Vertex
	Indices32 []uint32
}

// Indices16 returns the indices narrowed to 16 bits.
func (m *MeshData) Indices16() []uint16 {
	out := make([]uint16, len(m.Indices32))
	for i, idx := range m.Indices32 {
		out[i] = uint16(idx)
	}
	return out
}

/**
 * @brief A range of a shared vertex/index allocation that is drawn as one unit.
 */
type SubmeshGeometry struct {
	IndexCount         uint32
	StartIndexLocation uint32
	BaseVertexLocation int32
}

type VertexBufferView struct {
	Address     GPUAddress
	SizeInBytes uint32
	Stride      uint32
}

type IndexBufferView struct {
	Address     GPUAddress
	SizeInBytes uint32
	Format      IndexFormat
}

/**
 * @brief A vertex and index allocation shared by several submeshes.
 * When VertexBuffer is nil the vertices live in a per-frame upload region and
 * the owner sets DynamicVertexBuffer every frame.
 */
type MeshGeometry struct {
	Name string

	VertexBuffer Buffer
	IndexBuffer  Buffer

	VertexByteStride     uint32
	VertexBufferByteSize uint32
	IndexFormat          IndexFormat
	IndexBufferByteSize  uint32

	DynamicVertexBuffer VertexBufferView

	// Submeshes resolved by name while a scene is built.
	DrawArgs map[string]SubmeshGeometry
}

func (g *MeshGeometry) VertexBufferView() VertexBufferView {
	if g.VertexBuffer == nil {
		return g.DynamicVertexBuffer
	}
	return VertexBufferView{
		Address:     g.VertexBuffer.Address(),
		SizeInBytes: g.VertexBufferByteSize,
		Stride:      g.VertexByteStride,
	}
}

func (g *MeshGeometry) IndexBufferView() IndexBufferView {
	return IndexBufferView{
		Address:     g.IndexBuffer.Address(),
		SizeInBytes: g.IndexBufferByteSize,
		Format:      g.IndexFormat,
	}
}

func (g *MeshGeometry) Destroy() {
	if g.VertexBuffer != nil {
		g.VertexBuffer.Destroy()
		g.VertexBuffer = nil
	}
	if g.IndexBuffer != nil {
		g.IndexBuffer.Destroy()
		g.IndexBuffer = nil
	}
}
