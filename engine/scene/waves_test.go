package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vertexSink struct {
	vertices map[uint32]metadata.Vertex
}

func (s *vertexSink) CopyData(index uint32, v *metadata.Vertex) error {
	s.vertices[index] = *v
	return nil
}

func TestWavesGridLayout(t *testing.T) {
	w, err := NewWaves(128, 128, 1.0, 0.03, 4.0, 0.2)
	require.NoError(t, err)

	assert.Equal(t, 128*128, w.VertexCount())
	assert.Equal(t, 127*127*2, w.TriangleCount())
	assert.Equal(t, float32(128), w.Width())
	assert.Equal(t, float32(128), w.Depth())
	assert.Equal(t, math.NewVec3(-63.5, 0, 63.5), w.Position(0))
	assert.Equal(t, math.NewVec3(63.5, 0, -63.5), w.Position(w.VertexCount()-1))
	assert.Len(t, w.Indices(), 3*w.TriangleCount())

	_, err = NewWaves(3, 3, 1, 0.03, 4, 0.2)
	assert.Error(t, err)
}

func TestWavesDisturbance(t *testing.T) {
	w, err := NewWaves(16, 16, 1.0, 0.03, 4.0, 0.2)
	require.NoError(t, err)

	require.NoError(t, w.Disturb(8, 8, 0.4))
	n := w.ColumnCount()
	assert.Equal(t, float32(0.4), w.Position(8*n+8).Y)
	assert.Equal(t, float32(0.2), w.Position(8*n+9).Y)
	assert.Equal(t, float32(0.2), w.Position(7*n+8).Y)

	assert.Error(t, w.Disturb(1, 8, 1))
	assert.Error(t, w.Disturb(8, 14, 1))

	// Nothing moves until a whole time step accumulated.
	w.Update(0.01)
	assert.Equal(t, float32(0), w.Position(6*n+8).Y)
	w.Update(0.03)
	w.Update(0.03)
	assert.NotEqual(t, float32(0), w.Position(6*n+8).Y, "the wave spreads to the neighbours")
	assert.InDelta(t, 1.0, w.Normal(8*n+9).Length(), 1e-5)
}

func TestWavesRandomDisturbanceStaysInside(t *testing.T) {
	w, err := NewWaves(16, 16, 1.0, 0.03, 4.0, 0.2)
	require.NoError(t, err)
	rng := math.NewRandom(7)
	for i := 0; i < 100; i++ {
		require.NoError(t, w.DisturbRandom(rng, 0.2, 0.5))
	}

	small, err := NewWaves(6, 6, 1.0, 0.03, 4.0, 0.2)
	require.NoError(t, err)
	assert.Error(t, small.DisturbRandom(rng, 0.2, 0.5))
}

func TestWavesVertexTexCoords(t *testing.T) {
	w, err := NewWaves(8, 8, 1.0, 0.03, 4.0, 0.2)
	require.NoError(t, err)

	sink := &vertexSink{vertices: map[uint32]metadata.Vertex{}}
	require.NoError(t, w.WriteVertices(sink))
	require.Len(t, sink.vertices, 64)

	first := sink.vertices[0]
	// (-3.5, 0, 3.5) on an 8x8 grid.
	assert.InDelta(t, 0.5-3.5/8.0, first.TexC.X, 1e-6)
	assert.InDelta(t, 0.5-3.5/8.0, first.TexC.Y, 1e-6)
	assert.Equal(t, math.NewVec3Up(), first.Normal)
}

func TestHills(t *testing.T) {
	assert.Equal(t, float32(0), HillsHeight(0, 0))
	x, z := float32(10), float32(-20)
	expected := 0.3 * (z*math32.Sin(1) + x*math32.Cos(-2))
	assert.InDelta(t, expected, HillsHeight(x, z), 1e-5)

	n := HillsNormal(x, z)
	assert.InDelta(t, 1.0, n.Length(), 1e-5)
	assert.Greater(t, n.Y, float32(0))

	mesh := quad()
	for i := range mesh.Vertices {
		mesh.Vertices[i].Position = math.NewVec3(float32(i*10), 0, float32(-i*5))
	}
	ApplyHills(mesh)
	for _, v := range mesh.Vertices {
		assert.Equal(t, HillsHeight(v.Position.X, v.Position.Z), v.Position.Y)
		assert.Equal(t, HillsNormal(v.Position.X, v.Position.Z), v.Normal)
	}
}

func TestCastleLightingFillsPass(t *testing.T) {
	var pass metadata.PassConstants
	pass.Lights[10].SpotPower = 99

	lighting := CastleLighting()
	lighting.Fill(&pass)

	assert.Equal(t, math.NewVec4(1, 1, 1, 1), pass.AmbientLight)
	assert.Equal(t, math.NewVec3(0.57735, -0.57735, 0.57735), pass.Lights[0].Direction)
	assert.Equal(t, math.NewVec3(-9, 13, -9), pass.Lights[1].Position)
	assert.Equal(t, float32(0.95), pass.Lights[5].SpotPower)
	assert.Equal(t, math.NewVec3(1, 0, 0), pass.Lights[5].Strength)
	assert.Equal(t, metadata.Light{}, pass.Lights[10], "unused slots are cleared")
}
