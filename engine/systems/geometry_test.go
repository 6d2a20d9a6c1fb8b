package systems

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertValidMesh(t *testing.T, mesh *metadata.MeshData) {
	t.Helper()
	require.NotEmpty(t, mesh.Vertices)
	require.Zero(t, len(mesh.Indices32)%3)
	for _, idx := range mesh.Indices32 {
		require.Less(t, int(idx), len(mesh.Vertices))
	}
	for _, v := range mesh.Vertices {
		assert.InDelta(t, 1.0, v.Normal.Length(), 1e-4)
	}
}

func TestCreateBox(t *testing.T) {
	g := GeometryGenerator{}
	box, err := g.CreateBox(2, 4, 6, 0)
	require.NoError(t, err)
	assertValidMesh(t, box)
	assert.Len(t, box.Vertices, 24)
	assert.Len(t, box.Indices32, 36)
	for _, v := range box.Vertices {
		assert.Equal(t, float32(1), math32Abs(v.Position.X))
		assert.Equal(t, float32(2), math32Abs(v.Position.Y))
		assert.Equal(t, float32(3), math32Abs(v.Position.Z))
	}

	sub, err := g.CreateBox(8, 8, 8, 3)
	require.NoError(t, err)
	assertValidMesh(t, sub)
	assert.Len(t, sub.Indices32, 36*4*4*4)

	capped, err := g.CreateBox(1, 1, 1, 10)
	require.NoError(t, err)
	assert.Len(t, capped.Indices32, 36*4096)

	_, err = g.CreateBox(0, 1, 1, 0)
	assert.Error(t, err)
}

func math32Abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func TestCreateGrid(t *testing.T) {
	g := GeometryGenerator{}
	grid, err := g.CreateGrid(24, 24, 25, 25)
	require.NoError(t, err)
	assertValidMesh(t, grid)
	assert.Len(t, grid.Vertices, 625)
	assert.Len(t, grid.Indices32, 24*24*6)
	assert.Equal(t, math.NewVec3(-12, 0, 12), grid.Vertices[0].Position)
	assert.Equal(t, math.NewVec3(12, 0, -12), grid.Vertices[624].Position)
	assert.Equal(t, math.NewVec2(1, 1), grid.Vertices[624].TexC)

	_, err = g.CreateGrid(1, 1, 1, 5)
	assert.Error(t, err)
}

func TestCreateCylinder(t *testing.T) {
	g := GeometryGenerator{}
	column, err := g.CreateCylinder(0.5, 0.5, 1, 20, 20)
	require.NoError(t, err)
	assertValidMesh(t, column)
	// 21 rings of 21 vertices plus two caps of 21 rim vertices and a centre.
	assert.Len(t, column.Vertices, 21*21+2*22)
	assert.Len(t, column.Indices32, 20*20*6+2*20*3)

	// Side normals of a straight cylinder are horizontal.
	assert.InDelta(t, 0, column.Vertices[5].Normal.Y, 1e-5)

	cone, err := g.CreateCylinder(0.5, 0, 1, 10, 1)
	require.NoError(t, err)
	assertValidMesh(t, cone)
	assert.Greater(t, cone.Vertices[0].Normal.Y, float32(0), "cone sides lean upwards")

	_, err = g.CreateCylinder(1, 1, 1, 2, 1)
	assert.Error(t, err)
}

func TestCreateSphere(t *testing.T) {
	g := GeometryGenerator{}
	sphere, err := g.CreateSphere(0.5, 11, 10)
	require.NoError(t, err)
	assertValidMesh(t, sphere)
	assert.Len(t, sphere.Vertices, 2+9*12)
	assert.Len(t, sphere.Indices32, 11*3*2+8*11*6)
	for _, v := range sphere.Vertices {
		assert.InDelta(t, 0.5, v.Position.Length(), 1e-5)
	}

	// The column tops use the coarsest sphere: a single ring.
	coarse, err := g.CreateSphere(0.5, 4, 2)
	require.NoError(t, err)
	assertValidMesh(t, coarse)
	assert.Len(t, coarse.Vertices, 2+5)
	assert.Len(t, coarse.Indices32, 4*3*2)

	_, err = g.CreateSphere(0.5, 4, 1)
	assert.Error(t, err)
}

func TestGenerateMeshesInParallel(t *testing.T) {
	jobs, err := NewJobSystem(4, 8)
	require.NoError(t, err)
	defer jobs.Shutdown()

	requests := []MeshRequest{
		{Name: "box", Generate: func(g GeometryGenerator) (*metadata.MeshData, error) { return g.CreateBox(1, 1, 1, 0) }},
		{Name: "grid", Generate: func(g GeometryGenerator) (*metadata.MeshData, error) { return g.CreateGrid(24, 24, 25, 25) }},
		{Name: "column", Generate: func(g GeometryGenerator) (*metadata.MeshData, error) { return g.CreateCylinder(0.5, 0.5, 1, 20, 20) }},
		{Name: "top", Generate: func(g GeometryGenerator) (*metadata.MeshData, error) { return g.CreateSphere(0.5, 11, 10) }},
	}
	meshes, err := GenerateMeshes(jobs, requests)
	require.NoError(t, err)
	require.Len(t, meshes, 4)
	assert.Len(t, meshes["box"].Vertices, 24)
	assert.Len(t, meshes["grid"].Vertices, 625)
}

func TestGenerateMeshesReportsFailures(t *testing.T) {
	jobs, err := NewJobSystem(2, 0)
	require.NoError(t, err)
	defer jobs.Shutdown()

	boom := errors.New("boom")
	_, err = GenerateMeshes(jobs, []MeshRequest{
		{Name: "ok", Generate: func(g GeometryGenerator) (*metadata.MeshData, error) { return g.CreateBox(1, 1, 1, 0) }},
		{Name: "bad", Generate: func(g GeometryGenerator) (*metadata.MeshData, error) { return nil, boom }},
	})
	assert.ErrorIs(t, err, boom)
}

func TestJobSystemRejectsBadConfig(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	jobs, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	assert.NoError(t, jobs.Shutdown())
	assert.NoError(t, jobs.Shutdown(), "shutting down twice is harmless")
}
