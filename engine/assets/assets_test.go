package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waterTOML = `
name = "water"
texture_index = 1
diffuse_albedo = [1.0, 1.0, 1.0, 0.5]
fresnel_r0 = [0.2, 0.2, 0.2]
roughness = 0.0
`

func newAssetsDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, materialsDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, shadersDir), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, materialsDir, "water.toml"), []byte(waterTOML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, materialsDir, "grass.yaml"), []byte(
		"name: grass\ntexture_index: 0\ndiffuse_albedo: [1, 1, 1, 1]\nfresnel_r0: [0.01, 0.01, 0.01]\nroughness: 0.125\n"), 0o644))

	code := make([]byte, 16)
	binary.LittleEndian.PutUint32(code, metadata.SpirvMagic)
	require.NoError(t, os.WriteFile(filepath.Join(root, shadersDir, "castle.vert.spv"), code, 0o644))
	return root
}

func newManager(t *testing.T, root string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(root))
	t.Cleanup(func() { assert.NoError(t, am.Shutdown()) })
	return am
}

func TestLoadMaterials(t *testing.T) {
	am := newManager(t, newAssetsDir(t))

	materials, err := am.LoadMaterials()
	require.NoError(t, err)
	require.Len(t, materials, 2)
	// Ordered by file name.
	assert.Equal(t, "grass", materials[0].Name)
	assert.Equal(t, "water", materials[1].Name)
	assert.InDelta(t, 0.125, materials[0].Roughness, 1e-6)
}

func TestShaderSource(t *testing.T) {
	am := newManager(t, newAssetsDir(t))

	code, err := am.ShaderSource("castle.vert")
	require.NoError(t, err)
	assert.Len(t, code, 16)

	_, err = am.ShaderSource("missing.frag")
	assert.Error(t, err)
}

func TestMaterialChangeIsQueued(t *testing.T) {
	root := newAssetsDir(t)
	am := newManager(t, root)
	assert.Empty(t, am.MaterialChanges())

	updated := `
name = "water"
texture_index = 1
diffuse_albedo = [1.0, 1.0, 1.0, 0.5]
fresnel_r0 = [0.2, 0.2, 0.2]
roughness = 0.75
`
	require.NoError(t, os.WriteFile(filepath.Join(root, materialsDir, "water.toml"), []byte(updated), 0o644))

	var changes []*metadata.MaterialConfig
	require.Eventually(t, func() bool {
		changes = append(changes, am.MaterialChanges()...)
		for _, c := range changes {
			if c.Name == "water" && c.Roughness == 0.75 {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewMaterialFileIsIndexed(t *testing.T) {
	root := newAssetsDir(t)
	am := newManager(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, materialsDir, "stone.toml"), []byte("name = \"stone\"\ntexture_index = 3\n"), 0o644))

	require.Eventually(t, func() bool {
		res, err := am.LoadAsset("stone", metadata.ResourceTypeMaterial, nil)
		return err == nil && res.Data.(*metadata.MaterialConfig).DiffuseSrvHeapIndex == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInitializeRejectsMissingDirectory(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	assert.Error(t, am.Initialize(filepath.Join(t.TempDir(), "nope")))
	assert.NoError(t, am.Shutdown())
}
