package upload

import (
	"testing"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/headless"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T) *headless.Device {
	t.Helper()
	d := headless.New(320, 240)
	t.Cleanup(func() { _ = d.Destroy() })
	return d
}

func TestConstantRegionPadsRecordsTo256Bytes(t *testing.T) {
	d := newDevice(t)
	r, err := NewRegion[metadata.ObjectConstants](d, "objects", 4, true)
	require.NoError(t, err)
	defer r.Destroy()

	assert.Equal(t, uint32(128), r.RecordSize())
	assert.Equal(t, uint64(256), r.ElementSize())
	assert.Equal(t, uint64(4*256), r.Buffer().Size())
	assert.Equal(t, r.Address()+3*256, r.AddressOf(3))

	pass, err := NewRegion[metadata.PassConstants](d, "pass", 1, true)
	require.NoError(t, err)
	defer pass.Destroy()
	assert.Equal(t, uint32(1216), pass.RecordSize())
	assert.Equal(t, uint64(1280), pass.ElementSize())
}

func TestVertexRegionIsTightlyPacked(t *testing.T) {
	d := newDevice(t)
	r, err := NewRegion[metadata.Vertex](d, "waves", 10, false)
	require.NoError(t, err)
	defer r.Destroy()
	assert.Equal(t, uint64(48), r.ElementSize())
}

func TestCopyDataRoundTrip(t *testing.T) {
	d := newDevice(t)
	r, err := NewRegion[metadata.ObjectConstants](d, "objects", 3, true)
	require.NoError(t, err)
	defer r.Destroy()

	rec := metadata.ObjectConstants{
		World:        math.NewMat4Translation(math.NewVec3(1, 2, 3)).Transposed(),
		TexTransform: math.NewMat4Scale(math.NewVec3(5, 5, 1)),
	}
	require.NoError(t, r.CopyData(2, &rec))

	got, err := r.Read(2)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	untouched, err := r.Read(1)
	require.NoError(t, err)
	assert.Equal(t, metadata.ObjectConstants{}, untouched)
}

func TestCopyDataRejectsOutOfRange(t *testing.T) {
	d := newDevice(t)
	r, err := NewRegion[metadata.ObjectConstants](d, "objects", 2, true)
	require.NoError(t, err)
	defer r.Destroy()

	rec := metadata.ObjectConstants{}
	err = r.CopyData(2, &rec)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	_, err = r.Read(7)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestRegionRejectsEmptyCapacity(t *testing.T) {
	d := newDevice(t)
	_, err := NewRegion[metadata.MaterialConstants](d, "materials", 0, true)
	assert.Error(t, err)
}
