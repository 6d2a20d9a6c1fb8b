package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/image/colornames"
)

const tolerance = 1e-4

func TestMat4InverseRoundTrip(t *testing.T) {
	m := NewMat4Scale(NewVec3(18, 8, 0.5)).
		Mul(NewMat4EulerY(0.5 * K_PI)).
		Mul(NewMat4Translation(NewVec3(-9, 4, 0)))

	inv := m.Inverse()
	assert.True(t, m.Mul(inv).Compare(NewMat4Identity(), tolerance))
	assert.True(t, inv.Mul(m).Compare(NewMat4Identity(), tolerance))
	assert.InDelta(t, 18*8*0.5, m.Determinant(), 1e-3)
}

func TestMat4InverseSingular(t *testing.T) {
	assert.Equal(t, Mat4{}, NewMat4Scale(NewVec3(1, 0, 1)).Inverse())
}

func TestMat4Transposed(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3))
	tr := m.Transposed()
	assert.Equal(t, float32(1), tr.Data[3])
	assert.Equal(t, float32(2), tr.Data[7])
	assert.Equal(t, float32(3), tr.Data[11])
	assert.Equal(t, m, tr.Transposed())
}

func TestScaleRotateTranslateOrder(t *testing.T) {
	// A unit point on +X scaled by 2, rotated 90 degrees about Y, then moved up.
	world := NewMat4Scale(NewVec3(2, 2, 2)).
		Mul(NewMat4EulerY(K_HALF_PI)).
		Mul(NewMat4Translation(NewVec3(0, 5, 0)))

	p := NewVec3(1, 0, 0).Transform(world)
	assert.True(t, p.Compare(NewVec3(0, 5, -2), tolerance), "got %v", p)
}

func TestLookAtLHMapsTargetOntoPositiveZ(t *testing.T) {
	eye := NewVec3(0, 0, -10)
	view := NewMat4LookAtLH(eye, NewVec3Zero(), NewVec3Up())

	assert.True(t, eye.Transform(view).Compare(NewVec3Zero(), tolerance))
	assert.True(t, NewVec3Zero().Transform(view).Compare(NewVec3(0, 0, 10), tolerance))
}

func TestPerspectiveFovLHDepthRange(t *testing.T) {
	proj := NewMat4PerspectiveFovLH(K_QUARTER_PI, 16.0/9.0, 1, 1000)

	depth := func(z float32) float32 {
		// clip = (0, 0, z, 1) * proj
		clipZ := z*proj.Data[10] + proj.Data[14]
		clipW := z * proj.Data[11]
		return clipZ / clipW
	}
	assert.InDelta(t, 0, depth(1), 1e-5)
	assert.InDelta(t, 1, depth(1000), 1e-5)
}

func TestVec3Helpers(t *testing.T) {
	v := NewVec3(3, 0, 4)
	assert.InDelta(t, 5, v.Length(), 1e-6)
	assert.True(t, v.Normalized().Compare(NewVec3(0.6, 0, 0.8), tolerance))
	assert.Equal(t, NewVec3Zero(), NewVec3Zero().Normalized())
	assert.Equal(t, NewVec3(0, 0, 1), NewVec3(1, 0, 0).Cross(NewVec3(0, 1, 0)))
}

func TestTransformCachesWorld(t *testing.T) {
	tr := TransformFromPositionRotationScale(NewVec3(0, 4, 9), NewVec3Zero(), NewVec3(18, 8, 0.5))
	w := tr.GetWorld()
	assert.False(t, tr.IsDirty)
	assert.Equal(t, float32(18), w.Data[0])
	assert.Equal(t, float32(9), w.Data[14])

	tr.Translate(NewVec3(1, 0, 0))
	assert.True(t, tr.IsDirty)
	assert.Equal(t, float32(1), tr.GetWorld().Data[12])
}

func TestClampAndColor(t *testing.T) {
	assert.Equal(t, 5, Clamp(2, 5, 150))
	assert.Equal(t, float32(150), Clamp(float32(300), 5, 150))

	c := NewVec4FromColor(colornames.Red)
	assert.Equal(t, NewVec4(1, 0, 0, 1), c)
}

func TestRandomRanges(t *testing.T) {
	r := NewRandom(7)
	for i := 0; i < 1000; i++ {
		n := r.IntRange(4, 123)
		assert.GreaterOrEqual(t, n, 4)
		assert.LessOrEqual(t, n, 123)
		f := r.FloatRange(0.2, 0.5)
		assert.GreaterOrEqual(t, f, float32(0.2))
		assert.LessOrEqual(t, f, float32(0.5))
	}
}
