package components

import (
	"testing"

	"github.com/spaghettifunk/castle/engine/math"
	"github.com/stretchr/testify/assert"
)

func TestCameraStartsOnSphere(t *testing.T) {
	c := NewCamera(CameraConfig{Theta: 1.5 * math.K_PI, Phi: math.K_HALF_PI - 0.1, Radius: 50, ZoomRate: 0.2})

	eye := c.GetPosition()
	assert.InDelta(t, 50, eye.Length(), 1e-3)
	// theta = 1.5 pi puts the eye on the -z side, looking at the castle front.
	assert.Less(t, eye.Z, float32(-40))
	assert.Greater(t, eye.Y, float32(0))

	// The origin ends up straight ahead at the eye distance.
	origin := math.NewVec3Zero().Transform(c.GetView())
	assert.InDelta(t, 0, origin.X, 1e-3)
	assert.InDelta(t, 0, origin.Y, 1e-3)
	assert.InDelta(t, 50, origin.Z, 1e-3)
}

func TestCameraRotateClampsPhi(t *testing.T) {
	c := NewCamera(CameraConfig{Theta: 0, Phi: 1, Radius: 10, ZoomRate: 0.2})

	c.Rotate(4, 0)
	assert.InDelta(t, 4*0.25*math.K_DEG2RAD_MULTIPLIER, c.Theta, 1e-6)
	assert.True(t, c.IsDirty)

	c.Rotate(0, 100000)
	assert.Equal(t, math.K_PI-0.1, c.Phi)
	c.Rotate(0, -100000)
	assert.Equal(t, float32(0.1), c.Phi)

	c.GetView()
	assert.False(t, c.IsDirty)
}

func TestCameraZoomClampsRadius(t *testing.T) {
	c := NewCamera(CameraConfig{Phi: 1, Radius: 35, ZoomRate: 0.05})

	c.Zoom(20, 0)
	assert.InDelta(t, 36, c.Radius, 1e-5)
	c.Zoom(0, 20)
	assert.InDelta(t, 35, c.Radius, 1e-5)

	c.Zoom(1e6, 0)
	assert.Equal(t, float32(150), c.Radius)
	c.Zoom(-1e6, 0)
	assert.Equal(t, float32(5), c.Radius)
}

func TestCameraProjection(t *testing.T) {
	c := NewCamera(CameraConfig{Phi: 1, Radius: 10})
	c.SetAspectRatio(2)
	p := c.GetProjection()
	assert.Equal(t, math.NewMat4PerspectiveFovLH(0.25*math.K_PI, 2, 1, 1000), p)
	assert.Equal(t, float32(1), c.NearZ())
	assert.Equal(t, float32(1000), c.FarZ())
}
