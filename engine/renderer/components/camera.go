package components

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/castle/engine/math"
)

const (
	// Radians of rotation per pixel of mouse movement (a quarter of a degree).
	orbitRadiansPerPixel float32 = 0.25 * math.K_DEG2RAD_MULTIPLIER

	minPhi    float32 = 0.1
	maxPhi    float32 = math.K_PI - 0.1
	minRadius float32 = 5.0
	maxRadius float32 = 150.0
)

/** @brief Initial placement of an orbit camera. */
type CameraConfig struct {
	/** @brief Angle around the y-axis, in radians. */
	Theta float32
	/** @brief Angle from the +y axis, in radians. */
	Phi float32
	/** @brief Distance from the target. */
	Radius float32
	/** @brief Change in radius per pixel of zoom drag. */
	ZoomRate float32
}

/**
 * @brief A camera orbiting the origin on a sphere. The view matrix is
 * rebuilt lazily after the angles or the radius change.
 */
type Camera struct {
	/**
	 * @brief Spherical coordinates of the eye.
	 * NOTE: Do not set these directly, use Rotate and Zoom so the
	 * view matrix is recalculated when needed.
	 */
	Theta  float32
	Phi    float32
	Radius float32

	ZoomRate float32

	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool

	position   math.Vec3
	viewMatrix math.Mat4
	projection math.Mat4

	fovY, nearZ, farZ float32
}

func NewCamera(config CameraConfig) *Camera {
	c := &Camera{
		Theta:    config.Theta,
		Phi:      math.Clamp(config.Phi, minPhi, maxPhi),
		Radius:   math.Clamp(config.Radius, minRadius, maxRadius),
		ZoomRate: config.ZoomRate,
		IsDirty:  true,
		fovY:     0.25 * math.K_PI,
		nearZ:    1.0,
		farZ:     1000.0,
	}
	c.SetAspectRatio(1)
	return c
}

// Rotate orbits the camera by a mouse drag of (dx, dy) pixels.
func (c *Camera) Rotate(dx, dy float32) {
	c.Theta += orbitRadiansPerPixel * dx
	c.Phi = math.Clamp(c.Phi+orbitRadiansPerPixel*dy, minPhi, maxPhi)
	c.IsDirty = true
}

// Zoom moves the camera closer or farther by a mouse drag of (dx, dy) pixels.
func (c *Camera) Zoom(dx, dy float32) {
	c.Radius = math.Clamp(c.Radius+c.ZoomRate*(dx-dy), minRadius, maxRadius)
	c.IsDirty = true
}

// SetAspectRatio rebuilds the projection for a new render target shape.
func (c *Camera) SetAspectRatio(aspect float32) {
	c.projection = math.NewMat4PerspectiveFovLH(c.fovY, aspect, c.nearZ, c.farZ)
}

func (c *Camera) NearZ() float32 { return c.nearZ }
func (c *Camera) FarZ() float32  { return c.farZ }

func (c *Camera) GetProjection() math.Mat4 {
	return c.projection
}

func (c *Camera) GetPosition() math.Vec3 {
	c.update()
	return c.position
}

func (c *Camera) GetView() math.Mat4 {
	c.update()
	return c.viewMatrix
}

func (c *Camera) update() {
	if !c.IsDirty {
		return
	}
	sinPhi := math32.Sin(c.Phi)
	c.position = math.NewVec3(
		c.Radius*sinPhi*math32.Cos(c.Theta),
		c.Radius*math32.Cos(c.Phi),
		c.Radius*sinPhi*math32.Sin(c.Theta),
	)
	c.viewMatrix = math.NewMat4LookAtLH(c.position, math.NewVec3Zero(), math.NewVec3Up())
	c.IsDirty = false
}
