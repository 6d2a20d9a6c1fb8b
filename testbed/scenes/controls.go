package scenes

import (
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/components"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
)

// OrbitControls drives an orbit camera from the mouse: a left drag rotates, a right drag zooms.
type OrbitControls struct {
	camera *components.Camera
}

func NewOrbitControls(camera *components.Camera) *OrbitControls {
	return &OrbitControls{camera: camera}
}

// Update applies the cursor movement of the last frame.
func (o *OrbitControls) Update() {
	dx, dy := core.InputGetMouseDelta()
	if dx == 0 && dy == 0 {
		return
	}
	switch {
	case core.InputIsButtonDown(core.BUTTON_LEFT):
		o.camera.Rotate(float32(dx), float32(dy))
	case core.InputIsButtonDown(core.BUTTON_RIGHT):
		o.camera.Zoom(float32(dx), float32(dy))
	}
}

// passConstants builds the pass constants seen from camera. lighting may be nil.
func passConstants(camera *components.Camera, width, height uint32, deltaTime, totalTime float32, lighting *scene.Lighting) metadata.PassConstants {
	return renderer.BuildPassConstants(renderer.PassInput{
		View:      camera.GetView(),
		Proj:      camera.GetProjection(),
		EyePos:    camera.GetPosition(),
		Width:     width,
		Height:    height,
		NearZ:     camera.NearZ(),
		FarZ:      camera.FarZ(),
		TotalTime: totalTime,
		DeltaTime: deltaTime,
		Lighting:  lighting,
	})
}
