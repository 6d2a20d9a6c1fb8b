package scenes

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/components"
	"github.com/spaghettifunk/castle/engine/renderer/frame"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
	"github.com/spaghettifunk/castle/engine/systems"
)

/**
 * @brief A testbed demo. It builds its scene once, then updates and renders
 * it every frame.
 */
type Demo interface {
	Name() string
	// Build generates and uploads the geometry and returns the scene together
	// with the renderer configuration it needs.
	Build(device metadata.Device, jobs *systems.JobSystem, frameResourceCount int) (*scene.Scene, renderer.Config, error)
	// Update runs before the frame resource is acquired.
	Update(deltaTime float32)
	Render(r *renderer.Renderer, fc *frame.Context, deltaTime, totalTime float32) error
	OnResize(width, height uint32)
	Camera() *components.Camera
}

type Options struct {
	// Materials read from disk. They replace the built in materials of the same name.
	Materials []*metadata.MaterialConfig
	// Seeds the wave disturbances.
	Seed uint64
	// Adds the hills terrain around the castle.
	Land bool
	// root_address or descriptor_table, empty for the demo's own choice.
	BindingMode string
}

// New creates the demo called variant.
func New(variant string, opts Options) (Demo, error) {
	switch strings.ToLower(variant) {
	case "", "castle":
		return NewCastle(opts), nil
	case "shapes":
		return NewShapes(opts), nil
	}
	return nil, fmt.Errorf("unknown demo %q, expected castle or shapes", variant)
}
