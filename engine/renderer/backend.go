package renderer

import "fmt"

type RendererType int

const (
	RENDERER_TYPE_VULKAN RendererType = iota
	// In-memory device, no window or GPU required.
	RENDERER_TYPE_HEADLESS
)

func (t RendererType) String() string {
	switch t {
	case RENDERER_TYPE_HEADLESS:
		return "headless"
	default:
		return "vulkan"
	}
}

func ParseRendererType(s string) (RendererType, error) {
	switch s {
	case "", "vulkan":
		return RENDERER_TYPE_VULKAN, nil
	case "headless":
		return RENDERER_TYPE_HEADLESS, nil
	default:
		return RENDERER_TYPE_VULKAN, fmt.Errorf("unknown renderer backend %q", s)
	}
}
