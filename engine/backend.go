package engine

import (
	"fmt"

	"github.com/spaghettifunk/castle/engine/platform"
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/headless"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/renderer/vulkan"
)

type BackendConfig struct {
	Type            renderer.RendererType
	ApplicationName string
	Width           uint32
	Height          uint32
	Validation      bool
	ShaderSource    func(name string) ([]byte, error)
}

// NewDevice creates the device of the requested backend. Vulkan presents to the platform window.
func NewDevice(config BackendConfig, p *platform.Platform) (metadata.Device, error) {
	switch config.Type {
	case renderer.RENDERER_TYPE_HEADLESS:
		return headless.New(config.Width, config.Height), nil
	case renderer.RENDERER_TYPE_VULKAN:
		if p == nil || p.Window == nil {
			return nil, fmt.Errorf("the vulkan backend needs a window")
		}
		if config.ShaderSource == nil {
			return nil, fmt.Errorf("the vulkan backend needs a shader source")
		}
		device, err := vulkan.New(p, vulkan.Config{
			ApplicationName: config.ApplicationName,
			Width:           config.Width,
			Height:          config.Height,
			Validation:      config.Validation,
			ShaderSource:    config.ShaderSource,
		})
		if err != nil {
			return nil, err
		}
		return device, nil
	}
	return nil, fmt.Errorf("unsupported renderer backend %s", config.Type)
}
