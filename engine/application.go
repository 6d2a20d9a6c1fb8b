package engine

import (
	"fmt"

	"github.com/spaghettifunk/castle/engine/assets/loaders"
	"github.com/spaghettifunk/castle/engine/renderer"
	"github.com/spaghettifunk/castle/engine/renderer/frame"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x" yaml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y" yaml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width" yaml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"start_height" yaml:"start_height"`
	// The application name used in windowing, if applicable.
	Name     string `toml:"name" yaml:"name"`
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// vulkan or headless.
	Backend string `toml:"backend" yaml:"backend"`
	// Enables the Vulkan validation layers.
	Validation bool `toml:"validation" yaml:"validation"`
	// root_address or descriptor_table. Empty lets the game choose.
	BindingMode        string `toml:"binding_mode" yaml:"binding_mode"`
	FrameResourceCount int    `toml:"frame_resource_count" yaml:"frame_resource_count"`
	AssetsDir          string `toml:"assets_dir" yaml:"assets_dir"`
	// Stops the run loop after this many frames, 0 runs until quit.
	FrameLimit uint64 `toml:"frame_limit" yaml:"frame_limit"`
	// Demo to launch: castle or shapes.
	Variant string `toml:"variant" yaml:"variant"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		StartPosX:          100,
		StartPosY:          100,
		StartWidth:         800,
		StartHeight:        600,
		Name:               "Castle",
		LogLevel:           "info",
		Backend:            renderer.RENDERER_TYPE_VULKAN.String(),
		FrameResourceCount: frame.DefaultFrameResourceCount,
		AssetsDir:          "assets",
		Variant:            "castle",
	}
}

// LoadApplicationConfig reads a TOML or YAML file over the defaults.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()
	if path == "" {
		return config, nil
	}
	if err := loaders.DecodeFile(path, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return fmt.Errorf("window size must not be zero, got %dx%d", c.StartWidth, c.StartHeight)
	}
	if c.FrameResourceCount < 1 {
		return fmt.Errorf("frame_resource_count must be at least 1, got %d", c.FrameResourceCount)
	}
	if _, err := renderer.ParseRendererType(c.Backend); err != nil {
		return err
	}
	if _, err := renderer.ParseBindingMode(c.BindingMode); err != nil {
		return err
	}
	return nil
}
