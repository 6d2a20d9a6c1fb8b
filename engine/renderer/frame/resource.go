package frame

import (
	"fmt"

	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/renderer/upload"
)

type State uint8

const (
	// Never used, or retired (detected on the next visit).
	FRAME_STATE_IDLE State = iota
	// The CPU is writing constants and recording commands.
	FRAME_STATE_RECORDING
	// Submitted and carrying a fence checkpoint.
	FRAME_STATE_SUBMITTED
)

func (s State) String() string {
	switch s {
	case FRAME_STATE_IDLE:
		return "idle"
	case FRAME_STATE_RECORDING:
		return "recording"
	case FRAME_STATE_SUBMITTED:
		return "submitted"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

/**
 * @brief Sizes of the per-frame regions. Zero material or wave vertex counts
 * leave the optional regions out.
 */
type ResourceConfig struct {
	PassCount       uint32
	ObjectCount     uint32
	MaterialCount   uint32
	WaveVertexCount uint32
}

/**
 * @brief Everything the CPU needs to build one frame while the GPU reads the
 * others: a command allocator and one upload region per constant kind.
 * Created once per ring slot and never resized.
 */
type Resource struct {
	Index     int
	Allocator metadata.CommandAllocator

	PassCB     *upload.Region[metadata.PassConstants]
	ObjectCB   *upload.Region[metadata.ObjectConstants]
	MaterialCB *upload.Region[metadata.MaterialConstants]
	WavesVB    *upload.Region[metadata.Vertex]

	// Timeline value that marks this slot's last submission. 0 until first use.
	Fence uint64
	State State
}

func NewResource(device metadata.Device, index int, config ResourceConfig) (*Resource, error) {
	r := &Resource{Index: index}
	var err error

	if r.Allocator, err = device.CreateCommandAllocator(); err != nil {
		return nil, fmt.Errorf("frame resource %d: creating command allocator: %w", index, err)
	}
	if r.PassCB, err = upload.NewRegion[metadata.PassConstants](device, fmt.Sprintf("frame%d.pass", index), max(config.PassCount, 1), true); err != nil {
		r.Destroy()
		return nil, fmt.Errorf("frame resource %d: %w", index, err)
	}
	if r.ObjectCB, err = upload.NewRegion[metadata.ObjectConstants](device, fmt.Sprintf("frame%d.objects", index), config.ObjectCount, true); err != nil {
		r.Destroy()
		return nil, fmt.Errorf("frame resource %d: %w", index, err)
	}
	if config.MaterialCount > 0 {
		if r.MaterialCB, err = upload.NewRegion[metadata.MaterialConstants](device, fmt.Sprintf("frame%d.materials", index), config.MaterialCount, true); err != nil {
			r.Destroy()
			return nil, fmt.Errorf("frame resource %d: %w", index, err)
		}
	}
	if config.WaveVertexCount > 0 {
		if r.WavesVB, err = upload.NewRegion[metadata.Vertex](device, fmt.Sprintf("frame%d.waves", index), config.WaveVertexCount, false); err != nil {
			r.Destroy()
			return nil, fmt.Errorf("frame resource %d: %w", index, err)
		}
	}
	return r, nil
}

// Destroy releases the regions. The caller guarantees the GPU finished with them.
func (r *Resource) Destroy() {
	if r.WavesVB != nil {
		r.WavesVB.Destroy()
		r.WavesVB = nil
	}
	if r.MaterialCB != nil {
		r.MaterialCB.Destroy()
		r.MaterialCB = nil
	}
	if r.ObjectCB != nil {
		r.ObjectCB.Destroy()
		r.ObjectCB = nil
	}
	if r.PassCB != nil {
		r.PassCB.Destroy()
		r.PassCB = nil
	}
	if r.Allocator != nil {
		r.Allocator.Destroy()
		r.Allocator = nil
	}
}
