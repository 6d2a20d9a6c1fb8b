package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrCapacityExceeded = errors.New("index exceeds region capacity")
	ErrDeviceLost       = errors.New("device lost")
	ErrRingClosed       = errors.New("frame resource ring already destroyed")
	ErrFrameInProgress  = errors.New("a frame is already being recorded")
	ErrNoFrame          = errors.New("no frame is being recorded")
	ErrUnknownGeometry  = errors.New("unknown geometry")
	ErrUnknownSubmesh   = errors.New("unknown submesh")
	ErrUnknownMaterial  = errors.New("unknown material")
	ErrUnknownLayer     = errors.New("unknown render layer")
	ErrUnsupported      = errors.New("unsupported primitive topology")
	ErrSceneSealed      = errors.New("scene is sealed, no more items or materials can be added")
	ErrUnknown          = errors.New("unknown")
)
