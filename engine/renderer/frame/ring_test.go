package frame

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/headless"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

type harness struct {
	device *headless.Device
	ring   *Ring
	list   metadata.CommandList
	pso    metadata.PipelineState
	lost   bool
}

func newHarness(t *testing.T, count int) *harness {
	t.Helper()
	device := headless.New(64, 64)
	ring, err := NewRing(device, count, ResourceConfig{PassCount: 1, ObjectCount: 2})
	require.NoError(t, err)

	pso, err := device.CreatePipelineState(metadata.PipelineDesc{
		Name: "test",
		Parameters: []metadata.RootParameter{
			{Kind: metadata.RootParameterConstantBuffer, RecordSize: uint32(metadata.RecordSize[metadata.PassConstants]())},
		},
	})
	require.NoError(t, err)
	list, err := device.CreateCommandList(ring.Resource(0).Allocator)
	require.NoError(t, err)
	require.NoError(t, list.Close())

	h := &harness{device: device, ring: ring, list: list, pso: pso}
	t.Cleanup(func() {
		device.Release()
		err := ring.Destroy(context.Background())
		if h.lost {
			assert.ErrorIs(t, err, core.ErrDeviceLost)
		} else {
			assert.NoError(t, err)
			assert.Equal(t, 0, device.LiveBuffers())
		}
		_ = device.Destroy()
	})
	return h
}

// frame writes the frame number into the pass constants, records one draw reading them and submits.
func (h *harness) frame(t *testing.T, ctx context.Context) *Context {
	t.Helper()
	fc, err := h.ring.Begin(ctx)
	require.NoError(t, err)
	h.submit(t, fc)
	return fc
}

func (h *harness) submit(t *testing.T, fc *Context) {
	t.Helper()
	pass := metadata.PassConstants{TotalTime: float32(fc.Number)}
	require.NoError(t, fc.Resource.PassCB.CopyData(0, &pass))

	require.NoError(t, fc.Resource.Allocator.Reset())
	require.NoError(t, h.list.Reset(fc.Resource.Allocator, h.pso))
	target, err := h.device.Surface().CurrentBackBuffer()
	require.NoError(t, err)
	h.list.BeginRenderPass(target, metadata.ClearValue{Depth: 1})
	h.list.SetConstantBufferView(0, fc.Resource.PassCB.Address())
	h.list.DrawIndexedInstanced(3, 1, 0, 0, 0)
	h.list.EndRenderPass()
	require.NoError(t, h.list.Close())
	require.NoError(t, h.device.Queue().Execute(h.list))
	require.NoError(t, h.ring.End(fc))
}

func TestSlotsRotateAndStartIdle(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	for n := 0; n < 7; n++ {
		fc := h.frame(t, ctx)
		assert.Equal(t, n%3, fc.Index)
		assert.Equal(t, uint64(n), fc.Number)
		assert.Equal(t, FRAME_STATE_SUBMITTED, fc.Resource.State)
		assert.Equal(t, uint64(n+1), fc.Resource.Fence)
	}
	assert.Equal(t, uint64(7), h.ring.FrameNumber())
}

func TestBeginDoesNotWaitForUnusedOrRetiredSlots(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	h.device.Hold()
	for n := 0; n < 3; n++ {
		fc := h.frame(t, ctx)
		assert.False(t, fc.Waited, "slot %d was never used and must not block", fc.Index)
	}
	assert.Equal(t, 3, h.ring.InFlight())

	h.device.Release()
	h.device.WaitIdle()
	fc := h.frame(t, ctx)
	assert.False(t, fc.Waited, "a retired slot is reused without blocking")
}

func TestBeginBlocksUntilCheckpointCompletes(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	// Move the timeline to 4 so that the first frame is stamped with 5.
	for i := 0; i < 4; i++ {
		require.NoError(t, h.ring.Timeline().Flush(ctx))
	}

	h.device.Hold()
	first := h.frame(t, ctx)
	require.Equal(t, 0, first.Index)
	require.Equal(t, uint64(5), first.Resource.Fence)
	h.frame(t, ctx)
	h.frame(t, ctx)

	begun := make(chan *Context, 1)
	go func() {
		fc, err := h.ring.Begin(ctx)
		if err != nil {
			begun <- nil
			return
		}
		begun <- fc
	}()

	select {
	case <-begun:
		t.Fatal("slot 0 was handed out while its checkpoint was still pending")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Less(t, h.ring.Timeline().Completed(), uint64(5))

	h.device.Release()
	select {
	case fc := <-begun:
		require.NotNil(t, fc)
		assert.Equal(t, 0, fc.Index)
		assert.True(t, fc.Waited)
		assert.GreaterOrEqual(t, h.ring.Timeline().Completed(), uint64(5))
		h.submit(t, fc)
	case <-time.After(time.Second):
		t.Fatal("Begin did not return after the GPU caught up")
	}
}

func TestGPUReadsTheDataOfItsOwnFrame(t *testing.T) {
	ctx := context.Background()
	for count := 1; count <= 4; count++ {
		t.Run(fmt.Sprintf("N=%d", count), func(t *testing.T) {
			h := newHarness(t, count)
			rng := rand.New(rand.NewSource(uint64(count)))

			const frames = 40
			for n := 0; n < frames; n++ {
				if rng.Intn(3) == 0 {
					h.device.Hold()
					// Release from another goroutine while Begin may be blocked.
					go func(d time.Duration) {
						time.Sleep(d)
						h.device.Release()
					}(time.Duration(rng.Intn(3)) * time.Millisecond)
				}
				fc, err := h.ring.Begin(ctx)
				require.NoError(t, err)
				assert.LessOrEqual(t, fc.Resource.Fence, h.ring.Timeline().Completed(),
					"slot %d handed out before its checkpoint completed", fc.Index)
				assert.LessOrEqual(t, h.ring.InFlight(), count)
				h.submit(t, fc)
			}
			h.device.Release()
			require.NoError(t, h.ring.Flush(ctx))

			lists := h.device.Executed()
			require.Len(t, lists, frames)
			for n, l := range lists {
				require.Empty(t, l.Errors)
				require.Len(t, l.Draws, 1)
				var pass metadata.PassConstants
				_, err := binary.Decode(l.Draws[0].Constants[0], binary.LittleEndian, &pass)
				require.NoError(t, err)
				assert.Equal(t, float32(n), pass.TotalTime, "frame %d was overwritten before the GPU read it", n)
			}
		})
	}
}

func TestFlushDrainsEverything(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	for n := 0; n < 3; n++ {
		h.frame(t, ctx)
	}
	require.NoError(t, h.ring.Flush(ctx))
	assert.Equal(t, 0, h.ring.InFlight())
	for i := 0; i < h.ring.Count(); i++ {
		assert.Equal(t, FRAME_STATE_IDLE, h.ring.Resource(i).State)
	}
}

func TestBeginEndMisuse(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	fc, err := h.ring.Begin(ctx)
	require.NoError(t, err)
	_, err = h.ring.Begin(ctx)
	assert.ErrorIs(t, err, core.ErrFrameInProgress)
	assert.ErrorIs(t, h.ring.End(&Context{}), core.ErrNoFrame)
	h.submit(t, fc)
	assert.ErrorIs(t, h.ring.End(fc), core.ErrNoFrame)
}

func TestDeviceLossIsReported(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	h.device.Hold()
	h.frame(t, ctx)
	h.device.LoseDevice()
	h.lost = true

	_, err := h.ring.Begin(ctx)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestRingRejectsZeroSlots(t *testing.T) {
	device := headless.New(8, 8)
	defer device.Destroy()
	_, err := NewRing(device, 0, ResourceConfig{ObjectCount: 1})
	assert.Error(t, err)
}
