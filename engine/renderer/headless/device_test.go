package headless

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T) *Device {
	t.Helper()
	d := New(640, 480)
	t.Cleanup(func() { _ = d.Destroy() })
	return d
}

func TestFenceSignalledInSubmissionOrder(t *testing.T) {
	d := newDevice(t)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	d.Hold()
	require.NoError(t, d.Queue().Signal(f, 1))
	require.NoError(t, d.Queue().Signal(f, 2))
	assert.Equal(t, uint64(0), f.CompletedValue(), "a held timeline must not progress")

	d.Release()
	require.NoError(t, f.WaitUntil(context.Background(), 2))
	assert.Equal(t, uint64(2), f.CompletedValue())
}

func TestFenceWaitHonoursContext(t *testing.T) {
	d := newDevice(t)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.WaitUntil(ctx, 1), context.DeadlineExceeded)
}

func TestLostDeviceFailsWaits(t *testing.T) {
	d := newDevice(t)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() { errs <- f.WaitUntil(context.Background(), 5) }()

	d.LoseDevice()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, core.ErrDeviceLost)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after device loss")
	}
}

func TestExecutedDrawSnapshotsBoundConstants(t *testing.T) {
	d := newDevice(t)

	buf, err := d.CreateUploadBuffer("object", 512)
	require.NoError(t, err)
	copy(buf.Bytes()[256:], []byte{1, 2, 3, 4})

	pso, err := d.CreatePipelineState(metadata.PipelineDesc{
		Name:       "opaque",
		Parameters: []metadata.RootParameter{{Kind: metadata.RootParameterConstantBuffer, RecordSize: 4}},
	})
	require.NoError(t, err)

	alloc, err := d.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := d.CreateCommandList(alloc)
	require.NoError(t, err)
	require.NoError(t, list.Close())

	require.NoError(t, list.Reset(alloc, pso))
	target, err := d.Surface().CurrentBackBuffer()
	require.NoError(t, err)
	list.BeginRenderPass(target, metadata.ClearValue{Depth: 1})
	list.SetConstantBufferView(0, buf.Address()+256)
	list.DrawIndexedInstanced(36, 1, 6, 8, 0)
	list.EndRenderPass()
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue().Execute(list))
	require.NoError(t, d.Surface().Present())
	d.WaitIdle()

	lists := d.Executed()
	require.Len(t, lists, 1)
	require.Empty(t, lists[0].Errors)
	require.Len(t, lists[0].Draws, 1)
	draw := lists[0].Draws[0]
	assert.Equal(t, "opaque", draw.Pipeline)
	assert.Equal(t, uint32(36), draw.IndexCount)
	assert.Equal(t, uint32(6), draw.StartIndex)
	assert.Equal(t, int32(8), draw.BaseVertex)
	assert.Equal(t, []byte{1, 2, 3, 4}, draw.Constants[0])
	assert.Equal(t, 1, d.Presents())

	buf.Destroy()
	assert.Equal(t, 0, d.LiveBuffers())
}

func TestStaticBufferIsNotMapped(t *testing.T) {
	d := newDevice(t)
	b, err := d.CreateStaticBuffer("indices", metadata.BufferUsageIndex, []byte{1, 0, 2, 0})
	require.NoError(t, err)
	assert.Nil(t, b.Bytes())
	assert.Equal(t, uint64(4), b.Size())

	_, err = d.CreateUploadBuffer("empty", 0)
	assert.Error(t, err)
}
