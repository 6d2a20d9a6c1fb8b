package renderer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/frame"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
)

/** @brief How per object and per pass constants reach the shaders. */
type BindingMode int

const (
	// Constants are bound by GPU address: object, material, pass, texture.
	BINDING_MODE_ROOT_ADDRESS BindingMode = iota
	// Constants are bound through descriptor heap views: object, pass.
	BINDING_MODE_DESCRIPTOR_TABLE
)

func ParseBindingMode(mode string) (BindingMode, error) {
	switch strings.ToLower(mode) {
	case "", "root_address":
		return BINDING_MODE_ROOT_ADDRESS, nil
	case "descriptor_table":
		return BINDING_MODE_DESCRIPTOR_TABLE, nil
	}
	return 0, fmt.Errorf("unknown binding mode %q", mode)
}

func (m BindingMode) String() string {
	if m == BINDING_MODE_DESCRIPTOR_TABLE {
		return "descriptor_table"
	}
	return "root_address"
}

// Root slots per binding mode.
const (
	rootSlotObject   uint32 = 0
	rootSlotMaterial uint32 = 1
	rootSlotPass     uint32 = 2
	rootSlotTexture  uint32 = 3

	tableSlotObject uint32 = 0
	tableSlotPass   uint32 = 1
)

type Config struct {
	FrameResourceCount int
	BindingMode        BindingMode
	ClearColour        math.Vec4
	VertexShader       string
	FragmentShader     string
	// Size of the per frame dynamic vertex region, 0 if unused.
	DynamicVertexCount uint32
}

/** @brief What UpdateFrame wrote into the current frame resource. */
type UpdateStats struct {
	Objects   int
	Materials int
}

/**
 * @brief Drives a frame: waits for a free frame resource, uploads the dirty
 * constants of the scene into it, records one draw per visible item and
 * submits the work.
 */
type Renderer struct {
	device metadata.Device
	scene  *scene.Scene
	config Config

	ring *frame.Ring
	list metadata.CommandList

	solid       metadata.PipelineState
	wireframe   metadata.PipelineState
	isWireframe bool

	// Descriptor table mode only.
	heap        metadata.DescriptorHeap
	objectCount uint32

	viewport metadata.Viewport
	scissor  metadata.ScissorRect
}

// New sizes the frame resources for the sealed scene and creates the pipelines.
func New(device metadata.Device, s *scene.Scene, config Config) (*Renderer, error) {
	if !s.Sealed() {
		return nil, fmt.Errorf("renderer requires a sealed scene")
	}
	if s.ItemCount() == 0 {
		return nil, fmt.Errorf("renderer requires at least one render item")
	}
	if config.FrameResourceCount == 0 {
		config.FrameResourceCount = frame.DefaultFrameResourceCount
	}
	if config.FrameResourceCount != s.FrameResourceCount() {
		return nil, fmt.Errorf("scene tracks %d frame resources, renderer was asked for %d", s.FrameResourceCount(), config.FrameResourceCount)
	}

	r := &Renderer{
		device:      device,
		scene:       s,
		config:      config,
		objectCount: s.ItemCount(),
	}

	resources := frame.ResourceConfig{
		PassCount:       1,
		ObjectCount:     s.ItemCount(),
		WaveVertexCount: config.DynamicVertexCount,
	}
	if config.BindingMode == BINDING_MODE_ROOT_ADDRESS {
		resources.MaterialCount = s.MaterialCount()
	}

	var err error
	if r.ring, err = frame.NewRing(device, config.FrameResourceCount, resources); err != nil {
		return nil, err
	}
	if err = r.createPipelines(); err != nil {
		r.Shutdown(context.Background())
		return nil, err
	}
	if config.BindingMode == BINDING_MODE_DESCRIPTOR_TABLE {
		if err = r.createDescriptorHeap(); err != nil {
			r.Shutdown(context.Background())
			return nil, err
		}
	}

	// Command lists start out recording; close it so the first frame can reset it.
	if r.list, err = device.CreateCommandList(r.ring.Resource(0).Allocator); err != nil {
		r.Shutdown(context.Background())
		return nil, fmt.Errorf("creating command list: %w", err)
	}
	if err = r.list.Close(); err != nil {
		r.Shutdown(context.Background())
		return nil, err
	}

	w, h := device.Surface().Size()
	r.setViewport(w, h)

	core.LogInfo("renderer ready: %d frame resources, %s binding, %d items, %d materials",
		config.FrameResourceCount, config.BindingMode, s.ItemCount(), resources.MaterialCount)
	return r, nil
}

func (r *Renderer) rootParameters() []metadata.RootParameter {
	object := uint32(metadata.RecordSize[metadata.ObjectConstants]())
	pass := uint32(metadata.RecordSize[metadata.PassConstants]())
	if r.config.BindingMode == BINDING_MODE_DESCRIPTOR_TABLE {
		return []metadata.RootParameter{
			{Kind: metadata.RootParameterDescriptorTable, RecordSize: object},
			{Kind: metadata.RootParameterDescriptorTable, RecordSize: pass},
		}
	}
	return []metadata.RootParameter{
		{Kind: metadata.RootParameterConstantBuffer, RecordSize: object},
		{Kind: metadata.RootParameterConstantBuffer, RecordSize: uint32(metadata.RecordSize[metadata.MaterialConstants]())},
		{Kind: metadata.RootParameterConstantBuffer, RecordSize: pass},
		{Kind: metadata.RootParameterTexture},
	}
}

func (r *Renderer) createPipelines() error {
	desc := metadata.PipelineDesc{
		Name:           "opaque",
		Parameters:     r.rootParameters(),
		VertexShader:   r.config.VertexShader,
		FragmentShader: r.config.FragmentShader,
		CullMode:       metadata.FaceCullModeBack,
	}
	var err error
	if r.solid, err = r.device.CreatePipelineState(desc); err != nil {
		return fmt.Errorf("creating pipeline %s: %w", desc.Name, err)
	}
	desc.Name = "opaque_wireframe"
	desc.IsWireframe = true
	desc.CullMode = metadata.FaceCullModeNone
	if r.wireframe, err = r.device.CreatePipelineState(desc); err != nil {
		return fmt.Errorf("creating pipeline %s: %w", desc.Name, err)
	}
	return nil
}

// Object views occupy [slot*objectCount + i]; the pass views follow at objectCount*N + slot.
func (r *Renderer) createDescriptorHeap() error {
	n := uint32(r.ring.Count())
	heap, err := r.device.CreateDescriptorHeap(r.objectCount*n + n)
	if err != nil {
		return fmt.Errorf("creating descriptor heap: %w", err)
	}
	r.heap = heap

	for slot := uint32(0); slot < n; slot++ {
		res := r.ring.Resource(int(slot))
		for i := uint32(0); i < r.objectCount; i++ {
			if err := heap.CreateConstantBufferView(r.objectDescriptor(slot, i), res.ObjectCB.AddressOf(i), uint32(res.ObjectCB.ElementSize())); err != nil {
				return fmt.Errorf("object view %d of frame resource %d: %w", i, slot, err)
			}
		}
		if err := heap.CreateConstantBufferView(r.passDescriptor(slot), res.PassCB.Address(), uint32(res.PassCB.ElementSize())); err != nil {
			return fmt.Errorf("pass view of frame resource %d: %w", slot, err)
		}
	}
	return nil
}

func (r *Renderer) objectDescriptor(slot, objCBIndex uint32) uint32 {
	return slot*r.objectCount + objCBIndex
}

func (r *Renderer) passDescriptor(slot uint32) uint32 {
	return r.objectCount*uint32(r.ring.Count()) + slot
}

func (r *Renderer) setViewport(width, height uint32) {
	r.viewport = metadata.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
	r.scissor = metadata.ScissorRect{Right: int32(width), Bottom: int32(height)}
}

// BeginFrame blocks until the next frame resource is free and returns it.
func (r *Renderer) BeginFrame(ctx context.Context) (*frame.Context, error) {
	return r.ring.Begin(ctx)
}

// UpdateFrame writes dirty object and material constants and the pass constants into the frame resource.
func (r *Renderer) UpdateFrame(fc *frame.Context, pass *metadata.PassConstants) (UpdateStats, error) {
	var stats UpdateStats
	var err error
	if stats.Objects, err = r.scene.UpdateObjectConstants(fc.Resource.ObjectCB); err != nil {
		return stats, err
	}
	if fc.Resource.MaterialCB != nil {
		if stats.Materials, err = r.scene.UpdateMaterialConstants(fc.Resource.MaterialCB); err != nil {
			return stats, err
		}
	}
	if err = fc.Resource.PassCB.CopyData(0, pass); err != nil {
		return stats, fmt.Errorf("updating pass constants: %w", err)
	}
	return stats, nil
}

// BindDynamicVertices points geo at the dynamic vertex region of the frame resource.
func (r *Renderer) BindDynamicVertices(fc *frame.Context, geo *metadata.MeshGeometry) error {
	region := fc.Resource.WavesVB
	if region == nil {
		return fmt.Errorf("frame resource %d has no dynamic vertex region", fc.Index)
	}
	geo.DynamicVertexBuffer = metadata.VertexBufferView{
		Address:     region.Address(),
		SizeInBytes: uint32(region.ElementSize()) * region.Capacity(),
		Stride:      uint32(region.ElementSize()),
	}
	return nil
}

// DrawFrame records the opaque layer, submits it, presents and marks the frame resource with a fence checkpoint.
func (r *Renderer) DrawFrame(fc *frame.Context) error {
	res := fc.Resource

	// The ring only hands out resources whose previous commands completed.
	if err := res.Allocator.Reset(); err != nil {
		return fmt.Errorf("resetting command allocator %d: %w", fc.Index, err)
	}
	pso := r.solid
	if r.isWireframe {
		pso = r.wireframe
	}
	if err := r.list.Reset(res.Allocator, pso); err != nil {
		return fmt.Errorf("resetting command list: %w", err)
	}

	target, err := r.device.Surface().CurrentBackBuffer()
	if err != nil {
		return err
	}

	r.list.SetViewport(r.viewport, r.scissor)
	r.list.BeginRenderPass(target, metadata.ClearValue{Colour: r.config.ClearColour, Depth: 1.0})

	slot := uint32(fc.Index)
	if r.config.BindingMode == BINDING_MODE_DESCRIPTOR_TABLE {
		r.list.SetDescriptorHeap(r.heap)
		r.list.SetDescriptorTable(tableSlotPass, r.passDescriptor(slot))
	} else {
		r.list.SetConstantBufferView(rootSlotPass, res.PassCB.Address())
	}

	r.drawRenderItems(fc, r.scene.Layer(scene.RENDER_LAYER_OPAQUE))

	r.list.EndRenderPass()
	if err := r.list.Close(); err != nil {
		return fmt.Errorf("closing command list: %w", err)
	}
	if err := r.device.Queue().Execute(r.list); err != nil {
		return fmt.Errorf("executing frame %d: %w", fc.Number, err)
	}

	presentErr := r.device.Surface().Present()
	if err := r.ring.End(fc); err != nil {
		return err
	}
	if presentErr != nil {
		if errors.Is(presentErr, core.ErrSwapchainBooting) {
			core.LogDebug("present skipped, swapchain is being recreated")
			return nil
		}
		return fmt.Errorf("presenting frame %d: %w", fc.Number, presentErr)
	}
	return nil
}

func (r *Renderer) drawRenderItems(fc *frame.Context, items []scene.ItemID) {
	res := fc.Resource
	slot := uint32(fc.Index)
	tableMode := r.config.BindingMode == BINDING_MODE_DESCRIPTOR_TABLE

	for _, id := range items {
		ri := r.scene.Item(id)
		geo := r.scene.Geometry(ri.Geometry)

		r.list.SetVertexBuffer(geo.VertexBufferView())
		r.list.SetIndexBuffer(geo.IndexBufferView())
		r.list.SetPrimitiveTopology(ri.PrimitiveType)

		if tableMode {
			r.list.SetDescriptorTable(tableSlotObject, r.objectDescriptor(slot, ri.ObjCBIndex))
		} else {
			r.list.SetConstantBufferView(rootSlotObject, res.ObjectCB.AddressOf(ri.ObjCBIndex))
			if ri.Material != scene.NoMaterial && res.MaterialCB != nil {
				mat := r.scene.Material(ri.Material)
				r.list.SetConstantBufferView(rootSlotMaterial, res.MaterialCB.AddressOf(mat.MatCBIndex))
				r.list.SetTexture(rootSlotTexture, mat.DiffuseSrvHeapIndex)
			}
		}

		r.list.DrawIndexedInstanced(ri.IndexCount, 1, ri.StartIndexLocation, ri.BaseVertexLocation, 0)
	}
}

// SetWireframe selects the pipeline used by the following frames.
func (r *Renderer) SetWireframe(enabled bool) {
	r.isWireframe = enabled
}

func (r *Renderer) IsWireframe() bool {
	return r.isWireframe
}

func (r *Renderer) FrameResourceCount() int {
	return r.ring.Count()
}

func (r *Renderer) Ring() *frame.Ring {
	return r.ring
}

// Flush waits until the GPU finished every submitted frame.
func (r *Renderer) Flush(ctx context.Context) error {
	return r.ring.Flush(ctx)
}

// OnResize drains the GPU before the surface is rebuilt.
func (r *Renderer) OnResize(ctx context.Context, width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if err := r.ring.Flush(ctx); err != nil {
		return err
	}
	if err := r.device.Surface().Resize(width, height); err != nil {
		return fmt.Errorf("resizing surface to %dx%d: %w", width, height, err)
	}
	r.setViewport(width, height)
	return nil
}

// Shutdown waits for the GPU and releases the frame resources and pipelines.
func (r *Renderer) Shutdown(ctx context.Context) error {
	var err error
	if r.ring != nil {
		err = r.ring.Destroy(ctx)
	}
	if r.heap != nil {
		r.heap.Destroy()
		r.heap = nil
	}
	if r.wireframe != nil {
		r.wireframe.Destroy()
		r.wireframe = nil
	}
	if r.solid != nil {
		r.solid.Destroy()
		r.solid = nil
	}
	return err
}
