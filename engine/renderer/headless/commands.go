package headless

import (
	"fmt"

	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

type commandKind int

const (
	cmdSetViewport commandKind = iota
	cmdBeginRenderPass
	cmdEndRenderPass
	cmdSetPipeline
	cmdSetHeap
	cmdSetVertexBuffer
	cmdSetIndexBuffer
	cmdSetTopology
	cmdSetConstantBuffer
	cmdSetTable
	cmdSetTexture
	cmdDraw
)

type command struct {
	kind     commandKind
	slot     uint32
	index    uint32
	address  metadata.GPUAddress
	pipeline *PipelineState
	heap     *DescriptorHeap
	vertices metadata.VertexBufferView
	indices  metadata.IndexBufferView
	topology metadata.PrimitiveTopology
	clear    metadata.ClearValue
	target   uint32
	viewport metadata.Viewport
	draw     ExecutedDraw
}

/**
 * @brief Records commands into a slice. Nothing runs until the list is executed
 * on the queue.
 */
type CommandList struct {
	device    *Device
	allocator *CommandAllocator
	commands  []command
	recording bool
}

func (c *CommandList) Reset(alloc metadata.CommandAllocator, pso metadata.PipelineState) error {
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return fmt.Errorf("command allocator %T does not belong to the headless device", alloc)
	}
	if c.recording {
		return fmt.Errorf("command list reset while still recording")
	}
	c.allocator = a
	c.commands = c.commands[:0]
	c.recording = true
	if pso != nil {
		c.SetPipelineState(pso)
	}
	return nil
}

func (c *CommandList) SetViewport(viewport metadata.Viewport, scissor metadata.ScissorRect) {
	c.commands = append(c.commands, command{kind: cmdSetViewport, viewport: viewport})
}

func (c *CommandList) BeginRenderPass(target metadata.RenderTarget, clear metadata.ClearValue) {
	c.commands = append(c.commands, command{kind: cmdBeginRenderPass, target: target.Index(), clear: clear})
}

func (c *CommandList) EndRenderPass() {
	c.commands = append(c.commands, command{kind: cmdEndRenderPass})
}

func (c *CommandList) SetPipelineState(pso metadata.PipelineState) {
	p, _ := pso.(*PipelineState)
	c.commands = append(c.commands, command{kind: cmdSetPipeline, pipeline: p})
}

func (c *CommandList) SetDescriptorHeap(heap metadata.DescriptorHeap) {
	h, _ := heap.(*DescriptorHeap)
	c.commands = append(c.commands, command{kind: cmdSetHeap, heap: h})
}

func (c *CommandList) SetVertexBuffer(view metadata.VertexBufferView) {
	c.commands = append(c.commands, command{kind: cmdSetVertexBuffer, vertices: view})
}

func (c *CommandList) SetIndexBuffer(view metadata.IndexBufferView) {
	c.commands = append(c.commands, command{kind: cmdSetIndexBuffer, indices: view})
}

func (c *CommandList) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	c.commands = append(c.commands, command{kind: cmdSetTopology, topology: topology})
}

func (c *CommandList) SetConstantBufferView(slot uint32, address metadata.GPUAddress) {
	c.commands = append(c.commands, command{kind: cmdSetConstantBuffer, slot: slot, address: address})
}

func (c *CommandList) SetDescriptorTable(slot uint32, heapIndex uint32) {
	c.commands = append(c.commands, command{kind: cmdSetTable, slot: slot, index: heapIndex})
}

func (c *CommandList) SetTexture(slot uint32, textureIndex uint32) {
	c.commands = append(c.commands, command{kind: cmdSetTexture, slot: slot, index: textureIndex})
}

func (c *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	c.commands = append(c.commands, command{kind: cmdDraw, draw: ExecutedDraw{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		StartIndex:    startIndex,
		BaseVertex:    baseVertex,
		StartInstance: startInstance,
	}})
}

func (c *CommandList) Close() error {
	if !c.recording {
		return fmt.Errorf("command list closed twice")
	}
	c.recording = false
	return nil
}

/**
 * @brief One draw as the GPU timeline saw it. Constants holds, per root slot,
 * the bytes of the constant record bound at execution time.
 */
type ExecutedDraw struct {
	Pipeline      string
	Wireframe     bool
	Topology      metadata.PrimitiveTopology
	VertexBuffer  metadata.VertexBufferView
	IndexBuffer   metadata.IndexBufferView
	IndexCount    uint32
	InstanceCount uint32
	StartIndex    uint32
	BaseVertex    int32
	StartInstance uint32
	Addresses     map[uint32]metadata.GPUAddress
	Constants     map[uint32][]byte
	Textures      map[uint32]uint32
}

type ExecutedList struct {
	RenderTarget uint32
	Clear        metadata.ClearValue
	Viewport     metadata.Viewport
	Draws        []ExecutedDraw
	Errors       []error
}

// execute runs on the GPU timeline goroutine.
func (d *Device) execute(commands []command) ExecutedList {
	out := ExecutedList{}
	var (
		pipeline *PipelineState
		heap     *DescriptorHeap
		vertices metadata.VertexBufferView
		indices  metadata.IndexBufferView
		topology metadata.PrimitiveTopology
	)
	bound := map[uint32]metadata.GPUAddress{}
	textures := map[uint32]uint32{}

	fail := func(err error) { out.Errors = append(out.Errors, err) }

	for _, cmd := range commands {
		switch cmd.kind {
		case cmdSetViewport:
			out.Viewport = cmd.viewport
		case cmdBeginRenderPass:
			out.RenderTarget = cmd.target
			out.Clear = cmd.clear
		case cmdEndRenderPass:
		case cmdSetPipeline:
			pipeline = cmd.pipeline
		case cmdSetHeap:
			heap = cmd.heap
		case cmdSetVertexBuffer:
			vertices = cmd.vertices
		case cmdSetIndexBuffer:
			indices = cmd.indices
		case cmdSetTopology:
			topology = cmd.topology
		case cmdSetConstantBuffer:
			bound[cmd.slot] = cmd.address
		case cmdSetTable:
			if heap == nil {
				fail(fmt.Errorf("descriptor table bound to slot %d without a heap", cmd.slot))
				continue
			}
			view, err := heap.view(cmd.index)
			if err != nil {
				fail(err)
				continue
			}
			bound[cmd.slot] = view.address
		case cmdSetTexture:
			textures[cmd.slot] = cmd.index
		case cmdDraw:
			if pipeline == nil {
				fail(fmt.Errorf("draw without a pipeline"))
				continue
			}
			draw := cmd.draw
			draw.Pipeline = pipeline.desc.Name
			draw.Wireframe = pipeline.desc.IsWireframe
			draw.Topology = topology
			draw.VertexBuffer = vertices
			draw.IndexBuffer = indices
			draw.Addresses = make(map[uint32]metadata.GPUAddress, len(bound))
			draw.Constants = make(map[uint32][]byte, len(bound))
			draw.Textures = make(map[uint32]uint32, len(textures))
			for slot, address := range bound {
				draw.Addresses[slot] = address
				if int(slot) >= len(pipeline.desc.Parameters) {
					fail(fmt.Errorf("slot %d is not part of pipeline %s", slot, pipeline.desc.Name))
					continue
				}
				size := uint64(pipeline.desc.Parameters[slot].RecordSize)
				buf, offset, err := d.resolve(address)
				if err != nil {
					fail(err)
					continue
				}
				if offset+size > uint64(len(buf.data)) {
					fail(fmt.Errorf("record at %#x overruns buffer %s", uint64(address), buf.name))
					continue
				}
				draw.Constants[slot] = append([]byte(nil), buf.data[offset:offset+size]...)
			}
			for slot, index := range textures {
				draw.Textures[slot] = index
			}
			out.Draws = append(out.Draws, draw)
		}
	}
	return out
}
