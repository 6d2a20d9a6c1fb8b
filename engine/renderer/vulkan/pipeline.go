package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline, its layout and the set index of every root slot.
 */
type VulkanPipeline struct {
	device *Device
	desc   metadata.PipelineDesc

	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	Layout vk.PipelineLayout

	// Descriptor set index per root slot. Texture slots have no set.
	setIndex []uint32
}

type VulkanPipelineConfig struct {
	/** @brief The renderpass to associate with the pipeline. */
	Renderpass *VulkanRenderpass
	/** @brief The stride of the vertex data to be used. */
	Stride uint32
	/** @brief An array of attributes. */
	Attributes []vk.VertexInputAttributeDescription
	/** @brief An array of descriptor set layouts. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	/** @brief An array of stages. */
	Stages []vk.PipelineShaderStageCreateInfo
	/** @brief The face cull mode. */
	CullMode metadata.FaceCullMode
	/** @brief Indicates if this pipeline should use wireframe mode. */
	IsWireframe bool
	/** @brief An array of push constant data ranges. */
	PushConstantRanges []metadata.MemoryRange
}

// vertexAttributes describes metadata.Vertex: position, normal, texture coordinates, colour.
func vertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 24},
		{Location: 3, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 32},
	}
}

func (d *Device) CreatePipelineState(desc metadata.PipelineDesc) (metadata.PipelineState, error) {
	ctx := d.context
	if desc.IsWireframe && !ctx.Device.SupportsWireframe {
		return nil, fmt.Errorf("pipeline %s: device does not support wireframe fill mode", desc.Name)
	}

	p := &VulkanPipeline{device: d, desc: desc, setIndex: make([]uint32, len(desc.Parameters))}
	config := &VulkanPipelineConfig{
		Renderpass:  ctx.MainRenderpass,
		Stride:      uint32(metadata.RecordSize[metadata.Vertex]()),
		Attributes:  vertexAttributes(),
		CullMode:    desc.CullMode,
		IsWireframe: desc.IsWireframe,
	}
	for slot, param := range desc.Parameters {
		switch param.Kind {
		case metadata.RootParameterConstantBuffer:
			p.setIndex[slot] = uint32(len(config.DescriptorSetLayouts))
			config.DescriptorSetLayouts = append(config.DescriptorSetLayouts, ctx.DynamicSetLayout)
		case metadata.RootParameterDescriptorTable:
			p.setIndex[slot] = uint32(len(config.DescriptorSetLayouts))
			config.DescriptorSetLayouts = append(config.DescriptorSetLayouts, ctx.TableSetLayout)
		case metadata.RootParameterTexture:
			if len(config.PushConstantRanges) > 0 {
				return nil, fmt.Errorf("pipeline %s: only one texture slot is supported", desc.Name)
			}
			config.PushConstantRanges = append(config.PushConstantRanges, metadata.MemoryRange{Offset: 0, Size: uint64(texturePushConstantSize)})
		}
	}

	vertex, err := d.loadShader(desc.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	defer vertex.Destroy(ctx)
	fragment, err := d.loadShader(desc.FragmentShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, err
	}
	defer fragment.Destroy(ctx)
	config.Stages = []vk.PipelineShaderStageCreateInfo{vertex.ShaderStageCreateInfo, fragment.ShaderStageCreateInfo}

	if err := NewGraphicsPipeline(ctx, d.locks, config, p); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Name, err)
	}
	core.LogDebug("pipeline %s created with %d descriptor sets", desc.Name, len(config.DescriptorSetLayouts))
	return p, nil
}

func (d *Device) loadShader(name string, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if d.shaderSource == nil {
		return nil, fmt.Errorf("shader %s: no shader source configured", name)
	}
	code, err := d.shaderSource(name)
	if err != nil {
		return nil, fmt.Errorf("loading shader %s: %w", name, err)
	}
	return NewShaderStage(d.context, name, code, stage)
}

// NewGraphicsPipeline fills outPipeline's layout and handle.
func NewGraphicsPipeline(context *VulkanContext, locks *VulkanLockPool, config *VulkanPipelineConfig, outPipeline *VulkanPipeline) error {
	// Viewport and scissor are dynamic; only the counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeLine,
		LineWidth:               1.0,
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
	}
	if !config.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeFill
	}
	switch config.CullMode {
	case metadata.FaceCullModeNone:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	default:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth testing with writes, no stencil.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0, // Binding index
		Stride:    config.Stride,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}

	// Attributes
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(config.Attributes)),
		PVertexAttributeDescriptions:    config.Attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:    config.DescriptorSetLayouts,
	}

	// Push constants
	if len(config.PushConstantRanges) > 0 {
		// NOTE: 32 is the max number of ranges we can ever have, since only 128 bytes with 4-byte alignment are guaranteed.
		if len(config.PushConstantRanges) > 32 {
			return fmt.Errorf("cannot have more than 32 push constant ranges, passed count: %d", len(config.PushConstantRanges))
		}
		ranges := make([]vk.PushConstantRange, len(config.PushConstantRanges))
		for i, r := range config.PushConstantRanges {
			ranges[i].StageFlags = vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
			ranges[i].Offset = uint32(r.Offset)
			ranges[i].Size = uint32(r.Size)
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = uint32(len(ranges))
		pipelineLayoutCreateInfo.PPushConstantRanges = ranges
	}

	// Create the pipeline layout.
	if err := locks.SafeCall(PipelineManagement, func() error {
		var pPipelineLayout vk.PipelineLayout
		if err := checkResult("vkCreatePipelineLayout", vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pPipelineLayout)); err != nil {
			return err
		}
		outPipeline.Layout = pPipelineLayout
		return nil
	}); err != nil {
		return err
	}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.Layout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := locks.SafeCall(PipelineManagement, func() error {
		return checkResult("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
			context.Device.LogicalDevice,
			vk.PipelineCache(vk.NullHandle),
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			context.Allocator,
			pPipelines))
	}); err != nil {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, outPipeline.Layout, context.Allocator)
		outPipeline.Layout = nil
		return err
	}
	outPipeline.Handle = pPipelines[0]

	core.LogDebug("Graphics pipeline created!")
	return nil
}

func (pipeline *VulkanPipeline) Name() string {
	return pipeline.desc.Name
}

func (pipeline *VulkanPipeline) Destroy() {
	context := pipeline.device.context
	pipeline.device.locks.SafeCall(PipelineManagement, func() error {
		// Destroy pipeline
		if pipeline.Handle != nil {
			vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
			pipeline.Handle = nil
		}
		// Destroy layout
		if pipeline.Layout != nil {
			vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.Layout, context.Allocator)
			pipeline.Layout = nil
		}
		return nil
	})
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer) {
	vk.CmdBindPipeline(commandBuffer.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
}
