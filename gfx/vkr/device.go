// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"

	"github.com/devblok/cubes/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Configuration is what the device is created with
type Configuration struct {
	// SwapchainSize is the minimum amount of presentable images
	SwapchainSize uint32

	// Extensions are the device extensions to enable
	Extensions []string

	// Extent is used when the surface leaves the size to the swapchain
	Extent gfx.Extent2D

	// DescriptorSets is the amount of descriptor sets that can be
	// allocated at once, one per renderer resource.
	DescriptorSets int

	// VertexShader and FragmentShader are compiled SPIR-V code
	VertexShader   []byte
	FragmentShader []byte

	// TextureSize and TextureCells shape the procedural checker texture
	TextureSize  int
	TextureCells int
}

// DefaultTextureSize and DefaultTextureCells are used for the
// checker texture when the configuration leaves them empty
const (
	DefaultTextureSize  = 256
	DefaultTextureCells = 8
)

// Device is a gfx.Device on a Vulkan logical device. It owns the
// swapchain, the render pass, the pipeline and the shared texture.
type Device struct {
	log log.FieldLogger
	cfg Configuration

	physical vk.PhysicalDevice
	logical  vk.Device
	queue    vk.Queue
	surface  vk.Surface

	graphicsQueueIndex uint32

	caps      gfx.Capabilities
	allocator *MemoryAllocator

	imageFormat     vk.Format
	imageColorspace vk.ColorSpace
	extent          gfx.Extent2D

	swapchain    vk.Swapchain
	images       []vk.Image
	imageViews   []vk.ImageView
	framebuffers []vk.Framebuffer

	depthImage  vk.Image
	depthView   vk.ImageView
	depthMemory Memory

	renderPass     vk.RenderPass
	setLayout      vk.DescriptorSetLayout
	descriptorPool vk.DescriptorPool
	shaders        []vk.ShaderModule
	pipelineCache  vk.PipelineCache
	pipeline       *Pipeline

	uploadPool vk.CommandPool
	texture    *Texture
}

// Pipeline is the graphics pipeline and the layout its sets bind against
type Pipeline struct {
	pipeline vk.Pipeline
	layout   vk.PipelineLayout
}

// NewDevice creates a logical device on the first physical device of
// the instance and prepares everything a frame needs.
func NewDevice(instance *Instance, cfg Configuration, logger log.FieldLogger) (*Device, error) {
	if len(cfg.VertexShader) == 0 || len(cfg.FragmentShader) == 0 {
		return nil, errors.New("vkr: vertex and fragment shaders are required")
	}
	if cfg.DescriptorSets < 1 {
		return nil, errors.Errorf("vkr: %d descriptor sets requested", cfg.DescriptorSets)
	}
	if cfg.TextureSize < 1 {
		cfg.TextureSize = DefaultTextureSize
	}
	if cfg.TextureCells < 1 {
		cfg.TextureCells = DefaultTextureCells
	}
	if len(instance.AvailableDevices()) == 0 {
		return nil, errors.New("vkr: no physical devices")
	}

	d := &Device{
		log:      logger,
		cfg:      cfg,
		physical: instance.AvailableDevices()[0],
		surface:  instance.Surface(),
		extent:   cfg.Extent,
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"logical device", d.createLogicalDevice},
		{"surface format", d.chooseSurfaceFormat},
		{"swapchain", d.createSwapchain},
		{"image views", d.createImageViews},
		{"depth image", d.prepareDepthImage},
		{"render pass", d.createRenderPass},
		{"descriptor set layout", d.createDescriptorSetLayout},
		{"shaders", d.loadShaders},
		{"pipeline cache", d.createPipelineCache},
		{"pipeline", d.createPipeline},
		{"framebuffers", d.createFramebuffers},
		{"descriptor pool", d.prepareDescriptorPool},
		{"upload pool", d.createUploadPool},
		{"texture", d.createTexture},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			d.Release()
			return nil, errors.Wrap(err, step.name)
		}
	}

	logger.WithFields(log.Fields{
		"device":    d.caps.DeviceName,
		"images":    len(d.images),
		"width":     d.extent.Width,
		"height":    d.extent.Height,
		"sets":      cfg.DescriptorSets,
		"queue":     d.graphicsQueueIndex,
		"memTypes":  len(d.caps.MemoryTypes),
		"extension": cfg.Extensions,
	}).Info("vulkan device created")
	return d, nil
}

// Capabilities implements gfx.Device
func (d *Device) Capabilities() gfx.Capabilities {
	return d.caps
}

// Extent implements gfx.Device
func (d *Device) Extent() gfx.Extent2D {
	return d.extent
}

// NewBuffer implements gfx.Device
func (d *Device) NewBuffer(size int, usage gfx.BufferUsage) (gfx.Buffer, error) {
	vkUsage, err := bufferUsage(usage)
	if err != nil {
		return nil, err
	}
	return NewBuffer(d.logical, size, vkUsage, d.allocator)
}

// Pipeline implements gfx.Device
func (d *Device) Pipeline() gfx.Pipeline {
	return d.pipeline
}

// Texture implements gfx.Device
func (d *Device) Texture() gfx.Texture {
	return d.texture
}

func (d *Device) createLogicalDevice() error {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &queueFamilyCount, queueFamilies)

	// one queue both draws and presents
	found := false
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(d.physical, i, d.surface, &supportsPresent)
		if supportsPresent.B() {
			d.graphicsQueueIndex = i
			found = true
			break
		}
	}
	if !found {
		return errors.New("could not find a queue family that draws and presents")
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.graphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(d.cfg.Extensions)),
		PpEnabledExtensionNames: safeStrings(d.cfg.Extensions),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: vk.True,
		}},
	}
	var device vk.Device
	if err := check("CreateDevice", vk.CreateDevice(d.physical, &dci, nil, &device)); err != nil {
		return err
	}
	d.logical = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.graphicsQueueIndex, 0, &queue)
	d.queue = queue

	d.caps = capabilitiesOf(d.physical)
	d.allocator = NewMemoryAllocator(d.logical, d.caps)
	return nil
}

func (d *Device) chooseSurfaceFormat() error {
	var surfaceFormatCount uint32
	if err := check("GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &surfaceFormatCount, nil)); err != nil {
		return err
	}
	if surfaceFormatCount == 0 {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): no formats")
	}
	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := check("GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return err
	}
	surfaceFormats[0].Deref()

	d.imageFormat = surfaceFormats[0].Format
	if d.imageFormat == vk.FormatUndefined {
		d.imageFormat = vk.FormatB8g8r8a8Unorm
	}
	d.imageColorspace = surfaceFormats[0].ColorSpace
	return nil
}

func (d *Device) createSwapchain() error {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := check("GetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &surfaceCapabilities)); err != nil {
		return err
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()

	// the surface decides the size unless it reports the special value
	if surfaceCapabilities.CurrentExtent.Width != math.MaxUint32 {
		d.extent = gfx.Extent2D{
			Width:  surfaceCapabilities.CurrentExtent.Width,
			Height: surfaceCapabilities.CurrentExtent.Height,
		}
	}
	if d.extent.Width == 0 || d.extent.Height == 0 {
		return errors.Errorf("surface extent %dx%d", d.extent.Width, d.extent.Height)
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for _, flag := range compositeAlphaFlags {
		if surfaceCapabilities.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	imageCount := d.cfg.SwapchainSize
	if imageCount < surfaceCapabilities.MinImageCount {
		imageCount = surfaceCapabilities.MinImageCount
	}
	if maxCount := surfaceCapabilities.MaxImageCount; maxCount > 0 && imageCount > maxCount {
		imageCount = maxCount
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surface,
		MinImageCount:   imageCount,
		ImageFormat:     d.imageFormat,
		ImageColorSpace: d.imageColorspace,
		ImageExtent: vk.Extent2D{
			Width:  d.extent.Width,
			Height: d.extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}
	var swapchain vk.Swapchain
	if err := check("CreateSwapchain", vk.CreateSwapchain(d.logical, &scci, nil, &swapchain)); err != nil {
		return err
	}
	d.swapchain = swapchain

	var numImages uint32
	if err := check("GetSwapchainImages", vk.GetSwapchainImages(d.logical, d.swapchain, &numImages, nil)); err != nil {
		return err
	}
	d.images = make([]vk.Image, numImages)
	if err := check("GetSwapchainImages", vk.GetSwapchainImages(d.logical, d.swapchain, &numImages, d.images)); err != nil {
		return err
	}

	d.caps.SwapchainSize = len(d.images)
	d.caps.Extent = d.extent
	return nil
}

func (d *Device) createImageViews() error {
	for idx, img := range d.images {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   d.imageFormat,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var imageView vk.ImageView
		if err := check("CreateImageView", vk.CreateImageView(d.logical, &ivci, nil, &imageView)); err != nil {
			return errors.Wrapf(err, "image %d", idx)
		}
		d.imageViews = append(d.imageViews, imageView)
	}
	return nil
}

func (d *Device) prepareDepthImage() error {
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.FormatD16Unorm,
		Extent: vk.Extent3D{
			Width:  d.extent.Width,
			Height: d.extent.Height,
			Depth:  1,
		},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
	}
	if err := check("CreateImage", vk.CreateImage(d.logical, &ici, nil, &d.depthImage)); err != nil {
		return err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, d.depthImage, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := d.allocator.Malloc(memoryRequirements, gfx.MemoryDeviceLocal)
	if err != nil {
		return err
	}
	d.depthMemory = memory

	if err := check("BindImageMemory", vk.BindImageMemory(d.logical, d.depthImage, d.depthMemory.Get(), 0)); err != nil {
		return err
	}

	ivci := vk.ImageViewCreateInfo{
		SType:  vk.StructureTypeImageViewCreateInfo,
		Format: vk.FormatD16Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
			LevelCount: 1,
			LayerCount: 1,
		},
		ViewType: vk.ImageViewType2d,
		Image:    d.depthImage,
	}
	return check("CreateImageView", vk.CreateImageView(d.logical, &ivci, nil, &d.depthView))
}

func (d *Device) createRenderPass() error {
	attachments := []vk.AttachmentDescription{
		{
			Format:         d.imageFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			// PresentBarrier moves the image on to the present layout
			FinalLayout: vk.ImageLayoutColorAttachmentOptimal,
		},
		{
			Format:         vk.FormatD16Unorm,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthAttachmentRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpassDependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorAttachmentRef)),
		PColorAttachments:       colorAttachmentRef,
		PDepthStencilAttachment: &depthAttachmentRef,
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{subpassDependency},
	}
	return check("CreateRenderPass", vk.CreateRenderPass(d.logical, &rpci, nil, &d.renderPass))
}

func (d *Device) createDescriptorSetLayout() error {
	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         1,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		},
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	return check("CreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.logical, &dslci, nil, &d.setLayout))
}

func (d *Device) loadShaders() error {
	for _, code := range [][]byte{d.cfg.VertexShader, d.cfg.FragmentShader} {
		smci := vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint(len(code)),
			PCode:    SliceUint32(code),
		}
		var module vk.ShaderModule
		if err := check("CreateShaderModule", vk.CreateShaderModule(d.logical, &smci, nil, &module)); err != nil {
			return err
		}
		d.shaders = append(d.shaders, module)
	}
	return nil
}

func (d *Device) createPipelineCache() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	return check("CreatePipelineCache", vk.CreatePipelineCache(d.logical, &pcci, nil, &d.pipelineCache))
}

func (d *Device) createFramebuffers() error {
	for _, view := range d.imageViews {
		attachments := []vk.ImageView{
			view,
			d.depthView,
		}
		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      d.renderPass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           d.extent.Width,
			Height:          d.extent.Height,
			Layers:          1,
		}
		var framebuffer vk.Framebuffer
		if err := check("CreateFramebuffer", vk.CreateFramebuffer(d.logical, &fci, nil, &framebuffer)); err != nil {
			return err
		}
		d.framebuffers = append(d.framebuffers, framebuffer)
	}
	return nil
}

func (d *Device) prepareDescriptorPool() error {
	sets := uint32(d.cfg.DescriptorSets)
	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: sets,
		},
		{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: sets,
		},
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       sets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	return check("CreateDescriptorPool", vk.CreateDescriptorPool(d.logical, &dpci, nil, &d.descriptorPool))
}

func (d *Device) createUploadPool() error {
	pool, err := d.createCommandPool(vk.CommandPoolCreateTransientBit)
	if err != nil {
		return err
	}
	d.uploadPool = pool
	return nil
}

func (d *Device) createTexture() error {
	tex, err := d.newTexture(CheckerImage(d.cfg.TextureSize, d.cfg.TextureCells))
	if err != nil {
		return err
	}
	d.texture = tex
	return nil
}

// Release waits for the device to go idle and destroys everything
// it created, in reverse order. Safe on a partially created device.
func (d *Device) Release() {
	if d.logical == nil {
		return
	}
	vk.DeviceWaitIdle(d.logical)

	if d.texture != nil {
		d.texture.Release()
		d.texture = nil
	}
	vk.DestroyCommandPool(d.logical, d.uploadPool, nil)
	vk.DestroyDescriptorPool(d.logical, d.descriptorPool, nil)

	for _, f := range d.framebuffers {
		vk.DestroyFramebuffer(d.logical, f, nil)
	}
	d.framebuffers = nil

	if d.pipeline != nil {
		vk.DestroyPipeline(d.logical, d.pipeline.pipeline, nil)
		vk.DestroyPipelineLayout(d.logical, d.pipeline.layout, nil)
		d.pipeline = nil
	}
	vk.DestroyPipelineCache(d.logical, d.pipelineCache, nil)
	for _, s := range d.shaders {
		vk.DestroyShaderModule(d.logical, s, nil)
	}
	d.shaders = nil
	vk.DestroyDescriptorSetLayout(d.logical, d.setLayout, nil)
	vk.DestroyRenderPass(d.logical, d.renderPass, nil)

	vk.DestroyImageView(d.logical, d.depthView, nil)
	vk.DestroyImage(d.logical, d.depthImage, nil)
	d.depthMemory.Release()

	for _, v := range d.imageViews {
		vk.DestroyImageView(d.logical, v, nil)
	}
	d.imageViews = nil

	vk.DestroySwapchain(d.logical, d.swapchain, nil)
	vk.DestroyDevice(d.logical, nil)
	d.logical = nil

	d.log.Info("vulkan device released")
}
