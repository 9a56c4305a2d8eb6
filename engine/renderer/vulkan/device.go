package vulkan

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// Options configures instance and device creation.
type Options struct {
	AppName string
	// ProcAddr is vkGetInstanceProcAddr, usually taken from the windowing
	// library.
	ProcAddr unsafe.Pointer
	// Extensions the window needs on the instance.
	Extensions []string
	Debug      bool
	// RequireDiscrete skips integrated and software adapters.
	RequireDiscrete bool
}

// Device drives one Vulkan logical device through a single queue that
// accepts both graphics and transfer work.
type Device struct {
	context *VulkanContext
	namer   *core.Namer
	queue   *Queue
	lost    atomic.Bool
	live    atomic.Int64
}

var (
	_ gpu.Device               = (*Device)(nil)
	_ gpu.Queue                = (*Queue)(nil)
	_ gpu.Fence                = (*Fence)(nil)
	_ gpu.CommandList          = (*CommandList)(nil)
	_ gpu.NativeDescriptorHeap = (*DescriptorHeap)(nil)
	_ gpu.NativeResource       = (*Buffer)(nil)
	_ gpu.NativeResource       = (*Texture)(nil)
)

func NewDevice(opts Options) (*Device, error) {
	d := &Device{
		context: &VulkanContext{locks: NewVulkanLockPool()},
		namer:   core.NewNamer(),
	}
	if err := createInstance(d.context, opts.AppName, opts.ProcAddr, opts.Extensions, opts.Debug); err != nil {
		return nil, err
	}
	if err := selectPhysicalDevice(d.context, opts.RequireDiscrete); err != nil {
		destroyInstance(d.context)
		return nil, err
	}
	if err := createLogicalDevice(d.context); err != nil {
		destroyInstance(d.context)
		return nil, err
	}
	d.queue = &Queue{device: d, handle: d.context.Queue}
	core.LogInfo("vulkan device %s created", d.namer.Short())
	return d, nil
}

// check converts a result into an error and latches device loss.
func (d *Device) check(op string, res vk.Result) error {
	if res == vk.ErrorDeviceLost {
		if !d.lost.Swap(true) {
			core.LogError("vulkan device %s lost during %s", d.namer.Short(), op)
		}
	}
	return resultError(op, res)
}

func (d *Device) checkLost() error {
	if d.lost.Load() {
		return fmt.Errorf("vulkan device %s: %w", d.namer.Short(), core.ErrDeviceLost)
	}
	return nil
}

func (d *Device) handle() vk.Device {
	return d.context.LogicalDevice
}

func (d *Device) Queue() gpu.Queue {
	return d.queue
}

func (d *Device) IsLost() bool {
	return d.lost.Load()
}

// LiveObjects is the number of created objects not yet released.
func (d *Device) LiveObjects() int64 {
	return d.live.Load()
}

// WaitIdle blocks until the queue has drained.
func (d *Device) WaitIdle() error {
	return d.check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.handle()))
}

func (d *Device) Release() {
	if d.context.LogicalDevice == nil {
		return
	}
	if err := d.WaitIdle(); err != nil {
		core.LogWarn("waiting for device idle before release: %s", err)
	}
	if n := d.live.Load(); n != 0 {
		core.LogWarn("vulkan device %s released with %d live objects", d.namer.Short(), n)
	}
	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.context.LogicalDevice, d.context.Allocator)
	d.context.LogicalDevice = nil
	d.context.Queue = nil
	destroyInstance(d.context)
}

func selectPhysicalDevice(context *VulkanContext, requireDiscrete bool) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("vulkan: no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	if runtime.GOOS == "darwin" {
		requireDiscrete = false
	}

	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()
		name := cString(properties.DeviceName[:])

		if requireDiscrete && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
			continue
		}
		family, ok := findQueueFamily(physicalDevice)
		if !ok {
			core.LogInfo("Device '%s' has no graphics queue with transfer support. Skipping.", name)
			continue
		}

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
		memory.Deref()

		core.LogInfo("Selected device: '%s' (%s).", name, deviceTypeName(properties.DeviceType))
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.ApiVersion)),
			vk.Version.Minor(vk.Version(properties.ApiVersion)),
			vk.Version.Patch(vk.Version(properties.ApiVersion)),
		)
		for j := uint32(0); j < memory.MemoryHeapCount; j++ {
			memory.MemoryHeaps[j].Deref()
			sizeGib := float64(memory.MemoryHeaps[j].Size) / 1024 / 1024 / 1024
			if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
				core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
			} else {
				core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
			}
		}

		context.PhysicalDevice = physicalDevice
		context.QueueFamily = family
		context.Properties = properties
		context.Memory = memory
		return nil
	}
	return fmt.Errorf("vulkan: no physical devices were found which meet the requirements")
}

func findQueueFamily(physicalDevice vk.PhysicalDevice) (uint32, bool) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, queueFamilies)

	// Graphics queues implicitly support transfer operations.
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	default:
		return "Unknown"
	}
}

func hasDeviceExtension(physicalDevice vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, extensions); res != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		if cString(extensions[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func createLogicalDevice(context *VulkanContext) error {
	core.LogInfo("Creating logical device...")

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: context.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	var extensionNames []string
	if hasDeviceExtension(context.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(context.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		return resultError("vkCreateDevice", res)
	}
	context.LogicalDevice = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, context.QueueFamily, 0, &queue)
	context.Queue = queue
	core.LogInfo("Logical device created, queue family %d.", context.QueueFamily)
	return nil
}
