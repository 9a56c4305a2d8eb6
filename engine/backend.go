package engine

import (
	"fmt"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/platform"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
	"github.com/navkagleb/benzin-sub002/engine/renderer/headless"
	"github.com/navkagleb/benzin-sub002/engine/renderer/vulkan"
)

// backend is the device selected by the config together with what has to be
// torn down with it.
type backend struct {
	name      string
	device    gpu.Device
	presenter gpu.Presenter
	release   func()
}

// openBackend creates the device named in cfg. The vulkan backend needs the
// window for the loader and its instance extensions.
func openBackend(name string, cfg *core.Config, p *platform.Platform) (*backend, error) {
	switch cfg.Backend.Name {
	case "headless":
		device := headless.NewDevice()
		presenter := headless.NewPresenter()
		return &backend{
			name:      cfg.Backend.Name,
			device:    device,
			presenter: presenter,
			release: func() {
				presenter.Release()
				device.Release()
			},
		}, nil
	case "vulkan":
		if p == nil {
			return nil, fmt.Errorf("vulkan backend requires a window")
		}
		device, err := vulkan.NewDevice(vulkan.Options{
			AppName:    name,
			ProcAddr:   p.VulkanProcAddr(),
			Extensions: p.RequiredInstanceExtensions(),
			Debug:      cfg.Backend.Debug,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create vulkan device: %w", err)
		}
		return &backend{
			name:    cfg.Backend.Name,
			device:  device,
			release: device.Release,
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Name)
	}
}

// needsWindow reports whether the backend draws to a platform window.
func needsWindow(cfg *core.Config) bool {
	return cfg.Backend.Name == "vulkan"
}
