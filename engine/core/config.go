package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

type BackendConfig struct {
	// "headless" or "vulkan".
	Name string `toml:"name"`
	// Enables validation layers on native backends.
	Debug bool `toml:"debug"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type FramesConfig struct {
	// Number of frames the CPU may record ahead of the GPU.
	InFlight uint32 `toml:"in_flight"`
}

type UploadConfig struct {
	// Size in bytes of each per-frame upload arena.
	ArenaSize uint64 `toml:"arena_size"`
}

type DescriptorsConfig struct {
	RTV       uint32 `toml:"rtv"`
	DSV       uint32 `toml:"dsv"`
	CBVSRVUAV uint32 `toml:"cbv_srv_uav"`
	Sampler   uint32 `toml:"sampler"`
}

type WindowConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Title  string `toml:"title"`
}

type Config struct {
	Backend     BackendConfig     `toml:"backend"`
	Log         LogConfig         `toml:"log"`
	Frames      FramesConfig      `toml:"frames"`
	Upload      UploadConfig      `toml:"upload"`
	Descriptors DescriptorsConfig `toml:"descriptors"`
	Window      WindowConfig      `toml:"window"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{Name: "headless"},
		Log:     LogConfig{Level: "info"},
		Frames:  FramesConfig{InFlight: 2},
		Upload:  UploadConfig{ArenaSize: 32 << 20},
		Descriptors: DescriptorsConfig{
			RTV:       64,
			DSV:       16,
			CBVSRVUAV: 4096,
			Sampler:   64,
		},
		Window: WindowConfig{Width: 1280, Height: 720, Title: "Benzin"},
	}
}

// LoadConfig reads a TOML config file on top of the defaults. A missing file
// is not an error, every setting has a default.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			LogInfo("config %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Frames.InFlight == 0 {
		return errors.New("frames.in_flight must be at least 1")
	}
	if c.Upload.ArenaSize == 0 {
		return errors.New("upload.arena_size must be greater than 0")
	}
	if c.Descriptors.CBVSRVUAV == 0 {
		return errors.New("descriptors.cbv_srv_uav must be greater than 0")
	}
	switch c.Backend.Name {
	case "headless", "vulkan":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend.Name)
	}
	return nil
}

// SameCapacities reports whether the settings fixed at device creation match.
// Anything else in the file can be applied while running.
func (c *Config) SameCapacities(o *Config) bool {
	return c.Frames == o.Frames && c.Upload == o.Upload &&
		c.Descriptors == o.Descriptors && c.Backend == o.Backend
}

// ConfigWatcher reloads the config file whenever it changes on disk.
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewConfigWatcher(path string, onReload func(*Config)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	// Watch the directory: editors usually replace the file instead of
	// writing it in place, which drops a watch on the file itself.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	cw := &ConfigWatcher{
		path:     abs,
		watcher:  w,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.start()
	return cw, nil
}

func (cw *ConfigWatcher) start() {
	defer cw.wg.Done()
	for {
		select {
		case e, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				LogWarn("config reload skipped: %s", err)
				continue
			}
			LogDebug("config %s reloaded", cw.path)
			cw.onReload(cfg)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			LogError("config watcher: %s", err)
		case <-cw.done:
			return
		}
	}
}

func (cw *ConfigWatcher) Close() error {
	var err error
	cw.closeOnce.Do(func() {
		close(cw.done)
		err = cw.watcher.Close()
		cw.wg.Wait()
	})
	return err
}
