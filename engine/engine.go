package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/platform"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

// Interval between two frame statistics log lines.
const statsInterval = 5 * time.Second

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config

	isRunning   atomic.Bool
	isSuspended bool

	events   *core.EventBus
	platform *platform.Platform
	backend  *backend
	context  *gpu.Context
	watcher  *core.ConfigWatcher
	reloads  chan *core.Config

	clock      *core.Clock
	metrics    *core.FrameMetrics
	lastTime   float64
	lastStats  gpu.PacerStats
	lastReport time.Time
	frames     uint64

	width  uint32
	height uint32
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("game and application config are required")
	}
	cfg, err := g.ApplicationConfig.resolveConfig()
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(core.ParseLogLevel(cfg.Log.Level))

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       core.NewEventBus(),
		reloads:      make(chan *core.Config, 1),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}, nil
}

func (e *Engine) Stage() Stage { return e.currentStage }

func (e *Engine) Events() *core.EventBus { return e.events }

// Context is nil before Initialize.
func (e *Engine) Context() *gpu.Context { return e.context }

func (e *Engine) Metrics() *core.FrameMetrics { return e.metrics }

// Device is nil before Initialize.
func (e *Engine) Device() gpu.Device {
	if e.backend == nil {
		return nil
	}
	return e.backend.device
}

// Frames is the number of frames rendered so far.
func (e *Engine) Frames() uint64 { return e.frames }

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	name := e.gameInstance.ApplicationConfig.Name
	if name == "" {
		name = e.config.Window.Title
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if needsWindow(e.config) {
		e.platform = platform.New(e.events)
		if err := e.platform.Startup(name, e.width, e.height); err != nil {
			return err
		}
		e.width, e.height = e.platform.FramebufferSize()
	}

	b, err := openBackend(name, e.config, e.platform)
	if err != nil {
		return err
	}
	e.backend = b

	opts := gpu.OptionsFromConfig(e.config)
	opts.Presenter = b.presenter
	ctx, err := gpu.NewContext(b.device, opts)
	if err != nil {
		return fmt.Errorf("failed to create gpu context: %w", err)
	}
	e.context = ctx
	core.LogInfo("%s backend ready, %d frames in flight", b.name, opts.InFlight)

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" && e.gameInstance.ApplicationConfig.Config == nil {
		w, err := core.NewConfigWatcher(path, e.queueReload)
		if err != nil {
			core.LogWarn("config %s will not be watched: %s", path, err)
		} else {
			e.watcher = w
		}
	}

	if fn := e.gameInstance.FnInitialize; fn != nil {
		if err := fn(e.context); err != nil {
			return err
		}
	}
	if fn := e.gameInstance.FnOnResize; fn != nil {
		if err := fn(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Quit asks the render loop to stop after the current frame. It is safe to
// call from any goroutine.
func (e *Engine) Quit() {
	e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	e.lastReport = time.Now()

	maxFrames := e.gameInstance.ApplicationConfig.MaxFrames

	for e.isRunning.Load() {
		if e.platform != nil && !e.platform.PumpMessages() {
			break
		}
		e.applyReloads()

		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if err := e.frame(delta); err != nil {
			if errors.Is(err, core.ErrDeviceLost) {
				core.LogError("device lost, stopping the render loop: %s", err)
				e.events.Fire(core.EVENT_CODE_DEVICE_LOST, e, core.EventContext{})
			} else {
				core.LogError("frame %d failed: %s", e.frames, err)
			}
			e.isRunning.Store(false)
			return err
		}

		e.metrics.Update(time.Since(frameStart).Seconds())
		e.recordPacerStats()
		e.frames++
		e.lastTime = currentTime

		if maxFrames > 0 && e.frames >= maxFrames {
			break
		}
	}
	e.isRunning.Store(false)
	return nil
}

func (e *Engine) frame(delta float64) error {
	if fn := e.gameInstance.FnUpdate; fn != nil {
		if err := fn(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}
	}
	f, err := e.context.BeginFrame()
	if err != nil {
		return err
	}
	if fn := e.gameInstance.FnRender; fn != nil {
		if err := fn(e.context, f, delta); err != nil {
			return fmt.Errorf("game render: %w", err)
		}
	}
	return e.context.EndFrame()
}

func (e *Engine) recordPacerStats() {
	stats := e.context.Pacer().Stats()
	if stats.Waits > e.lastStats.Waits {
		e.metrics.AddPacerWait(stats.Blocked - e.lastStats.Blocked)
	}
	e.lastStats = stats

	if time.Since(e.lastReport) < statsInterval {
		return
	}
	e.lastReport = time.Now()
	fps, ms := e.metrics.Frame()
	waits, blocked := e.metrics.PacerWaits()
	core.LogDebug("frame %d: %.0f fps, %.3f ms avg, %d pacer waits (%s blocked)", e.frames, fps, ms, waits, blocked)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.context != nil {
		if fn := e.gameInstance.FnShutdown; fn != nil {
			errs = append(errs, fn(e.context))
		}
		errs = append(errs, e.context.Shutdown())
		e.context = nil
	}
	if e.backend != nil {
		e.backend.release()
		e.backend = nil
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
		e.platform = nil
	}
	errs = append(errs, e.events.Shutdown())
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

// queueReload runs on the watcher goroutine and hands the config over to the
// render loop. Only the latest pending reload is kept.
func (e *Engine) queueReload(cfg *core.Config) {
	for {
		select {
		case e.reloads <- cfg:
			return
		default:
			select {
			case <-e.reloads:
			default:
			}
		}
	}
}

func (e *Engine) applyReloads() {
	select {
	case cfg := <-e.reloads:
		e.applyConfig(cfg)
	default:
	}
}

// applyConfig applies what can change while running. Capacities are fixed
// at device creation.
func (e *Engine) applyConfig(cfg *core.Config) {
	if cfg.Log.Level != e.config.Log.Level {
		core.SetLogLevel(core.ParseLogLevel(cfg.Log.Level))
		core.LogInfo("log level set to %s", cfg.Log.Level)
	}
	if !cfg.SameCapacities(e.config) {
		core.LogWarn("config changes to backend, frames, upload or descriptors take effect after a restart")
	}
	current := *e.config
	current.Log = cfg.Log
	current.Window.Title = cfg.Window.Title
	e.config = &current

	var ctx core.EventContext
	ctx.Data.C[0] = e.gameInstance.ApplicationConfig.ConfigPath
	e.events.Fire(core.EVENT_CODE_CONFIG_RELOADED, e, ctx)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.context != nil {
		if err := e.context.OnResize(width, height); err != nil {
			core.LogError("resize flush failed: %s", err)
			e.isRunning.Store(false)
			return false
		}
	}
	if fn := e.gameInstance.FnOnResize; fn != nil {
		if err := fn(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}
