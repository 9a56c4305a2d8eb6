package engine

import (
	"github.com/navkagleb/benzin-sub002/engine/core"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string
	// Path of the TOML config file. It is watched for changes while running.
	// Empty means defaults only.
	ConfigPath string
	// Config overrides the file when set.
	Config *core.Config
	// MaxFrames stops the render loop after that many frames. Zero runs
	// until quit.
	MaxFrames uint64
}

// resolveConfig loads the effective configuration.
func (ac *ApplicationConfig) resolveConfig() (*core.Config, error) {
	if ac.Config != nil {
		return ac.Config, ac.Config.Validate()
	}
	if ac.ConfigPath == "" {
		return core.DefaultConfig(), nil
	}
	return core.LoadConfig(ac.ConfigPath)
}
