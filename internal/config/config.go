package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	mgl32 "github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/viper"

	"github.com/hellhand/kube/internal/native"
)

// Config represents the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Window   WindowConfig   `mapstructure:"window"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type WindowConfig struct {
	Title  string `mapstructure:"title"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

type RendererConfig struct {
	Validation     bool          `mapstructure:"validation"`
	FramesInFlight int           `mapstructure:"frames_in_flight"`
	PresentMode    string        `mapstructure:"present_mode"`
	ClearColor     []float32     `mapstructure:"clear_color"`
	FenceTimeout   time.Duration `mapstructure:"fence_timeout"`
}

type PoolConfig struct {
	// ReservedThreads are kept free for the main and render threads.
	ReservedThreads int `mapstructure:"reserved_threads"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

var presentModes = map[string]native.PresentMode{
	"immediate":    native.PresentModeImmediate,
	"mailbox":      native.PresentModeMailbox,
	"fifo":         native.PresentModeFifo,
	"fifo_relaxed": native.PresentModeFifoRelaxed,
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "Kube"},
		Window: WindowConfig{
			Title:  "demo",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			Validation:     true,
			FramesInFlight: 2,
			PresentMode:    "mailbox",
			ClearColor:     []float32{0.05, 0.05, 0.08, 1.0},
			FenceTimeout:   time.Second,
		},
		Pool: PoolConfig{ReservedThreads: 2},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".kube2d"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("kube")
	}

	v.SetEnvPrefix("KUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Same switch the validation layers have always honoured.
	if err := v.BindEnv("renderer.validation", "KUBE_RENDERER_VALIDATION", "VK_VALIDATION"); err != nil {
		return nil, errors.Wrap(err, "binding environment")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	cfg.Logging.File = expandPath(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Window.Title == "" {
		return errors.New("window.title must not be empty")
	}
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > 4 {
		return errors.New("renderer.frames_in_flight must be between 1 and 4")
	}
	if _, ok := presentModes[c.Renderer.PresentMode]; !ok {
		return errors.Newf("renderer.present_mode must be one of: %v", slices.Sorted(mapKeys(presentModes)))
	}
	if len(c.Renderer.ClearColor) != 4 {
		return errors.New("renderer.clear_color must have four components")
	}
	if c.Pool.ReservedThreads < 0 {
		return errors.New("pool.reserved_threads must not be negative")
	}
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.Logging.Level) {
		return errors.Newf("logging.level must be one of: %v", validLevels)
	}
	return nil
}

// PresentModes returns the preferred present mode followed by the
// fallbacks every device supports.
func (r RendererConfig) PresentModes() []native.PresentMode {
	modes := []native.PresentMode{presentModes[r.PresentMode]}
	for _, m := range []native.PresentMode{native.PresentModeMailbox, native.PresentModeFifo} {
		if !slices.Contains(modes, m) {
			modes = append(modes, m)
		}
	}
	return modes
}

// Clear returns the clear colour as RGBA.
func (r RendererConfig) Clear() mgl32.Vec4 {
	var c mgl32.Vec4
	copy(c[:], r.ClearColor)
	return c
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func mapKeys[V any](m map[string]V) func(func(string) bool) {
	return func(yield func(string) bool) {
		for k := range m {
			if !yield(k) {
				return
			}
		}
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("app.name", cfg.App.Name)

	v.SetDefault("window.title", cfg.Window.Title)
	v.SetDefault("window.width", cfg.Window.Width)
	v.SetDefault("window.height", cfg.Window.Height)

	v.SetDefault("renderer.validation", cfg.Renderer.Validation)
	v.SetDefault("renderer.frames_in_flight", cfg.Renderer.FramesInFlight)
	v.SetDefault("renderer.present_mode", cfg.Renderer.PresentMode)
	v.SetDefault("renderer.clear_color", cfg.Renderer.ClearColor)
	v.SetDefault("renderer.fence_timeout", cfg.Renderer.FenceTimeout)

	v.SetDefault("pool.reserved_threads", cfg.Pool.ReservedThreads)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
