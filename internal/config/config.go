// Package config loads go-looktrigger service configuration through viper:
// defaults, an optional YAML file and LOOKTRIGGER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/teslashibe/go-looktrigger/pkg/engine"
	"github.com/teslashibe/go-looktrigger/pkg/lookat"
	"github.com/teslashibe/go-looktrigger/pkg/trigger"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// EnvPrefix prefixes environment overrides, e.g. LOOKTRIGGER_SERVER_ADDR
const EnvPrefix = "LOOKTRIGGER"

// Config is the complete service configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Tick   TickConfig   `mapstructure:"tick"`
	Log    LogConfig    `mapstructure:"log"`
	Debug  DebugConfig  `mapstructure:"debug"`
	Scene  SceneConfig  `mapstructure:"scene"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	AllowOrigins string `mapstructure:"allow_origins"`
	RequestLog   bool   `mapstructure:"request_log"`
}

// TickConfig controls the engine loop
type TickConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PawnTimeout time.Duration `mapstructure:"pawn_timeout"` // 0 keeps silent pawns forever
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json; empty follows GO_ENV
}

// DebugConfig enables diagnostics
type DebugConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Tracking bool `mapstructure:"tracking"`
}

// SceneConfig is the initial world: targets, trigger volumes and monitors
type SceneConfig struct {
	Targets  []TargetConfig  `mapstructure:"targets"`
	Volumes  []VolumeConfig  `mapstructure:"volumes"`
	Monitors []MonitorConfig `mapstructure:"monitors"`
}

// TargetConfig places a named look target
type TargetConfig struct {
	Name     string    `mapstructure:"name"`
	Position []float64 `mapstructure:"position"`
}

// VolumeConfig is an axis-aligned trigger box
type VolumeConfig struct {
	Name string    `mapstructure:"name"`
	Min  []float64 `mapstructure:"min"`
	Max  []float64 `mapstructure:"max"`
}

// MonitorConfig binds a look monitor to a volume. Unset tuning fields take
// the lookat defaults.
type MonitorConfig struct {
	Name        string         `mapstructure:"name"`
	Volume      string         `mapstructure:"volume"`
	LookTarget  string         `mapstructure:"look_target"`
	LookTime    *time.Duration `mapstructure:"look_time"`
	FieldOfView *float64       `mapstructure:"field_of_view"`
	Timeout     *time.Duration `mapstructure:"timeout"`
	FireOnce    bool           `mapstructure:"fire_once"`
}

// LookConfig returns the monitor's lookat configuration with defaults applied
func (m MonitorConfig) LookConfig() lookat.Config {
	cfg := lookat.DefaultConfig(lookat.TargetRef(m.LookTarget))
	if m.LookTime != nil {
		cfg.LookTime = *m.LookTime
	}
	if m.FieldOfView != nil {
		cfg.FieldOfView = *m.FieldOfView
	}
	if m.Timeout != nil {
		cfg.Timeout = *m.Timeout
	}
	cfg.FireOnce = m.FireOnce
	return cfg
}

// Default returns a Config with default values and an empty scene
func Default() *Config {
	opts := engine.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			AllowOrigins: "*",
		},
		Tick: TickConfig{
			Interval:    opts.TickInterval,
			PawnTimeout: opts.PawnTimeout,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Server defaults
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.allow_origins", defaults.Server.AllowOrigins)
	v.SetDefault("server.request_log", defaults.Server.RequestLog)

	// Tick defaults
	v.SetDefault("tick.interval", defaults.Tick.Interval)
	v.SetDefault("tick.pawn_timeout", defaults.Tick.PawnTimeout)

	// Logging defaults
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	// Debug defaults
	v.SetDefault("debug.enabled", defaults.Debug.Enabled)
	v.SetDefault("debug.tracking", defaults.Debug.Tracking)
}

// NewViper returns a viper instance with defaults and environment overrides.
// A non-empty file is read and must exist; otherwise ./looktrigger.yaml is
// read when present.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}

	v.SetConfigName("looktrigger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return &cfg, ValidationErrors(errs)
	}

	return &cfg, nil
}

// decodeHook extends viper's default hooks so that bare numbers given for a
// duration are read as seconds ("look_time: 1.5" is 1.5s, not 1ns).
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var durationType = reflect.TypeOf(time.Duration(0))

func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}

		var secs float64
		rv := reflect.ValueOf(data)
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			secs = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			secs = float64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			secs = rv.Float()
		case reflect.String:
			// Unit-suffixed strings are left to StringToTimeDurationHookFunc
			f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
			if err != nil {
				return data, nil
			}
			secs = f
		default:
			return data, nil
		}

		if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > math.MaxInt64/float64(time.Second) {
			return nil, fmt.Errorf("duration %v out of range", data)
		}
		return time.Duration(math.Round(secs * float64(time.Second))), nil
	}
}

// EngineOptions returns the engine tick options
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		TickInterval: c.Tick.Interval,
		PawnTimeout:  c.Tick.PawnTimeout,
	}
}

// Apply materializes the scene into eng: targets, then volumes, then monitors.
// It returns the created monitor IDs by name.
func (s SceneConfig) Apply(eng *engine.Engine) (map[string]string, error) {
	for _, t := range s.Targets {
		pos, err := vec.From(t.Position)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", t.Name, err)
		}
		if _, err := eng.Scene().AddTarget(t.Name, pos); err != nil {
			return nil, err
		}
	}

	for _, vc := range s.Volumes {
		lo, err := vec.From(vc.Min)
		if err != nil {
			return nil, fmt.Errorf("volume %q min: %w", vc.Name, err)
		}
		hi, err := vec.From(vc.Max)
		if err != nil {
			return nil, fmt.Errorf("volume %q max: %w", vc.Name, err)
		}
		if err := eng.AddVolume(trigger.NewVolume(vc.Name, lo, hi)); err != nil {
			return nil, err
		}
	}

	ids := make(map[string]string, len(s.Monitors))
	for _, mc := range s.Monitors {
		id, err := eng.AddMonitor(mc.Name, mc.Volume, mc.LookConfig())
		if err != nil {
			return nil, err
		}
		ids[mc.Name] = id
	}
	return ids, nil
}
