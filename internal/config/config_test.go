package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/teslashibe/go-looktrigger/pkg/engine"
	"github.com/teslashibe/go-looktrigger/pkg/scene"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

const sampleYAML = `
server:
  addr: ":9090"
tick:
  interval: 50ms
scene:
  targets:
    - name: statue
      position: [10, 0, 0]
  volumes:
    - name: hall
      min: [-5, -5, -5]
      max: [5, 5, 5]
  monitors:
    - name: gaze
      volume: hall
      look_target: statue
      look_time: 1s
      field_of_view: 0.8
      fire_once: true
    - name: defaults
      volume: hall
      look_target: statue
`

func viperFromYAML(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	return v
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Tick.Interval != 20*time.Millisecond {
		t.Errorf("Tick.Interval = %v, want 20ms", cfg.Tick.Interval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid, got %v", errs)
	}
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(viperFromYAML(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Tick.Interval != 50*time.Millisecond {
		t.Errorf("Tick.Interval = %v, want 50ms", cfg.Tick.Interval)
	}
	if cfg.Tick.PawnTimeout != 10*time.Second {
		t.Errorf("Tick.PawnTimeout = %v, want default 10s", cfg.Tick.PawnTimeout)
	}
	if len(cfg.Scene.Monitors) != 2 {
		t.Fatalf("monitors = %d, want 2", len(cfg.Scene.Monitors))
	}

	gaze := cfg.Scene.Monitors[0].LookConfig()
	if gaze.LookTime != time.Second || gaze.FieldOfView != 0.8 || !gaze.FireOnce {
		t.Errorf("gaze config = %+v", gaze)
	}
	if gaze.Timeout != 4*time.Second {
		t.Errorf("unset timeout should default to 4s, got %v", gaze.Timeout)
	}

	defaults := cfg.Scene.Monitors[1].LookConfig()
	if defaults.LookTime != 500*time.Millisecond || defaults.FieldOfView != 0.5 || defaults.FireOnce {
		t.Errorf("defaults config = %+v", defaults)
	}
}

func TestLoad_ExplicitZeroLookTime(t *testing.T) {
	cfg, err := Load(viperFromYAML(t, `
scene:
  volumes: [{name: hall, min: [0,0,0], max: [1,1,1]}]
  monitors: [{name: m, volume: hall, look_target: x, look_time: 0s, timeout: 0s}]
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	lc := cfg.Scene.Monitors[0].LookConfig()
	if lc.LookTime != 0 || lc.Timeout != 0 {
		t.Errorf("explicit zeros should survive defaults, got %+v", lc)
	}
}

func TestLoad_BareNumbersAreSeconds(t *testing.T) {
	cfg, err := Load(viperFromYAML(t, `
tick:
  interval: 0.05
  pawn_timeout: 30
scene:
  volumes: [{name: hall, min: [0,0,0], max: [1,1,1]}]
  monitors: [{name: m, volume: hall, look_target: x, look_time: 1.5, timeout: 2}]
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Tick.Interval != 50*time.Millisecond {
		t.Errorf("Tick.Interval = %v, want 50ms", cfg.Tick.Interval)
	}
	if cfg.Tick.PawnTimeout != 30*time.Second {
		t.Errorf("Tick.PawnTimeout = %v, want 30s", cfg.Tick.PawnTimeout)
	}
	lc := cfg.Scene.Monitors[0].LookConfig()
	if lc.LookTime != 1500*time.Millisecond {
		t.Errorf("LookTime = %v, want 1.5s", lc.LookTime)
	}
	if lc.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", lc.Timeout)
	}
}

func TestLoad_NumericEnvDurationIsSeconds(t *testing.T) {
	t.Setenv("LOOKTRIGGER_TICK_PAWN_TIMEOUT", "2.5")

	v, err := NewViper("")
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tick.PawnTimeout != 2500*time.Millisecond {
		t.Errorf("Tick.PawnTimeout = %v, want 2.5s", cfg.Tick.PawnTimeout)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LOOKTRIGGER_SERVER_ADDR", ":7070")
	t.Setenv("LOOKTRIGGER_LOG_LEVEL", "debug")

	v, err := NewViper("")
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":7070" || cfg.Log.Level != "debug" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestNewViper_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Scene.Targets) != 1 || cfg.Scene.Targets[0].Name != "statue" {
		t.Errorf("targets = %+v", cfg.Scene.Targets)
	}

	if _, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing explicit config file should fail")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	_, err := Load(viperFromYAML(t, `
tick:
  interval: 0s
log:
  level: loud
scene:
  targets:
    - name: statue
      position: [1, 2]
    - name: statue
      position: [0, 0, 0]
  volumes:
    - name: hall
      min: [0, 0, 0]
      max: [1, 1, 1]
  monitors:
    - name: m
      volume: nowhere
      look_target: statue
      field_of_view: 2
`))

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Load() error = %v, want ValidationErrors", err)
	}

	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"tick.interval",
		"log.level",
		"scene.targets[0].position",
		"scene.targets[1].name",
		"scene.monitors[0].volume",
		"scene.monitors[0]",
	} {
		if !fields[want] {
			t.Errorf("missing validation error for %s; got %v", want, verrs)
		}
	}
	if !strings.Contains(verrs.Error(), "validation errors") {
		t.Errorf("Error() = %q", verrs.Error())
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "log.level", Value: "loud", Message: "bad"}
	if got, want := e.Error(), "log.level: bad (got: loud)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := (ValidationErrors{e}).Error(); got != e.Error() {
		t.Errorf("single ValidationErrors.Error() = %q", got)
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("empty ValidationErrors should render empty")
	}
}

func TestSceneApply(t *testing.T) {
	cfg, err := Load(viperFromYAML(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	eng := engine.New(cfg.EngineOptions(), scene.New(), nil)
	ids, err := cfg.Scene.Apply(eng)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(ids) != 2 || ids["gaze"] == "" {
		t.Fatalf("ids = %v", ids)
	}

	target, ok := eng.Scene().Get("statue")
	if !ok || target.Position != vec.New(10, 0, 0) {
		t.Errorf("target = %+v", target)
	}

	info, err := eng.Monitor(ids["gaze"])
	if err != nil {
		t.Fatal(err)
	}
	if info.Volume != "hall" || !info.Config.FireOnce {
		t.Errorf("monitor info = %+v", info)
	}
	if eng.Options().TickInterval != 50*time.Millisecond {
		t.Errorf("TickInterval = %v", eng.Options().TickInterval)
	}
}
