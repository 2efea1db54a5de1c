package protocol

import (
	"fmt"
	"os"
	"time"

	"github.com/turtacn/wmswitch/pkg/consts"
	"gopkg.in/yaml.v3"
)

// Config represents the root daemon settings read from wmswitch.yaml.
type Config struct {
	Version       string              `yaml:"version"`
	Candidates    CandidatesConfig    `yaml:"candidates"`
	Timing        TimingConfig        `yaml:"timing"`
	Probes        ProbesConfig        `yaml:"probes"`
	Platform      PlatformConfig      `yaml:"platform"`
	Store         StoreConfig         `yaml:"store"`
	Notify        NotifyConfig        `yaml:"notify"`
	Trigger       TriggerConfig       `yaml:"trigger"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type CandidateConfig struct {
	Name string `yaml:"name"` // Display only
	Exec string `yaml:"exec"` // Looked up on PATH
}

type CandidatesConfig struct {
	Primary  CandidateConfig `yaml:"primary"`  // 3D-capable
	Fallback CandidateConfig `yaml:"fallback"` // 2D compatibility
}

type TimingConfig struct {
	CheckPeriod  string `yaml:"check_period"`
	StartupDelay string `yaml:"startup_delay"`
	RespawnDelay string `yaml:"respawn_delay"`
	NotifyDelay  string `yaml:"notify_delay"`
	ProbeTimeout string `yaml:"probe_timeout"`
}

// ProbesConfig names the diagnostic sources. In XorgLogs "%d" is replaced by the X screen.
type ProbesConfig struct {
	XorgLogs     []string `yaml:"xorg_logs"`
	LspciCommand []string `yaml:"lspci_command"`
	LsmodCommand []string `yaml:"lsmod_command"`
	DRIInfo      []string `yaml:"driinfo_command"`
	DRMRoot      string   `yaml:"drm_root"`
}

type PlatformConfig struct {
	FallbackEnv      map[string]string `yaml:"fallback_env"`
	ReduceAnimations []string          `yaml:"reduce_animations_command"`
	KnownGoodDrivers []string          `yaml:"known_good_drivers"`
}

type StoreConfig struct {
	UserPath   string `yaml:"user_path"`
	GlobalPath string `yaml:"global_path"`
	Watch      bool   `yaml:"watch"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
}

type TriggerConfig struct {
	DBus       bool   `yaml:"dbus"`
	Signal     bool   `yaml:"signal"`
	SocketPath string `yaml:"socket_path"` // Empty means $XDG_RUNTIME_DIR/wmswitch.sock, "off" disables
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"` // Empty disables /metrics
	LogLevel    string `yaml:"log_level"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	cfg := base()
	cfg.ApplyDefaults()
	return cfg
}

// base holds the boolean defaults, which ApplyDefaults cannot tell apart from an explicit false.
func base() *Config {
	return &Config{
		Version: "1",
		Store:   StoreConfig{Watch: true},
		Notify:  NotifyConfig{Enabled: true},
		Trigger: TriggerConfig{DBus: true, Signal: true},
	}
}

// ApplyDefaults fills every empty field with its built-in value.
func (c *Config) ApplyDefaults() {
	setStr := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setCmd := func(dst *[]string, v ...string) {
		if len(*dst) == 0 {
			*dst = v
		}
	}

	setStr(&c.Candidates.Primary.Name, "deepin wm")
	setStr(&c.Candidates.Primary.Exec, "deepin-wm")
	setStr(&c.Candidates.Fallback.Name, "deepin metacity")
	setStr(&c.Candidates.Fallback.Exec, "deepin-metacity")

	setStr(&c.Timing.CheckPeriod, consts.DefaultCheckPeriod.String())
	setStr(&c.Timing.StartupDelay, consts.DefaultStartupDelay.String())
	setStr(&c.Timing.RespawnDelay, consts.DefaultRespawnDelay.String())
	setStr(&c.Timing.NotifyDelay, consts.DefaultNotifyDelay.String())
	setStr(&c.Timing.ProbeTimeout, consts.DefaultProbeTimeout.String())

	setCmd(&c.Probes.XorgLogs, "/var/log/Xorg.%d.log", "~/.local/share/xorg/Xorg.%d.log")
	setCmd(&c.Probes.LspciCommand, "lspci")
	setCmd(&c.Probes.LsmodCommand, "/sbin/lsmod")
	setCmd(&c.Probes.DRIInfo, "xdriinfo", "driver", "0")
	setStr(&c.Probes.DRMRoot, "/sys/class/drm")

	if c.Platform.FallbackEnv == nil {
		c.Platform.FallbackEnv = map[string]string{
			"LIBGL_ALWAYS_SOFTWARE": "1",
			"NO_AT_BRIDGE":          "1",
		}
	}
	setCmd(&c.Platform.ReduceAnimations, "gsettings", "set", "com.deepin.wrap.gnome.metacity", "reduced-resources", "true")
	setCmd(&c.Platform.KnownGoodDrivers, "radeon", "amdgpu", "fglrx")

	setStr(&c.Store.GlobalPath, consts.DefaultGlobalStatePath)
	setStr(&c.Notify.Command, consts.DefaultNotifyCommand)
	setStr(&c.Observability.LogLevel, "info")
}

// Durations is the parsed form of TimingConfig.
type Durations struct {
	CheckPeriod  time.Duration
	StartupDelay time.Duration
	RespawnDelay time.Duration
	NotifyDelay  time.Duration
	ProbeTimeout time.Duration
}

// Durations parses the timing section. Zero or negative values are rejected.
func (t TimingConfig) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"check_period", t.CheckPeriod, &d.CheckPeriod},
		{"startup_delay", t.StartupDelay, &d.StartupDelay},
		{"respawn_delay", t.RespawnDelay, &d.RespawnDelay},
		{"notify_delay", t.NotifyDelay, &d.NotifyDelay},
		{"probe_timeout", t.ProbeTimeout, &d.ProbeTimeout},
	}
	for _, f := range fields {
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return d, fmt.Errorf("timing.%s: %w", f.name, err)
		}
		if v <= 0 {
			return d, fmt.Errorf("timing.%s: must be positive, got %s", f.name, f.raw)
		}
		*f.dst = v
	}
	return d, nil
}

// Load reads settings from path. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg := base()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if _, err := cfg.Timing.Durations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Personal.AI order the ending
