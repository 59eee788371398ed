package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/powermux/core/metrics"
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/scheduler"
	"github.com/kilianp07/powermux/infra/mqtt"
)

type Config struct {
	MQTT      mqtt.Config               `json:"mqtt"`
	Scheduler scheduler.SchedulerConfig `json:"scheduler"`
	Modules   ModulesConfig             `json:"modules"`
	Trigger   TriggerConfig             `json:"trigger"`
	Snapshot  SnapshotConfig            `json:"snapshot"`
	History   HistoryConfig             `json:"history"`
	Metrics   metrics.Config            `json:"metrics"`
	HTTP      HTTPConfig                `json:"http"`
	Sentry    SentryConfig              `json:"sentry"`
	Tracing   TracingConfig             `json:"tracing"`
	Log       LogConfig                 `json:"log"`
	Telemetry TelemetryConfig           `json:"telemetry"`
}

// ModulesConfig overrides the start-up capability of every module.
type ModulesConfig struct {
	MaxCurrent float64 `json:"max_current"`
}

// TriggerConfig points at the JSON trigger file polled for commands.
type TriggerConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SnapshotConfig controls the four state files.
type SnapshotConfig struct {
	Dir            string `json:"dir"`
	RestoreOnStart bool   `json:"restore_on_start"`
}

// HTTPConfig defines the API listener. Token, when set, guards the write and
// history endpoints.
type HTTPConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

// LogConfig sets the global log level.
type LogConfig struct {
	Level string `json:"level"`
}

// Default file locations.
const (
	DefaultTriggerPath = "trigger.json"
	DefaultSnapshotDir = "."
	DefaultHTTPAddr    = ":8080"
)

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Scheduler.SetDefaults()
	if c.Modules.MaxCurrent == 0 {
		c.Modules.MaxCurrent = model.BaseModuleCurrent
	}
	if c.Trigger.Path == "" {
		c.Trigger.Path = DefaultTriggerPath
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = DefaultSnapshotDir
	}
	c.History.SetDefaults()
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	c.Tracing.SetDefaults()
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error
	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if c.Modules.MaxCurrent < 0 {
		errs = append(errs, errors.New("modules: max_current must be positive"))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if err := c.History.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}
	if err := c.Sentry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sentry: %w", err))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Telemetry.Enabled && !c.MQTT.Enabled() {
		errs = append(errs, errors.New("telemetry: requires mqtt.broker"))
	}
	return errors.Join(errs...)
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, used when no
// file is given.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}
