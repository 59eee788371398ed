package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SchedulerConfig defines the timing of the two actors.
type SchedulerConfig struct {
	RebalanceIntervalSeconds float64 `json:"rebalance_interval_seconds" yaml:"rebalance_interval_seconds"`
	PollIntervalSeconds      float64 `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	TickMillis               int     `json:"tick_millis" yaml:"tick_millis"`
	FillIterations           int     `json:"fill_iterations" yaml:"fill_iterations"`
}

// SetDefaults fills zero values: a cycle every 20 s, a poll every 5 s,
// 1 s shutdown ticks and 3 fill passes.
func (c *SchedulerConfig) SetDefaults() {
	if c.RebalanceIntervalSeconds == 0 {
		c.RebalanceIntervalSeconds = 20
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 5
	}
	if c.TickMillis == 0 {
		c.TickMillis = 1000
	}
	if c.FillIterations == 0 {
		c.FillIterations = 3
	}
}

// Validate rejects negative settings.
func (c SchedulerConfig) Validate() error {
	var errs []error
	if c.RebalanceIntervalSeconds < 0 {
		errs = append(errs, errors.New("rebalance_interval_seconds must be positive"))
	}
	if c.PollIntervalSeconds < 0 {
		errs = append(errs, errors.New("poll_interval_seconds must be positive"))
	}
	if c.TickMillis < 0 {
		errs = append(errs, errors.New("tick_millis must be positive"))
	}
	if c.FillIterations < 0 {
		errs = append(errs, errors.New("fill_iterations must be positive"))
	}
	return errors.Join(errs...)
}

// RebalanceInterval is the sleep between two cycles.
func (c SchedulerConfig) RebalanceInterval() time.Duration {
	return seconds(c.RebalanceIntervalSeconds)
}

// PollInterval is the sleep between two command polls.
func (c SchedulerConfig) PollInterval() time.Duration {
	return seconds(c.PollIntervalSeconds)
}

// Tick is the granularity at which sleeps observe shutdown.
func (c SchedulerConfig) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LoadConfig loads SchedulerConfig from a JSON or YAML file.
func LoadConfig(path string) (SchedulerConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SchedulerConfig{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var cfg SchedulerConfig
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	default:
		return SchedulerConfig{}, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}

// DecodeConfig reads from r to decode a SchedulerConfig.
func DecodeConfig(r io.Reader, format string) (SchedulerConfig, error) {
	var cfg SchedulerConfig
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		dec := json.NewDecoder(r)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported format: %s", format)
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}
