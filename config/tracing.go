package config

import (
	"fmt"
	"strings"
)

// TracingConfig governs the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	ServiceName string  `json:"service_name"`
	Exporter    string  `json:"exporter"` // stdout | otlp
	Endpoint    string  `json:"endpoint"`
	SampleRatio float64 `json:"sample_ratio"`
}

// SetDefaults applies default values.
func (c *TracingConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "powermux"
	}
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
	c.Exporter = strings.ToLower(c.Exporter)
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
}

// Validate checks the exporter and the sample ratio.
func (c TracingConfig) Validate() error {
	switch c.Exporter {
	case "stdout", "otlp", "":
	default:
		return fmt.Errorf("tracing: unsupported exporter %q", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("tracing: sample_ratio must be within [0,1]")
	}
	return nil
}
