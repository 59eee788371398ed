package config

// TelemetryConfig holds configuration for module telemetry ingestion.
type TelemetryConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
	StaleSeconds    int  `json:"stale_seconds"`
}

// Interval is the period between two applications of queued readings.
func (c TelemetryConfig) Interval() int {
	if c.IntervalSeconds <= 0 {
		return 1
	}
	return c.IntervalSeconds
}

// Stale is the silence after which a module that has reported before is
// considered dead. Zero disables the check.
func (c TelemetryConfig) Stale() int {
	if c.StaleSeconds < 0 {
		return 0
	}
	return c.StaleSeconds
}
