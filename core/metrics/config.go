package metrics

import (
	"errors"
	"fmt"

	"github.com/kilianp07/powermux/core/factory"
)

// Config lists the sinks that receive cycle reports and the address of the
// Prometheus scrape endpoint.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	PrometheusAddr string                 `json:"prometheus_addr" yaml:"prometheus_addr"`
}

// Validate rejects sinks without a type and a second prometheus sink: both
// would register the same collectors.
func (c Config) Validate() error {
	var errs []error
	prom := 0
	for i, s := range c.Sinks {
		switch s.Type {
		case "":
			errs = append(errs, fmt.Errorf("sinks[%d]: type is required", i))
		case "prometheus":
			prom++
		}
	}
	if prom > 1 {
		errs = append(errs, errors.New("at most one prometheus sink"))
	}
	return errors.Join(errs...)
}
