package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/powermux/core/model"
)

// StepDef is one scenario step: a connector command, a number of rebalance
// cycles, or module failures.
type StepDef struct {
	Connector int     `yaml:"connector"`
	Action    string  `yaml:"action"`
	Voltage   float64 `yaml:"voltage"`
	Current   float64 `yaml:"current"`
	Cycles    int     `yaml:"cycles"`
	Kill      []int   `yaml:"kill,omitempty"`
}

// ToModel converts a command step.
func (s StepDef) ToModel(id string) (model.Command, error) {
	action, err := model.ParseAction(s.Action)
	if err != nil {
		return model.Command{}, err
	}
	return model.Command{
		ID:            id,
		Connector:     model.ConnectorID(s.Connector),
		Action:        action,
		TargetVoltage: s.Voltage,
		TargetCurrent: s.Current,
	}, nil
}

type Expected struct {
	Assignments map[string][]int `yaml:"assignments"`
	RelaysOn    []uint16         `yaml:"relays_on"`
	MuxesOn     []uint16         `yaml:"muxes_on"`
	Partial     int              `yaml:"partial"`
}

type Scenario struct {
	Name           string    `yaml:"name"`
	Description    string    `yaml:"description,omitempty"`
	MaxCurrent     float64   `yaml:"max_current,omitempty"`
	FillIterations int       `yaml:"fill_iterations,omitempty"`
	DeadModules    []int     `yaml:"dead_modules,omitempty"`
	Steps          []StepDef `yaml:"steps"`
	Expected       *Expected `yaml:"expected,omitempty"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	return &sc, nil
}
