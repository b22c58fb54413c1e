package run

import (
	"os"

	"github.com/pkg/errors"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

// LoadSimulationPlan reads and validates a simulation plan file.
func LoadSimulationPlan(path string) (config.SimulationPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.SimulationPlan{}, errors.Wrapf(err, "failed to read simulation plan %s", path)
	}

	plan, err := config.DecodeSimulationPlan(data)
	if err != nil {
		return config.SimulationPlan{}, err
	}

	if err := plan.Validate(); err != nil {
		return config.SimulationPlan{}, err
	}

	return plan, nil
}
