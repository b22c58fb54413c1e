package run

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

const (
	simulationLogFile  = "simulation.log"
	simulationPlanFile = "simulation_plan.json"
	statusLogFile      = "upkeep_status.log"
	balanceChartFile   = "balances.html"
)

// Outputs are the file handles a simulation writes to.
type Outputs struct {
	SimulationLog *log.Logger
	// StatusCollector receives one line per upkeep check and perform.
	StatusCollector io.Writer

	path    string
	handles []*os.File
}

// CreateFile opens a named file in the output directory. The handle is
// closed with the outputs.
func (out *Outputs) CreateFile(name string) (io.Writer, error) {
	if out.path == "" {
		return io.Discard, nil
	}

	f, err := os.OpenFile(filepath.Join(out.path, name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file (%s): %w", name, err)
	}

	out.handles = append(out.handles, f)

	return f, nil
}

// BalanceChart opens the HTML file the balance chart is rendered to.
func (out *Outputs) BalanceChart() (io.Writer, error) {
	return out.CreateFile(balanceChartFile)
}

func (out *Outputs) Close() error {
	var err error

	for _, handle := range out.handles {
		err = errors.Join(err, handle.Close())
	}

	out.handles = nil

	return err
}

// SetupOutput prepares the output directory. Without verbose output every
// writer discards.
func SetupOutput(path string, simulate, verbose bool, plan config.SimulationPlan) (*Outputs, error) {
	if !verbose {
		return &Outputs{
			SimulationLog:   log.New(io.Discard, "", 0),
			StatusCollector: io.Discard,
		}, nil
	}

	// always setup the output directory
	// the simulation will write to this directory and charts will read
	err := os.MkdirAll(path, 0750)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, err
	}

	out := &Outputs{
		SimulationLog:   log.New(io.Discard, "", 0),
		StatusCollector: io.Discard,
		path:            path,
	}

	// a previous run keeps its log and plan unless a new simulation starts
	if !simulate {
		return out, nil
	}

	logFile, err := out.CreateFile(simulationLogFile)
	if err != nil {
		return nil, errors.Join(err, out.Close())
	}

	out.SimulationLog = log.New(logFile, "", log.LstdFlags)

	if err := saveSimulationPlanToOutput(out, plan); err != nil {
		return nil, errors.Join(err, out.Close())
	}

	status, err := out.CreateFile(statusLogFile)
	if err != nil {
		return nil, errors.Join(err, out.Close())
	}

	out.StatusCollector = status

	return out, nil
}

func saveSimulationPlanToOutput(out *Outputs, plan config.SimulationPlan) error {
	b, err := plan.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode simulation plan: %w", err)
	}

	f, err := out.CreateFile(simulationPlanFile)
	if err != nil {
		return err
	}

	l, err := f.Write(b)
	if err != nil {
		return fmt.Errorf("failed to write encoded simulation plan: %w", err)
	}

	if l != len(b) {
		return fmt.Errorf("failed to write encoded simulation plan: not all bytes written")
	}

	return nil
}
