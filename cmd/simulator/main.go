package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/smartcontractkit/keeper-registry/pkg/api"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/node"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/run"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/simulate/upkeep"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/telemetry"
)

var (
	simulationFile  = flag.StringP("simulation-file", "f", "./simulation_plan.json", "file path to read simulation config from")
	outputDirectory = flag.StringP("output-directory", "o", "./simulation_plan_logs", "directory path to output log files")
	simulate        = flag.Bool("simulate", false, "run simulation")
	verbose         = flag.Bool("verbose", false, "write simulation logs and charts to the output directory")
	serve           = flag.String("serve", "", "address to serve the registry query API on; empty disables the server")
	profiler        = flag.Bool("pprof", false, "run pprof server on startup")
	pprofPort       = flag.Int("pprof-port", 6060, "port to serve the profiler on")
)

func main() {
	// ----- collect run parameters
	flag.Parse()

	procLog := log.New(os.Stdout, "[simulator-startup] ", log.LstdFlags)

	// ----- start run profiler if configured
	run.Profiler(run.ProfilerConfig{
		Enabled:   *profiler,
		PprofPort: *pprofPort,
		Wait:      5 * time.Second,
	}, procLog)

	// ----- read simulation file
	procLog.Println("loading simulation assets ...")
	plan, err := run.LoadSimulationPlan(*simulationFile)
	if err != nil {
		procLog.Printf("failed to initialize simulation plan: %s", err)
		os.Exit(1)
	}

	// ----- setup simulation output directory and file handles
	outputs, err := run.SetupOutput(*outputDirectory, *simulate, *verbose, plan)
	if err != nil {
		procLog.Printf("failed to setup output directory: %s", err)
		os.Exit(1)
	}

	defer func() {
		if err := outputs.Close(); err != nil {
			procLog.Printf("failed to close outputs: %s", err)
		}
	}()

	// ----- create simulated upkeeps from the plan
	procLog.Println("generating simulated upkeeps ...")
	upkeeps, err := upkeep.GenerateAllUpkeeps(plan)
	if err != nil {
		procLog.Printf("failed to generate simulated upkeeps: %s", err)
		os.Exit(1)
	}

	progress := telemetry.NewProgressTelemetry(os.Stdout)

	group, err := node.NewGroup(node.GroupConfig{
		Plan:      plan,
		Upkeeps:   upkeeps,
		Progress:  progress,
		Collector: outputs.StatusCollector,
		Logger:    outputs.SimulationLog,
	})
	if err != nil {
		procLog.Printf("failed to create simulated environment: %s", err)
		os.Exit(1)
	}

	if err := group.RegisterProgress(); err != nil {
		procLog.Printf("failed to register progress trackers: %s", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ----- serve registry queries while the simulation runs
	var server *http.Server

	if *serve != "" {
		router := api.NewController(group.Environment().Registry, procLog).NewRouter()
		router.HandleFunc("/charts/balances", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")

			if err := group.WriteBalanceChart(w); err != nil {
				procLog.Printf("failed to render balance chart: %s", err)
			}
		}).Methods(http.MethodGet)

		server = &http.Server{
			Addr:              *serve,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			procLog.Printf("serving registry queries on %s", *serve)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				procLog.Printf("query server stopped: %s", err)
			}
		}()
	}

	if *simulate {
		progress.Start()

		runErr := group.Run(ctx)
		complete := progress.Close()

		if runErr != nil {
			procLog.Printf("simulation interrupted: %s", runErr)
		} else if !complete {
			procLog.Println("simulation finished with incomplete progress")
		}

		group.Report().WriteTables(os.Stdout)

		chart, err := outputs.BalanceChart()
		if err == nil {
			err = group.WriteBalanceChart(chart)
		}

		if err != nil {
			procLog.Printf("failed to write balance chart: %s", err)
		}
	}

	if server != nil {
		// keep serving the final state until interrupted
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			procLog.Printf("failed to shut down query server: %s", err)
		}
	}
}
