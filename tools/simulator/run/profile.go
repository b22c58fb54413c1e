package run

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"
)

type ProfilerConfig struct {
	Enabled   bool
	PprofPort int
	Wait      time.Duration
}

func Profiler(config ProfilerConfig, logger *log.Logger) {
	if !config.Enabled {
		return
	}

	if logger != nil {
		logger.Printf("starting profiler; waiting %s to start simulation", config.Wait)
	}

	go func() {
		err := http.ListenAndServe(fmt.Sprintf("localhost:%d", config.PprofPort), nil)
		if logger != nil && err != nil {
			logger.Printf("pprof listener returned error on exit: %s", err)
		}
	}()

	if config.Wait > 0 {
		time.Sleep(config.Wait)
	}
}
