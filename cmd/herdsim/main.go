package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/herdsim"
	"github.com/okian/herdwatch/pkg/logger"
)

// Default configuration constants.
const (
	defaultAnimals     = 200
	defaultRounds      = 20
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
	defaultLat         = 45.1743
	defaultLon         = 9.2394
	defaultHalfSide    = 0.005
	defaultStep        = 0.001
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		animals    = flag.Int("animals", defaultAnimals, "Number of animals to register")
		rounds     = flag.Int("rounds", defaultRounds, "Number of random-walk rounds")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		lat        = flag.Float64("lat", defaultLat, "Latitude of the pasture centre")
		lon        = flag.Float64("lon", defaultLon, "Longitude of the pasture centre")
		halfSide   = flag.Float64("half-side", defaultHalfSide, "Half the side of the square fence in degrees")
		step       = flag.Float64("step", defaultStep, "Largest move per round in degrees")
		seed       = flag.Uint64("seed", 0, "Random-walk seed (default: derived from the clock)")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", herdsim.DefaultSettle, "How long to wait for the fix queue to drain")
		outputFile = flag.String("output", "", "Output file for final herd positions (default: herd_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for simulator output (default: herdsim_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		herdsim.ShowHelp()
		return
	}

	if err := herdsim.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &herdsim.Config{
		BaseURL:    *baseURL,
		Animals:    *animals,
		Rounds:     *rounds,
		Workers:    *workers,
		Timeout:    *timeout,
		Center:     model.Point{Lat: *lat, Lon: *lon},
		HalfSide:   *halfSide,
		Step:       *step,
		Seed:       *seed,
		Settle:     *settle,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	if err := herdsim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
