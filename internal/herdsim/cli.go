package herdsim

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/herdwatch/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends simulator logs to both stdout and a file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "herdsim_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the herd simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Herdwatch Herd Simulator
========================

Registers a herd, fences it in, walks it around and checks that the
service ends up agreeing on who escaped.

Usage:
  go run cmd/herdsim/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -animals int
        Number of animals to register (default 200)
  -rounds int
        Number of random-walk rounds (default 20)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -lat float, -lon float
        Centre of the pasture (default 45.1743, 9.2394)
  -half-side float
        Half the side of the square fence in degrees (default 0.005)
  -step float
        Largest move per round in degrees (default 0.001)
  -seed uint
        Random-walk seed (default: derived from the clock)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for final herd positions (default: herd_TIMESTAMP.json)
  -log string
        Log file for simulator output (default: herdsim_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Small herd against a local service
  go run cmd/herdsim/main.go -animals 50 -rounds 10

  # Wandering herd, reproducible
  go run cmd/herdsim/main.go -step 0.003 -seed 42
`)
}
