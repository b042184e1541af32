package herdsim

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	outputPermission    = 0600
)

// Run executes a full simulation and logs the final statistics.
func Run(ctx context.Context, config *Config) error {
	stats, err := Simulate(ctx, config)
	if err != nil {
		return err
	}
	displayFinalStats(stats)
	if stats.StatusMismatches > 0 {
		return fmt.Errorf("%d animals disagree with the service", stats.StatusMismatches)
	}
	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// Simulate registers the herd, fences it, walks it and verifies the
// service's view of who ended up outside.
func Simulate(ctx context.Context, config *Config) (*Stats, error) {
	applyDefaults(config)
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting herd simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("animals", config.Animals),
		logger.Int("rounds", config.Rounds),
		logger.Int("workers", config.Workers),
		logger.Float64("halfSide", config.HalfSide),
		logger.Float64("step", config.Step),
		logger.Any("seed", config.Seed))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Fence the pasture
	vertices := squareFence(config.Center, config.HalfSide)
	if err := uploadFence(ctx, client, vertices); err != nil {
		return nil, err
	}

	// Step 3: Register the herd
	herd := newHerd(config)
	if err := registerHerd(ctx, client, herd, stats); err != nil {
		return nil, fmt.Errorf("herd registration failed: %w", err)
	}

	// Step 4: Walk the herd, one round of fixes at a time
	rng := rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
	for round := 0; round < config.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		walk(rng, herd, config.Step)
		submitFixes(ctx, config, client, fixesFor(herd, time.Now()), stats)
	}
	logger.Get().Info(ctx, "fix submission completed",
		logger.Int("accepted", stats.FixesAccepted),
		logger.Int("duplicate", stats.FixesDuplicate),
		logger.Int("rejected", stats.FixesRejected),
		logger.Int("failed", stats.FixesFailed))

	// Step 5: Wait for the queue to drain
	if err := waitForQueue(ctx, config, client); err != nil {
		logger.Get().Warn(ctx, "fix queue did not drain", logger.Error(err))
	}

	// Step 6: Evaluate
	summary, err := evaluate(ctx, client)
	if err != nil {
		return nil, err
	}
	stats.PassAlerts = summary.Alerts

	// Step 7: Verify
	outside := expectedOutside(herd, geofence.NewPolygon(vertices))
	if err := verifyHerd(ctx, client, herd, outside, stats); err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}

	// Step 8: Save final positions
	if err := saveHerdToFile(ctx, config, herd, outside); err != nil {
		logger.Get().Warn(ctx, "failed to save herd to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	return stats, nil
}

func applyDefaults(config *Config) {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Settle <= 0 {
		config.Settle = DefaultSettle
	}
	if config.Seed == 0 {
		config.Seed = uint64(time.Now().UnixNano())
	}
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")
	if _, err := client.DoJSON(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK); err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

type herdRecord struct {
	Animal
	ExpectedStatus string `json:"expected_status"`
}

// saveHerdToFile writes the final herd positions as a JSON array.
func saveHerdToFile(ctx context.Context, config *Config, herd []Animal, outside map[string]bool) error {
	if len(herd) == 0 {
		return fmt.Errorf("no animals to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "herd_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	records := make([]herdRecord, len(herd))
	for i, a := range herd {
		status := "INSIDE"
		if outside[a.ID] {
			status = "OUTSIDE"
		}
		records[i] = herdRecord{Animal: a, ExpectedStatus: status}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal herd: %w", err)
	}
	if err := os.WriteFile(filename, data, outputPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "herd saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, fixesPerSecond float64

	if stats.FixesSubmitted > 0 {
		acceptRate = float64(stats.FixesAccepted) / float64(stats.FixesSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		fixesPerSecond = float64(stats.FixesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("animalsRegistered", stats.AnimalsRegistered),
		logger.Int("fixesSubmitted", stats.FixesSubmitted),
		logger.Int("fixesAccepted", stats.FixesAccepted),
		logger.Int("fixesDuplicate", stats.FixesDuplicate),
		logger.Int("fixesRejected", stats.FixesRejected),
		logger.Int("fixesFailed", stats.FixesFailed),
		logger.Int("expectedOutside", stats.ExpectedOutside),
		logger.Int("reportedOutside", stats.ReportedOutside),
		logger.Int("statusMismatches", stats.StatusMismatches),
		logger.Int("passAlerts", stats.PassAlerts),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("fixesPerSecond", fixesPerSecond))
}
