package herdsim

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/domain/types"
	"github.com/okian/herdwatch/pkg/logger"
)

type entityList struct {
	Entities []types.EntityView `json:"entities"`
	Count    int                `json:"count"`
}

// waitForQueue polls /stats until the fix queue is empty or settle elapses.
func waitForQueue(ctx context.Context, config *Config, client *HTTPClient) error {
	ctx, cancel := context.WithTimeout(ctx, config.Settle)
	defer cancel()

	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()
	for {
		var st types.Stats
		if _, err := client.DoJSON(ctx, http.MethodGet, "/stats", nil, &st, http.StatusOK); err != nil {
			return fmt.Errorf("poll stats: %w", err)
		}
		if st.QueueLength == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("fix queue still holds %d fixes: %w", st.QueueLength, ctx.Err())
		case <-ticker.C:
		}
	}
}

// evaluate triggers a pass and returns its summary.
func evaluate(ctx context.Context, client *HTTPClient) (model.PassSummary, error) {
	var summary model.PassSummary
	if _, err := client.DoJSON(ctx, http.MethodPost, "/evaluate", nil, &summary, http.StatusOK); err != nil {
		return summary, fmt.Errorf("evaluate: %w", err)
	}
	return summary, nil
}

// verifyHerd compares each animal's reported status with the one expected
// from its final simulated position.
func verifyHerd(ctx context.Context, client *HTTPClient, herd []Animal, outside map[string]bool, stats *Stats) error {
	logger.Get().Info(ctx, "verifying herd status")

	var list entityList
	if _, err := client.DoJSON(ctx, http.MethodGet, "/entities", nil, &list, http.StatusOK); err != nil {
		return fmt.Errorf("list entities: %w", err)
	}

	reported := make(map[string]model.Status, len(list.Entities))
	for _, e := range list.Entities {
		reported[e.ID] = e.Status
	}

	stats.ExpectedOutside = len(outside)
	stats.ReportedOutside = 0
	stats.StatusMismatches = 0
	for _, a := range herd {
		got, ok := reported[a.ID]
		if !ok {
			return fmt.Errorf("animal %s missing from service", a.ID)
		}
		if got == model.StatusOutside {
			stats.ReportedOutside++
		}
		want := model.StatusInside
		if outside[a.ID] {
			want = model.StatusOutside
		}
		if got != want {
			stats.StatusMismatches++
			logger.Get().Warn(ctx, "status mismatch",
				logger.String("entity", a.ID),
				logger.String("expected", want.String()),
				logger.String("reported", got.String()))
		}
	}

	if stats.StatusMismatches == 0 {
		logger.Get().Info(ctx, "herd status verified",
			logger.Int("outside", stats.ReportedOutside))
	}
	return nil
}
