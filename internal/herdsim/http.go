package herdsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/herdwatch/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Do sends a request with an optional JSON (or raw []byte) body.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// DoJSON sends a request and decodes a JSON response into out when the
// status matches one of want.
func (c *HTTPClient) DoJSON(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	data, err := readResponseBody(resp)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	for _, code := range want {
		if resp.StatusCode != code {
			continue
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

type submitResult int

const (
	resultAccepted submitResult = iota
	resultDuplicate
	resultRejected
	resultFailed
)

// submitFixes posts one round of fixes concurrently using a worker pool.
func submitFixes(ctx context.Context, config *Config, client *HTTPClient, fixes []Fix, stats *Stats) {
	var accepted, duplicate, rejected, failed int64

	fixChan := make(chan Fix, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fix := range fixChan {
				switch submitSingleFix(ctx, client, fix) {
				case resultAccepted:
					atomic.AddInt64(&accepted, 1)
				case resultDuplicate:
					atomic.AddInt64(&duplicate, 1)
				case resultRejected:
					atomic.AddInt64(&rejected, 1)
				case resultFailed:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	go func() {
		defer close(fixChan)
		for _, fix := range fixes {
			select {
			case <-ctx.Done():
				return
			case fixChan <- fix:
			}
		}
	}()

	wg.Wait()

	stats.FixesSubmitted += int(accepted + duplicate + rejected + failed)
	stats.FixesAccepted += int(accepted)
	stats.FixesDuplicate += int(duplicate)
	stats.FixesRejected += int(rejected)
	stats.FixesFailed += int(failed)

	if config.Verbose {
		logger.Get().Debug(ctx, "round submitted",
			logger.Int("accepted", int(accepted)),
			logger.Int("duplicate", int(duplicate)),
			logger.Int("rejected", int(rejected)),
			logger.Int("failed", int(failed)))
	}
}

// submitSingleFix posts a single fix and classifies the response.
func submitSingleFix(ctx context.Context, client *HTTPClient, fix Fix) submitResult {
	var ack AckResponse
	code, err := client.DoJSON(ctx, http.MethodPost, "/positions", fix, &ack, http.StatusAccepted, http.StatusOK)
	switch {
	case err == nil && ack.Duplicate:
		return resultDuplicate
	case err == nil:
		return resultAccepted
	case code == http.StatusBadRequest || code == http.StatusNotFound:
		return resultRejected
	default:
		return resultFailed
	}
}
