package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/http"
)

const defaultWaitInterval = 500 * time.Millisecond

// ErrServerUnavailable is returned when the server under test never
// answered within Config.WaitFor.
var ErrServerUnavailable = errors.New("server unavailable")

// waitForServer polls url until it answers with a status below 500 or the
// configured wait passes.
func (r *Runner) waitForServer(ctx context.Context, url string) error {
	client := r.config.Env.Client
	if client == nil {
		return nil
	}
	timeout := r.config.WaitFor
	interval := r.config.WaitInterval
	if interval <= 0 {
		interval = defaultWaitInterval
	}

	r.logger.Info("waiting for server", "url", url, "timeout", timeout, "interval", interval)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	var lastStatus int

	for {
		resp, err := client.Do(ctx, http.NewRequest("HEAD", url))
		if err == nil {
			lastStatus = resp.StatusCode
			if resp.StatusCode < 500 {
				r.logger.Info("server is ready", "url", url, "status", resp.StatusCode)
				return nil
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil && lastStatus == 0 {
				return fmt.Errorf("%w: %s not ready after %v: %w", ErrServerUnavailable, url, timeout, lastErr)
			}
			return fmt.Errorf("%w: %s not ready after %v: got status %d", ErrServerUnavailable, url, timeout, lastStatus)
		case <-time.After(interval):
		}
	}
}
