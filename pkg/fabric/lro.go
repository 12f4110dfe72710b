package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// LRO polling bounds.
const (
	maxLROPolls       = 60
	defaultRetryAfter = 30 * time.Second
)

// Operation states reported by the service.
const (
	opStatusNotStarted = "NotStarted"
	opStatusRunning    = "Running"
	opStatusSucceeded  = "Succeeded"
	opStatusFailed     = "Failed"
	opStatusCancelled  = "Cancelled"
)

type operationStatus struct {
	Status string `json:"status"`
	Error  struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"error"`
}

// awaitOperation drives a 202 Accepted response to completion: poll the
// Location URL every Retry-After seconds (default 30) up to 60 polls, then
// fetch the final result. The context is consulted before every sleep.
func (c *Client) awaitOperation(ctx context.Context, accepted *http.Response) ([]byte, error) {
	opURL := accepted.Header.Get("Location")
	if opURL == "" {
		return nil, fmt.Errorf("%w: 202 response carries no Location header", ErrOperationFailed)
	}
	retryAfter := parseRetryAfter(accepted.Header, defaultRetryAfter)

	for poll := 0; poll < maxLROPolls; poll++ {
		if err := c.sleep(ctx, retryAfter); err != nil {
			return nil, err
		}

		resp, body, err := c.authedGet(ctx, opURL)
		if err != nil {
			return nil, err
		}
		retryAfter = parseRetryAfter(resp.Header, retryAfter)

		var status operationStatus
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, fmt.Errorf("%w: malformed operation status: %v", ErrOperationFailed, err)
		}
		switch status.Status {
		case opStatusSucceeded:
			resultURL := resp.Header.Get("Location")
			if resultURL == "" {
				resultURL = opURL + "/result"
			}
			_, result, err := c.authedGet(ctx, resultURL)
			return result, err
		case opStatusFailed, opStatusCancelled:
			return nil, fmt.Errorf("%w: %s: %s", ErrOperationFailed, status.Error.ErrorCode, status.Error.Message)
		case opStatusNotStarted, opStatusRunning, "":
			// keep polling
		default:
			return nil, fmt.Errorf("%w: unknown operation status %q", ErrOperationFailed, status.Status)
		}
	}
	return nil, fmt.Errorf("%w: gave up after %d polls", ErrOperationTimedOut, maxLROPolls)
}

// parseRetryAfter reads a Retry-After header in seconds.
func parseRetryAfter(h http.Header, fallback time.Duration) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
