package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nextensio/ctrlseed/internal/logging"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// do performs a single HTTP request against an endpoint and returns the status
// code and the response body. Failures that produce no response are returned
// as a *CallError of KindTransport; the status code is not interpreted here.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	// Wait for the rate limiter before touching the network
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, &CallError{Endpoint: endpoint, Kind: KindTransport, Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, nil, &CallError{Endpoint: endpoint, Kind: KindTransport, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	requestID := uuid.New().String()
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addAuthHeaders(req)

	logger := c.logger.With(
		zap.String(logging.FieldRequestID, requestID),
		zap.String(logging.FieldMethod, method),
		zap.String(logging.FieldEndpoint, endpoint),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("Controller request failed", zap.Error(err))
		return 0, nil, &CallError{Endpoint: endpoint, Kind: KindTransport, Err: err}
	}
	defer drainAndCloseBody(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logger.Debug("Failed to read controller response", zap.Error(err))
		return resp.StatusCode, nil, &CallError{
			Endpoint:   endpoint,
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	logger.Debug("Controller request completed",
		zap.Int(logging.FieldStatusCode, resp.StatusCode),
		zap.Int64(logging.FieldDuration, time.Since(start).Milliseconds()),
		zap.Int("size_bytes", len(data)),
	)

	return resp.StatusCode, data, nil
}

// drainAndCloseBody reads and closes the response body to ensure connection reuse.
func drainAndCloseBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
