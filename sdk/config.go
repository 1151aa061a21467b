package sdk

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultPort is the port the controller API listens on.
const DefaultPort = 8080

// ClientConfig contains the configuration for creating a new controller client.
type ClientConfig struct {
	// BaseURL is the controller API root (e.g., "http://controller:8080/api/v1/").
	BaseURL string

	// Token is sent as a bearer token when set.
	// Optional: the test controller does not require authentication.
	Token string

	// HTTPClient is the HTTP client to use for requests.
	// Optional: if nil, a default client with Timeout will be created.
	HTTPClient *http.Client

	// Timeout is the HTTP request timeout.
	// Default: 30 seconds
	Timeout time.Duration

	// RequestsPerSecond caps the request rate towards the controller.
	// Default: 0 (unlimited)
	RequestsPerSecond float64

	// Burst is the number of requests allowed above the rate.
	// Default: 1
	Burst int

	// Logger receives per-request debug logs.
	// Default: no-op logger
	Logger *zap.Logger
}

// BaseURLForHost returns the API root for a controller host.
// A port of 0 selects DefaultPort.
func BaseURLForHost(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/api/v1/"
}

// Validate checks if the client configuration is valid and sets defaults.
func (c *ClientConfig) Validate() error {
	url := strings.TrimSpace(c.BaseURL)
	if url == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%w: base URL must start with http:// or https://", ErrInvalidConfig)
	}

	// Endpoints are appended directly
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	c.BaseURL = url

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second cannot be negative", ErrInvalidConfig)
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: c.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return nil
}
