package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client talks to the controller's HTTP/JSON API. Every call is a single
// request: retrying is the caller's decision.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new controller client with the given configuration.
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Client{
		baseURL:    config.BaseURL,
		token:      config.Token,
		httpClient: config.HTTPClient,
		limiter:    rate.NewLimiter(limit, config.Burst),
		logger:     config.Logger,
	}, nil
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Read Methods
// ============================================================================

// Ping reports whether the controller is answering API requests. It issues
// GET getalltenants and succeeds only on HTTP 200; the body is not inspected.
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, EndpointGetAllTenants, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &CallError{Endpoint: EndpointGetAllTenants, Kind: KindProtocol, StatusCode: status}
	}
	return nil
}

// ListTenants retrieves every tenant known to the controller.
//
// Returns:
//   - []TenantRecord: The tenants in the order the controller returned them
//   - error: *CallError of KindProtocol on a non-200 status, KindMalformed if the
//     body is not an array of tenants or an element lacks "_id"
func (c *Client) ListTenants(ctx context.Context) ([]TenantRecord, error) {
	status, body, err := c.do(ctx, http.MethodGet, EndpointGetAllTenants, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &CallError{Endpoint: EndpointGetAllTenants, Kind: KindProtocol, StatusCode: status}
	}

	var tenants []TenantRecord
	if err := json.Unmarshal(body, &tenants); err != nil {
		return nil, &CallError{
			Endpoint:   EndpointGetAllTenants,
			Kind:       KindMalformed,
			StatusCode: status,
			Err:        fmt.Errorf("failed to parse JSON response: %w", err),
		}
	}

	for i, t := range tenants {
		if t.ID == "" {
			return nil, &CallError{
				Endpoint:   EndpointGetAllTenants,
				Kind:       KindMalformed,
				StatusCode: status,
				Err:        fmt.Errorf("tenant at index %d has no _id", i),
			}
		}
	}

	return tenants, nil
}

// ============================================================================
// Create Methods
// ============================================================================

// AddGateway creates a gateway.
func (c *Client) AddGateway(ctx context.Context, gw Gateway) error {
	return c.post(ctx, EndpointAddGateway, gw)
}

// AddTenant creates a tenant. An empty CurID is sent as UnknownTenantID.
// The controller does not return the new tenant's id; use ListTenants.
func (c *Client) AddTenant(ctx context.Context, t Tenant) error {
	if t.CurID == "" {
		t.CurID = UnknownTenantID
	}
	return c.post(ctx, EndpointAddTenant, t)
}

// AddUser creates a user in a tenant.
func (c *Client) AddUser(ctx context.Context, u User) error {
	return c.post(ctx, EndpointAddUser, u)
}

// AddUserAttr sets the attributes of an existing user.
func (c *Client) AddUserAttr(ctx context.Context, a UserAttr) error {
	return c.post(ctx, EndpointAddUserAttr, a)
}

// AddBundle creates a service bundle in a tenant.
func (c *Client) AddBundle(ctx context.Context, b Bundle) error {
	return c.post(ctx, EndpointAddBundle, b)
}

// AddBundleAttr sets the attributes of an existing bundle.
func (c *Client) AddBundleAttr(ctx context.Context, a BundleAttr) error {
	return c.post(ctx, EndpointAddBundleAttr, a)
}

// AddRoute creates a routing rule steering a user+domain pair to a tag.
func (c *Client) AddRoute(ctx context.Context, r Route) error {
	return c.post(ctx, EndpointAddRoute, r)
}

// AddPolicy uploads an access policy for a tenant.
func (c *Client) AddPolicy(ctx context.Context, p Policy) error {
	return c.post(ctx, EndpointAddPolicy, p)
}

// AddCert uploads a certificate.
func (c *Client) AddCert(ctx context.Context, cert Certificate) error {
	return c.post(ctx, EndpointAddCert, cert)
}

// post sends a JSON body to a create endpoint and checks the outcome.
// Success requires HTTP 200 and a decoded Result of exactly "ok".
//
// Returns:
//   - error: nil on success, *CallError for any controller-side failure, or a
//     plain error if the request body cannot be encoded
func (c *Client) post(ctx context.Context, endpoint string, reqBody interface{}) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	status, body, err := c.do(ctx, http.MethodPost, endpoint, data)
	if err != nil {
		return err
	}

	if status != http.StatusOK {
		return &CallError{Endpoint: endpoint, Kind: KindProtocol, StatusCode: status}
	}

	var result OpResult
	if err := json.Unmarshal(body, &result); err != nil {
		return &CallError{
			Endpoint:   endpoint,
			Kind:       KindMalformed,
			StatusCode: status,
			Err:        fmt.Errorf("failed to parse JSON response: %w", err),
		}
	}
	if result.Result == nil {
		return &CallError{
			Endpoint:   endpoint,
			Kind:       KindMalformed,
			StatusCode: status,
			Err:        errors.New("response has no Result field"),
		}
	}
	if *result.Result != ResultOK {
		return &CallError{Endpoint: endpoint, Kind: KindApplication, StatusCode: status, Result: *result.Result}
	}

	return nil
}
