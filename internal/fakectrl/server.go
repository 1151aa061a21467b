// Package fakectrl provides an in-process stand-in for the controller API.
//
// It serves every endpoint the provisioning driver uses, records each request
// in arrival order, keeps the tenants it was asked to create, and can be told
// to fail upcoming requests in the ways a real controller fails while it is
// still converging.
package fakectrl

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nextensio/ctrlseed/sdk"
)

// APIPrefix is the path every endpoint is served under.
const APIPrefix = "/api/v1"

// Call is one request received by the fake controller.
type Call struct {
	Method   string
	Endpoint string
	Body     []byte
}

// Decode unmarshals the request body into v.
func (c Call) Decode(v interface{}) error {
	return json.Unmarshal(c.Body, v)
}

// Fields returns the sorted top-level JSON keys of the request body.
func (c Call) Fields() []string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(c.Body, &m); err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type faultKind int

const (
	faultStatus faultKind = iota
	faultReject
	faultMalformed
)

type fault struct {
	kind   faultKind
	status int
	result string
}

// Server is a fake controller.
type Server struct {
	engine  *gin.Engine
	logger  *zap.Logger
	metrics *serverMetrics
	limiter *clientLimiter

	tenantID string

	mu      sync.Mutex
	calls   []Call
	tenants []sdk.TenantRecord
	faults  map[string][]fault
}

// Option configures a Server.
type Option func(*Server)

// WithTenantID makes every created tenant get id instead of a random one.
func WithTenantID(id string) Option {
	return func(s *Server) {
		s.tenantID = id
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRateLimit makes the API answer 429 to a client that sends more than
// rps requests per second beyond burst. Rejected requests are not recorded.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter = newClientLimiter(rps, burst)
	}
}

// New creates a fake controller with all endpoints registered.
func New(opts ...Option) *Server {
	s := &Server{
		logger:  zap.NewNop(),
		metrics: newServerMetrics(),
		faults:  make(map[string][]fault),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(s.metrics.middleware())
	router.GET(MetricsPath, s.metrics.handler())

	api := router.Group(APIPrefix)
	if s.limiter != nil {
		api.Use(s.limiter.middleware())
	}
	api.GET("/"+sdk.EndpointGetAllTenants, s.handleGetAllTenants)
	api.POST("/"+sdk.EndpointAddGateway, s.handleAdd(sdk.EndpointAddGateway, decodeInto[sdk.Gateway]))
	api.POST("/"+sdk.EndpointAddTenant, s.handleAdd(sdk.EndpointAddTenant, s.storeTenant))
	api.POST("/"+sdk.EndpointAddUser, s.handleAdd(sdk.EndpointAddUser, decodeInto[sdk.User]))
	api.POST("/"+sdk.EndpointAddUserAttr, s.handleAdd(sdk.EndpointAddUserAttr, decodeInto[sdk.UserAttr]))
	api.POST("/"+sdk.EndpointAddBundle, s.handleAdd(sdk.EndpointAddBundle, decodeInto[sdk.Bundle]))
	api.POST("/"+sdk.EndpointAddBundleAttr, s.handleAdd(sdk.EndpointAddBundleAttr, decodeInto[sdk.BundleAttr]))
	api.POST("/"+sdk.EndpointAddRoute, s.handleAdd(sdk.EndpointAddRoute, decodeInto[sdk.Route]))
	api.POST("/"+sdk.EndpointAddPolicy, s.handleAdd(sdk.EndpointAddPolicy, decodeInto[sdk.Policy]))
	api.POST("/"+sdk.EndpointAddCert, s.handleAdd(sdk.EndpointAddCert, decodeInto[sdk.Certificate]))

	s.engine = router
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ============================================================================
// Fault Injection
// ============================================================================

// FailNext makes the next n requests to endpoint answer with status.
func (s *Server) FailNext(endpoint string, n, status int) {
	s.queue(endpoint, n, fault{kind: faultStatus, status: status})
}

// RejectNext makes the next n requests to endpoint answer 200 with result.
func (s *Server) RejectNext(endpoint string, n int, result string) {
	s.queue(endpoint, n, fault{kind: faultReject, result: result})
}

// MalformNext makes the next n requests to endpoint answer 200 with a body
// that has no Result field.
func (s *Server) MalformNext(endpoint string, n int) {
	s.queue(endpoint, n, fault{kind: faultMalformed})
}

func (s *Server) queue(endpoint string, n int, f fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.faults[endpoint] = append(s.faults[endpoint], f)
	}
}

// nextFault pops the next queued fault for endpoint.
func (s *Server) nextFault(endpoint string) (fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.faults[endpoint]
	if len(queue) == 0 {
		return fault{}, false
	}
	s.faults[endpoint] = queue[1:]
	return queue[0], true
}

// ============================================================================
// Inspection
// ============================================================================

// Calls returns every request received so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Endpoints returns the endpoint of every request received so far, in order.
func (s *Server) Endpoints() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Endpoint
	}
	return out
}

// CallsTo returns the requests received for one endpoint.
func (s *Server) CallsTo(endpoint string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Endpoint == endpoint {
			out = append(out, c)
		}
	}
	return out
}

// Tenants returns the tenants created so far.
func (s *Server) Tenants() []sdk.TenantRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sdk.TenantRecord, len(s.tenants))
	copy(out, s.tenants)
	return out
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) record(c *gin.Context, endpoint string) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: c.Request.Method, Endpoint: endpoint, Body: body})
	s.mu.Unlock()
	return body, err
}

// injectFault answers the request from the fault queue. It reports whether a
// fault was applied.
func (s *Server) injectFault(c *gin.Context, endpoint string) bool {
	f, ok := s.nextFault(endpoint)
	if !ok {
		return false
	}
	switch f.kind {
	case faultStatus:
		c.JSON(f.status, gin.H{"Result": http.StatusText(f.status)})
	case faultReject:
		c.JSON(http.StatusOK, gin.H{"Result": f.result})
	case faultMalformed:
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	}
	return true
}

func (s *Server) handleGetAllTenants(c *gin.Context) {
	if _, err := s.record(c, sdk.EndpointGetAllTenants); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"Result": err.Error()})
		return
	}
	if s.injectFault(c, sdk.EndpointGetAllTenants) {
		return
	}
	c.JSON(http.StatusOK, s.Tenants())
}

// handleAdd returns a handler for a create endpoint. apply validates (and for
// tenants stores) the decoded body; its error becomes the Result.
func (s *Server) handleAdd(endpoint string, apply func([]byte) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := s.record(c, endpoint)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"Result": err.Error()})
			return
		}
		if s.injectFault(c, endpoint) {
			return
		}
		if err := apply(body); err != nil {
			c.JSON(http.StatusOK, gin.H{"Result": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"Result": sdk.ResultOK})
	}
}

// storeTenant adds a tenant, or updates the one with the same name so that
// repeated creates stay idempotent.
func (s *Server) storeTenant(body []byte) error {
	var t sdk.Tenant
	if err := json.Unmarshal(body, &t); err != nil {
		return err
	}
	if t.Name == "" {
		return errors.New("tenant name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := sdk.TenantRecord{
		Name:     t.Name,
		Gateways: t.Gateways,
		Domains:  t.Domains,
		Image:    t.Image,
		Pods:     t.Pods,
	}
	for i := range s.tenants {
		if s.tenants[i].Name == t.Name {
			record.ID = s.tenants[i].ID
			s.tenants[i] = record
			return nil
		}
	}

	record.ID = s.tenantID
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	s.tenants = append(s.tenants, record)
	return nil
}

// decodeInto checks that the body decodes as T.
func decodeInto[T any](body []byte) error {
	var v T
	return json.Unmarshal(body, &v)
}
