package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nextensio/ctrlseed/internal/fakectrl"
	"github.com/nextensio/ctrlseed/sdk"
)

const (
	testPolicy = "package app.access\nallow = true\n"
	testCert   = "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	ctrl *fakectrl.Server
	cfg  Config
}

// newHarness starts a fake controller and returns a Config pointing at it
// with the policy and certificate files in place.
func newHarness(t *testing.T, opts ...fakectrl.Option) *harness {
	t.Helper()

	ctrl := fakectrl.New(opts...)
	srv := httptest.NewServer(ctrl.Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	policyFile := filepath.Join(dir, DefaultPolicyFile)
	require.NoError(t, os.WriteFile(policyFile, []byte(testPolicy), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CertFileName), []byte(testCert), 0o600))

	return &harness{
		ctrl: ctrl,
		cfg: Config{
			BaseURL:    srv.URL + fakectrl.APIPrefix + "/",
			TempDir:    dir,
			PolicyFile: policyFile,
			Retry:      fastPolicy(5),
			Readiness:  ReadinessConfig{Interval: time.Millisecond, Timeout: 5 * time.Second},
			Logger:     zaptest.NewLogger(t),
		},
	}
}

func (h *harness) run(t *testing.T) (*Report, error) {
	t.Helper()
	d, err := New(h.cfg)
	require.NoError(t, err)
	return d.Run(context.Background())
}

var defaultSequence = []string{
	sdk.EndpointGetAllTenants,
	sdk.EndpointAddGateway,
	sdk.EndpointAddGateway,
	sdk.EndpointAddTenant,
	sdk.EndpointGetAllTenants,
	sdk.EndpointAddUser,
	sdk.EndpointAddUserAttr,
	sdk.EndpointAddUser,
	sdk.EndpointAddUserAttr,
	sdk.EndpointAddBundle,
	sdk.EndpointAddBundleAttr,
	sdk.EndpointAddBundle,
	sdk.EndpointAddBundleAttr,
	sdk.EndpointAddBundle,
	sdk.EndpointAddBundleAttr,
	sdk.EndpointAddRoute,
	sdk.EndpointAddRoute,
	sdk.EndpointAddPolicy,
	sdk.EndpointAddCert,
}

func TestDriver_Run(t *testing.T) {
	h := newHarness(t, fakectrl.WithTenantID("abc123"))

	report, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, defaultSequence, h.ctrl.Endpoints())
	assert.Equal(t, "abc123", report.TenantID)
	assert.Equal(t, 1, report.ReadinessProbes)
	assert.Len(t, report.Steps, len(defaultSequence)-1)
	assert.Equal(t, len(defaultSequence)-1, report.Attempts())
}

func TestDriver_RequestFields(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t)
	require.NoError(t, err)

	want := map[string][]string{
		sdk.EndpointAddGateway:    {"name"},
		sdk.EndpointAddTenant:     {"curid", "gateways", "image", "name", "pods"},
		sdk.EndpointAddUser:       {"email", "gateway", "name", "services", "tenant", "uid"},
		sdk.EndpointAddUserAttr:   {"category", "dept", "level", "team", "tenant", "type", "uid"},
		sdk.EndpointAddBundle:     {"bid", "gateway", "name", "services", "tenant"},
		sdk.EndpointAddBundleAttr: {"IC", "bid", "dept", "manager", "nonemployee", "team", "tenant"},
		sdk.EndpointAddRoute:      {"route", "tag", "tenant"},
		sdk.EndpointAddPolicy:     {"pid", "rego", "tenant"},
		sdk.EndpointAddCert:       {"cert", "certid"},
	}
	for endpoint, fields := range want {
		calls := h.ctrl.CallsTo(endpoint)
		require.NotEmpty(t, calls, endpoint)
		for _, c := range calls {
			assert.Equal(t, fields, c.Fields(), endpoint)
		}
	}
}

func TestDriver_TenantIDPropagates(t *testing.T) {
	h := newHarness(t, fakectrl.WithTenantID("abc123"))

	_, err := h.run(t)
	require.NoError(t, err)

	var tenant sdk.Tenant
	require.NoError(t, h.ctrl.CallsTo(sdk.EndpointAddTenant)[0].Decode(&tenant))
	assert.Equal(t, sdk.UnknownTenantID, tenant.CurID)
	assert.Equal(t, "Test", tenant.Name)

	for _, endpoint := range []string{
		sdk.EndpointAddUser,
		sdk.EndpointAddUserAttr,
		sdk.EndpointAddBundle,
		sdk.EndpointAddBundleAttr,
		sdk.EndpointAddRoute,
		sdk.EndpointAddPolicy,
	} {
		for _, c := range h.ctrl.CallsTo(endpoint) {
			var body struct {
				Tenant string `json:"tenant"`
			}
			require.NoError(t, c.Decode(&body))
			assert.Equal(t, "abc123", body.Tenant, endpoint)
		}
	}
}

func TestDriver_Payloads(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t)
	require.NoError(t, err)

	var routes []sdk.Route
	for _, c := range h.ctrl.CallsTo(sdk.EndpointAddRoute) {
		var r sdk.Route
		require.NoError(t, c.Decode(&r))
		routes = append(routes, r)
	}
	require.Len(t, routes, 2)
	assert.Equal(t, "test1@nextensio.net:kismis.org", routes[0].Route)
	assert.Equal(t, "v1", routes[0].Tag)
	assert.Equal(t, "test2@nextensio.net:kismis.org", routes[1].Route)
	assert.Equal(t, "v2", routes[1].Tag)

	var attr sdk.UserAttr
	require.NoError(t, h.ctrl.CallsTo(sdk.EndpointAddUserAttr)[0].Decode(&attr))
	assert.Equal(t, []string{"ABU,BBU"}, attr.Dept)
	assert.Equal(t, 50, attr.Level)

	var policy sdk.Policy
	require.NoError(t, h.ctrl.CallsTo(sdk.EndpointAddPolicy)[0].Decode(&policy))
	assert.Equal(t, "AccessPolicy", policy.PID)
	assert.Equal(t, testPolicy, policy.Rego.String())

	var cert sdk.Certificate
	require.NoError(t, h.ctrl.CallsTo(sdk.EndpointAddCert)[0].Decode(&cert))
	assert.Equal(t, "CACert", cert.CertID)
	assert.Equal(t, testCert, cert.Cert.String())
}

func TestDriver_WaitsForReadiness(t *testing.T) {
	h := newHarness(t)
	h.ctrl.FailNext(sdk.EndpointGetAllTenants, 3, http.StatusServiceUnavailable)

	report, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, 4, report.ReadinessProbes)
	endpoints := h.ctrl.Endpoints()
	for i := 0; i < 4; i++ {
		assert.Equal(t, sdk.EndpointGetAllTenants, endpoints[i])
	}
	assert.Equal(t, sdk.EndpointAddGateway, endpoints[4])
}

func TestDriver_RetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.ctrl.FailNext(sdk.EndpointAddRoute, 2, http.StatusInternalServerError)
	h.ctrl.RejectNext(sdk.EndpointAddUser, 1, "tenant not found")
	h.ctrl.MalformNext(sdk.EndpointAddCert, 1)

	report, err := h.run(t)
	require.NoError(t, err)

	assert.Len(t, h.ctrl.CallsTo(sdk.EndpointAddRoute), 4)
	assert.Len(t, h.ctrl.CallsTo(sdk.EndpointAddUser), 3)
	assert.Len(t, h.ctrl.CallsTo(sdk.EndpointAddCert), 2)

	attempts := map[string]int{}
	for _, s := range report.Steps {
		attempts[s.Step.Name] = s.Attempts
	}
	assert.Equal(t, 3, attempts["route test1@nextensio.net:kismis.org"])
	assert.Equal(t, 1, attempts["route test2@nextensio.net:kismis.org"])
	assert.Equal(t, 2, attempts["user test1@nextensio.net"])
	assert.Equal(t, 2, attempts["certificate CACert"])
}

func TestDriver_GivesUp(t *testing.T) {
	h := newHarness(t)
	h.cfg.Retry = fastPolicy(3)
	h.ctrl.FailNext(sdk.EndpointAddBundle, 10, http.StatusInternalServerError)

	report, err := h.run(t)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, sdk.EndpointAddBundle, stepErr.Step.Endpoint)
	assert.Equal(t, 3, stepErr.Attempts)
	assert.ErrorIs(t, err, sdk.ErrProtocol)

	assert.Len(t, h.ctrl.CallsTo(sdk.EndpointAddBundle), 3)
	assert.Empty(t, h.ctrl.CallsTo(sdk.EndpointAddBundleAttr))
	assert.Empty(t, h.ctrl.CallsTo(sdk.EndpointAddRoute))

	last := report.Steps[len(report.Steps)-1]
	assert.Equal(t, sdk.EndpointAddBundle, last.Step.Endpoint)
	assert.Error(t, last.Err)
}

func TestDriver_MissingPolicyFileIsPermanent(t *testing.T) {
	h := newHarness(t)
	h.cfg.PolicyFile = filepath.Join(t.TempDir(), "missing.AccessPolicy")

	_, err := h.run(t)
	require.Error(t, err)

	assert.True(t, IsPermanent(err))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Attempts)
	assert.Empty(t, h.ctrl.CallsTo(sdk.EndpointAddPolicy))
	assert.Empty(t, h.ctrl.CallsTo(sdk.EndpointAddCert))
}

func TestDriver_MissingCertIsPermanent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.cfg.TempDir, CertFileName)))

	_, err := h.run(t)
	require.Error(t, err)

	assert.True(t, IsPermanent(err))
	assert.Len(t, h.ctrl.CallsTo(sdk.EndpointAddPolicy), 1)
	assert.Empty(t, h.ctrl.CallsTo(sdk.EndpointAddCert))
}

func TestDriver_InvalidUTF8CertIsPermanent(t *testing.T) {
	h := newHarness(t)
	certFile := filepath.Join(h.cfg.TempDir, CertFileName)
	require.NoError(t, os.WriteFile(certFile, []byte{'A', 0xff, 'B', '\r', '\n'}, 0o600))

	_, err := h.run(t)
	require.Error(t, err)

	assert.True(t, IsPermanent(err))
	assert.ErrorContains(t, err, "not valid UTF-8")
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, sdk.EndpointAddCert, stepErr.Step.Endpoint)
	assert.Equal(t, 1, stepErr.Attempts)
	assert.Empty(t, h.ctrl.CallsTo(sdk.EndpointAddCert))
}

func TestDriver_LineEndingsFolded(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cfg.PolicyFile, []byte("package app\r\nallow = true\rdeny = false\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(h.cfg.TempDir, CertFileName), []byte("A\r\nB\r\n"), 0o600))

	_, err := h.run(t)
	require.NoError(t, err)

	var policy sdk.Policy
	require.NoError(t, h.ctrl.CallsTo(sdk.EndpointAddPolicy)[0].Decode(&policy))
	assert.Equal(t, "package app\nallow = true\ndeny = false\n", policy.Rego.String())

	var cert sdk.Certificate
	require.NoError(t, h.ctrl.CallsTo(sdk.EndpointAddCert)[0].Decode(&cert))
	assert.Equal(t, sdk.CodePoints{'A', '\n', 'B', '\n'}, cert.Cert)
}

func TestDriver_ContextCancelled(t *testing.T) {
	h := newHarness(t)
	h.cfg.Retry = fastPolicy(0)
	h.ctrl.FailNext(sdk.EndpointAddGateway, 100_000, http.StatusBadGateway)

	d, err := New(h.cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = d.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.ctrl.CallsTo(sdk.EndpointAddTenant))
}

func TestDriver_CustomPlan(t *testing.T) {
	h := newHarness(t, fakectrl.WithTenantID("t-1"))
	plan := Plan{
		Gateways: []sdk.Gateway{{Name: "gw.example.net"}},
		Tenant:   TenantSpec{Name: "Acme", Gateways: []string{"gw.example.net"}, Image: "img", Pods: 1},
		PolicyID: "AccessPolicy",
		CertID:   "CACert",
	}
	h.cfg.Plan = &plan

	report, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, []string{
		sdk.EndpointGetAllTenants,
		sdk.EndpointAddGateway,
		sdk.EndpointAddTenant,
		sdk.EndpointGetAllTenants,
		sdk.EndpointAddPolicy,
		sdk.EndpointAddCert,
	}, h.ctrl.Endpoints())
	assert.Equal(t, "t-1", report.TenantID)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{BaseURL: "http://controller:8080/api/v1/"})
	assert.ErrorContains(t, err, "temp dir is required")

	_, err = New(Config{TempDir: t.TempDir(), BaseURL: "controller"})
	assert.ErrorIs(t, err, sdk.ErrInvalidConfig)

	bad := DefaultPlan()
	bad.CertID = ""
	_, err = New(Config{TempDir: t.TempDir(), BaseURL: "http://controller/api/v1/", Plan: &bad})
	assert.ErrorIs(t, err, ErrInvalidPlan)
}
