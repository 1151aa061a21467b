// Package provision seeds a freshly installed controller with a fixed test
// topology.
//
// A run waits for the controller to answer, then creates gateways, a tenant,
// users, bundles and routes, and finally uploads the access policy and root
// certificate. Steps run strictly in order and each one is retried until the
// controller accepts it, because a controller that has just come up rejects
// requests for a while as its backing services converge.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nextensio/ctrlseed/internal/logging"
	"github.com/nextensio/ctrlseed/internal/metrics"
	"github.com/nextensio/ctrlseed/sdk"
)

const (
	// DefaultPolicyFile is the access policy read when none is configured,
	// relative to the working directory.
	DefaultPolicyFile = "policy.AccessPolicy"

	// CertFileName is the root CA certificate read from the temp directory.
	CertFileName = "rootca.crt"
)

// Controller is the subset of the controller API a run uses. *sdk.Client
// implements it.
type Controller interface {
	Pinger
	TenantLister
	AddGateway(ctx context.Context, gw sdk.Gateway) error
	AddTenant(ctx context.Context, t sdk.Tenant) error
	AddUser(ctx context.Context, u sdk.User) error
	AddUserAttr(ctx context.Context, a sdk.UserAttr) error
	AddBundle(ctx context.Context, b sdk.Bundle) error
	AddBundleAttr(ctx context.Context, a sdk.BundleAttr) error
	AddRoute(ctx context.Context, r sdk.Route) error
	AddPolicy(ctx context.Context, p sdk.Policy) error
	AddCert(ctx context.Context, c sdk.Certificate) error
}

// Config holds the settings of one provisioning run.
type Config struct {
	// BaseURL is the controller API root. Used only when Client is nil.
	BaseURL string

	// Client talks to the controller. Built from BaseURL when nil.
	Client Controller

	// TempDir holds the root CA certificate (rootca.crt).
	TempDir string

	// PolicyFile is the access policy source. Defaults to DefaultPolicyFile.
	PolicyFile string

	// Plan is the topology to create. Defaults to DefaultPlan().
	Plan *Plan

	// Retry applies to every step. The zero value selects DefaultRetryPolicy.
	Retry RetryPolicy

	Readiness ReadinessConfig

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// StepResult records how one step went.
type StepResult struct {
	Step     Step
	Attempts int
	Duration time.Duration
	Err      error
}

// Report summarises a run. It is returned even when the run fails and then
// covers the steps attempted so far.
type Report struct {
	TenantID        string
	ReadinessProbes int
	Steps           []StepResult
	Duration        time.Duration
}

// Attempts returns the total number of controller calls made by steps.
func (r *Report) Attempts() int {
	total := 0
	for _, s := range r.Steps {
		total += s.Attempts
	}
	return total
}

// Driver executes a provisioning run.
type Driver struct {
	client     Controller
	plan       Plan
	policyFile string
	certFile   string
	retry      RetryPolicy
	readiness  ReadinessConfig
	logger     *zap.Logger
}

// New validates cfg and creates a Driver.
func New(cfg Config) (*Driver, error) {
	if cfg.TempDir == "" {
		return nil, errors.New("temp dir is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	plan := DefaultPlan()
	if cfg.Plan != nil {
		plan = *cfg.Plan
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		c, err := sdk.NewClient(sdk.ClientConfig{BaseURL: cfg.BaseURL, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to create controller client: %w", err)
		}
		client = c
	}

	policyFile := cfg.PolicyFile
	if policyFile == "" {
		policyFile = DefaultPolicyFile
	}

	retry := cfg.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}

	return &Driver{
		client:     client,
		plan:       plan,
		policyFile: policyFile,
		certFile:   filepath.Join(cfg.TempDir, CertFileName),
		retry:      retry,
		readiness:  cfg.Readiness,
		logger:     logger,
	}, nil
}

// Run provisions the controller. It stops at the first step that gives up
// and returns that step's *StepError.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	defer func() {
		report.Duration = time.Since(start)
	}()

	ctx = logging.WithLogger(ctx, d.logger)
	d.logger.Info("Waiting for controller")

	probes, err := WaitReady(ctx, d.client, d.readiness)
	report.ReadinessProbes = probes
	if err != nil {
		return report, err
	}

	tenantID, err := d.createTenant(ctx, report)
	if err != nil {
		return report, err
	}
	report.TenantID = tenantID
	ctx = logging.AddFields(ctx, zap.String(logging.FieldTenantID, tenantID))

	if err := d.createUsers(ctx, report, tenantID); err != nil {
		return report, err
	}
	if err := d.createBundles(ctx, report, tenantID); err != nil {
		return report, err
	}
	if err := d.createRoutes(ctx, report, tenantID); err != nil {
		return report, err
	}
	if err := d.uploadPolicy(ctx, report, tenantID); err != nil {
		return report, err
	}
	if err := d.uploadCert(ctx, report); err != nil {
		return report, err
	}

	logging.FromContext(ctx).Info("Controller provisioned",
		zap.Int("steps", len(report.Steps)),
		zap.Int("attempts", report.Attempts()),
		zap.Int64(logging.FieldDuration, time.Since(start).Milliseconds()))
	return report, nil
}

// step runs fn under the retry policy and records the outcome.
func (d *Driver) step(ctx context.Context, report *Report, step Step, fn func(context.Context) error) error {
	start := time.Now()
	attempts, err := Retry(ctx, d.retry, step, fn)
	elapsed := time.Since(start)

	metrics.StepDuration.WithLabelValues(step.Endpoint).Observe(elapsed.Seconds())
	report.Steps = append(report.Steps, StepResult{Step: step, Attempts: attempts, Duration: elapsed, Err: err})

	if err == nil {
		logging.FromContext(ctx).Info("Step done",
			zap.String(logging.FieldStep, step.Name),
			zap.String(logging.FieldEndpoint, step.Endpoint),
			zap.Int(logging.FieldAttempt, attempts))
	}
	return err
}

func (d *Driver) createTenant(ctx context.Context, report *Report) (string, error) {
	for _, gw := range d.plan.Gateways {
		step := Step{Name: "gateway " + gw.Name, Endpoint: sdk.EndpointAddGateway}
		if err := d.step(ctx, report, step, func(ctx context.Context) error {
			return d.client.AddGateway(ctx, gw)
		}); err != nil {
			return "", err
		}
	}

	spec := d.plan.Tenant
	tenant := sdk.Tenant{
		CurID:    sdk.UnknownTenantID,
		Name:     spec.Name,
		Gateways: spec.Gateways,
		Domains:  spec.Domains,
		Image:    spec.Image,
		Pods:     spec.Pods,
	}
	if err := d.step(ctx, report, Step{Name: "tenant " + spec.Name, Endpoint: sdk.EndpointAddTenant}, func(ctx context.Context) error {
		return d.client.AddTenant(ctx, tenant)
	}); err != nil {
		return "", err
	}

	var tenantID string
	err := d.step(ctx, report, Step{Name: "resolve tenant " + spec.Name, Endpoint: sdk.EndpointGetAllTenants}, func(ctx context.Context) error {
		id, err := ResolveTenantID(ctx, d.client, spec.Name)
		if err != nil {
			return err
		}
		tenantID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return tenantID, nil
}

func (d *Driver) createUsers(ctx context.Context, report *Report, tenantID string) error {
	for _, u := range d.plan.Users {
		user := sdk.User{
			UID:      u.UID,
			Tenant:   tenantID,
			Name:     u.Name,
			Email:    u.Email,
			Services: u.Services,
			Gateway:  u.Gateway,
		}
		if err := d.step(ctx, report, Step{Name: "user " + u.UID, Endpoint: sdk.EndpointAddUser}, func(ctx context.Context) error {
			return d.client.AddUser(ctx, user)
		}); err != nil {
			return err
		}

		attr := sdk.UserAttr{
			UID:      u.UID,
			Tenant:   tenantID,
			Category: u.Attrs.Category,
			Type:     u.Attrs.Type,
			Level:    u.Attrs.Level,
			Dept:     u.Attrs.Dept,
			Team:     u.Attrs.Team,
		}
		if err := d.step(ctx, report, Step{Name: "user attributes " + u.UID, Endpoint: sdk.EndpointAddUserAttr}, func(ctx context.Context) error {
			return d.client.AddUserAttr(ctx, attr)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) createBundles(ctx context.Context, report *Report, tenantID string) error {
	for _, b := range d.plan.Bundles {
		bundle := sdk.Bundle{
			BID:      b.BID,
			Tenant:   tenantID,
			Name:     b.Name,
			Services: b.Services,
			Gateway:  b.Gateway,
		}
		if err := d.step(ctx, report, Step{Name: "bundle " + b.BID, Endpoint: sdk.EndpointAddBundle}, func(ctx context.Context) error {
			return d.client.AddBundle(ctx, bundle)
		}); err != nil {
			return err
		}

		attr := sdk.BundleAttr{
			BID:         b.BID,
			Tenant:      tenantID,
			Dept:        b.Attrs.Dept,
			Team:        b.Attrs.Team,
			IC:          b.Attrs.IC,
			Manager:     b.Attrs.Manager,
			NonEmployee: b.Attrs.NonEmployee,
		}
		if err := d.step(ctx, report, Step{Name: "bundle attributes " + b.BID, Endpoint: sdk.EndpointAddBundleAttr}, func(ctx context.Context) error {
			return d.client.AddBundleAttr(ctx, attr)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) createRoutes(ctx context.Context, report *Report, tenantID string) error {
	for _, r := range d.plan.Routes {
		route := sdk.Route{Tenant: tenantID, Route: r.Key(), Tag: r.Tag}
		if err := d.step(ctx, report, Step{Name: "route " + route.Route, Endpoint: sdk.EndpointAddRoute}, func(ctx context.Context) error {
			return d.client.AddRoute(ctx, route)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) uploadPolicy(ctx context.Context, report *Report, tenantID string) error {
	step := Step{Name: "policy " + d.plan.PolicyID, Endpoint: sdk.EndpointAddPolicy}
	return d.step(ctx, report, step, func(ctx context.Context) error {
		rego, err := readCodePoints(d.policyFile)
		if err != nil {
			return err
		}
		return d.client.AddPolicy(ctx, sdk.Policy{Tenant: tenantID, PID: d.plan.PolicyID, Rego: rego})
	})
}

func (d *Driver) uploadCert(ctx context.Context, report *Report) error {
	step := Step{Name: "certificate " + d.plan.CertID, Endpoint: sdk.EndpointAddCert}
	return d.step(ctx, report, step, func(ctx context.Context) error {
		cert, err := readCodePoints(d.certFile)
		if err != nil {
			return err
		}
		return d.client.AddCert(ctx, sdk.Certificate{CertID: d.plan.CertID, Cert: cert})
	})
}

// lineEndings folds CRLF and lone CR line endings to LF.
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// readCodePoints reads a UTF-8 text file for upload with its line endings
// folded to LF. A read failure or invalid UTF-8 is permanent.
func readCodePoints(path string) (sdk.CodePoints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to read %s: %w", path, err))
	}
	if !utf8.Valid(data) {
		return nil, Permanent(fmt.Errorf("%s is not valid UTF-8", path))
	}
	return sdk.EncodeCodePoints(lineEndings.Replace(string(data))), nil
}
