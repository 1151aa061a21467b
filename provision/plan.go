package provision

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nextensio/ctrlseed/sdk"
)

// ErrInvalidPlan indicates a plan that cannot be provisioned.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan is the fixed set of entities a run creates, in creation order.
type Plan struct {
	Gateways []sdk.Gateway `yaml:"gateways"`
	Tenant   TenantSpec    `yaml:"tenant"`
	Users    []UserSpec    `yaml:"users"`
	Bundles  []BundleSpec  `yaml:"bundles"`
	Routes   []RouteSpec   `yaml:"routes"`

	// PolicyID names the uploaded access policy.
	PolicyID string `yaml:"policyId"`

	// CertID names the uploaded root CA certificate.
	CertID string `yaml:"certId"`
}

// TenantSpec describes the tenant to create.
type TenantSpec struct {
	Name     string   `yaml:"name"`
	Gateways []string `yaml:"gateways"`
	Domains  []string `yaml:"domains,omitempty"`
	Image    string   `yaml:"image"`
	Pods     int      `yaml:"pods"`
}

// UserSpec describes a user and the attributes created right after it.
type UserSpec struct {
	UID      string       `yaml:"uid"`
	Name     string       `yaml:"name"`
	Email    string       `yaml:"email"`
	Services []string     `yaml:"services"`
	Gateway  string       `yaml:"gateway,omitempty"`
	Attrs    UserAttrSpec `yaml:"attrs"`
}

// UserAttrSpec holds the attributes of a user.
type UserAttrSpec struct {
	Category string   `yaml:"category"`
	Type     string   `yaml:"type"`
	Level    int      `yaml:"level"`
	Dept     []string `yaml:"dept"`
	Team     []string `yaml:"team"`
}

// BundleSpec describes a bundle and the attributes created right after it.
type BundleSpec struct {
	BID      string         `yaml:"bid"`
	Name     string         `yaml:"name"`
	Services []string       `yaml:"services"`
	Gateway  string         `yaml:"gateway,omitempty"`
	Attrs    BundleAttrSpec `yaml:"attrs"`
}

// BundleAttrSpec holds the attributes of a bundle.
type BundleAttrSpec struct {
	Dept        []string `yaml:"dept"`
	Team        []string `yaml:"team"`
	IC          int      `yaml:"ic"`
	Manager     int      `yaml:"manager"`
	NonEmployee string   `yaml:"nonemployee"`
}

// RouteSpec steers one user's traffic for a domain to a tagged bundle.
type RouteSpec struct {
	User   string `yaml:"user"`
	Domain string `yaml:"domain"`
	Tag    string `yaml:"tag"`
}

// Key returns the "user:domain" route key.
func (r RouteSpec) Key() string {
	return sdk.RouteKey(r.User, r.Domain)
}

// DefaultPlan returns the built-in test topology.
func DefaultPlan() Plan {
	const (
		gatewayA = "gateway.testa.nextensio.net"
		gatewayC = "gateway.testc.nextensio.net"
	)

	// The department list is a single entry that contains a comma.
	dept := []string{"ABU,BBU"}
	team := []string{"engineering", "sales"}

	userAttrs := UserAttrSpec{Category: "employee", Type: "IC", Level: 50, Dept: dept, Team: team}
	bundleAttrs := BundleAttrSpec{Dept: dept, Team: team, IC: 1, Manager: 1, NonEmployee: "allowed"}

	return Plan{
		Gateways: []sdk.Gateway{
			{Name: gatewayA},
			{Name: gatewayC},
		},
		Tenant: TenantSpec{
			Name:     "Test",
			Gateways: []string{gatewayA, gatewayC},
			Image:    "registry.gitlab.com/nextensio/cluster/minion:latest",
			Pods:     5,
		},
		Users: []UserSpec{
			{
				UID:      "test1@nextensio.net",
				Name:     "Test User1",
				Email:    "test1@nextensio.net",
				Services: []string{"test1-nextensio-net"},
				Gateway:  gatewayA,
				Attrs:    userAttrs,
			},
			{
				UID:      "test2@nextensio.net",
				Name:     "Test User2",
				Email:    "test2@nextensio.net",
				Services: []string{"test2-nextensio-net"},
				Gateway:  gatewayA,
				Attrs:    userAttrs,
			},
		},
		Bundles: []BundleSpec{
			{
				BID:      "default@nextensio.net",
				Name:     "Default Internet Route",
				Services: []string{"default-internet"},
				Gateway:  gatewayC,
				Attrs:    bundleAttrs,
			},
			{
				BID:      "v1.kismis@nextensio.net",
				Name:     "Kismis Version ONE",
				Services: []string{"v1.kismis.org"},
				Gateway:  gatewayC,
				Attrs:    bundleAttrs,
			},
			{
				BID:      "v2.kismis@nextensio.net",
				Name:     "Kismis Version ONE",
				Services: []string{"v2.kismis.org"},
				Gateway:  gatewayC,
				Attrs:    bundleAttrs,
			},
		},
		Routes: []RouteSpec{
			{User: "test1@nextensio.net", Domain: "kismis.org", Tag: "v1"},
			{User: "test2@nextensio.net", Domain: "kismis.org", Tag: "v2"},
		},
		PolicyID: "AccessPolicy",
		CertID:   "CACert",
	}
}

// LoadPlan reads and validates a YAML plan file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("%w: %s: %v", ErrInvalidPlan, path, err)
	}

	if err := plan.Validate(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Validate checks that every reference in the plan resolves and every
// required field is set.
func (p Plan) Validate() error {
	if len(p.Gateways) == 0 {
		return fmt.Errorf("%w: at least one gateway is required", ErrInvalidPlan)
	}
	gateways := make(map[string]bool, len(p.Gateways))
	for i, gw := range p.Gateways {
		if gw.Name == "" {
			return fmt.Errorf("%w: gateways[%d]: name is required", ErrInvalidPlan, i)
		}
		if gateways[gw.Name] {
			return fmt.Errorf("%w: gateways[%d]: duplicate gateway %q", ErrInvalidPlan, i, gw.Name)
		}
		gateways[gw.Name] = true
	}

	if p.Tenant.Name == "" {
		return fmt.Errorf("%w: tenant: name is required", ErrInvalidPlan)
	}
	if p.Tenant.Image == "" {
		return fmt.Errorf("%w: tenant: image is required", ErrInvalidPlan)
	}
	if p.Tenant.Pods < 0 {
		return fmt.Errorf("%w: tenant: pods must not be negative", ErrInvalidPlan)
	}
	for _, name := range p.Tenant.Gateways {
		if !gateways[name] {
			return fmt.Errorf("%w: tenant: unknown gateway %q", ErrInvalidPlan, name)
		}
	}

	users := make(map[string]bool, len(p.Users))
	for i, u := range p.Users {
		if u.UID == "" {
			return fmt.Errorf("%w: users[%d]: uid is required", ErrInvalidPlan, i)
		}
		if users[u.UID] {
			return fmt.Errorf("%w: users[%d]: duplicate uid %q", ErrInvalidPlan, i, u.UID)
		}
		if u.Gateway != "" && !gateways[u.Gateway] {
			return fmt.Errorf("%w: users[%d] (%s): unknown gateway %q", ErrInvalidPlan, i, u.UID, u.Gateway)
		}
		users[u.UID] = true
	}

	bundles := make(map[string]bool, len(p.Bundles))
	for i, b := range p.Bundles {
		if b.BID == "" {
			return fmt.Errorf("%w: bundles[%d]: bid is required", ErrInvalidPlan, i)
		}
		if bundles[b.BID] {
			return fmt.Errorf("%w: bundles[%d]: duplicate bid %q", ErrInvalidPlan, i, b.BID)
		}
		if b.Gateway != "" && !gateways[b.Gateway] {
			return fmt.Errorf("%w: bundles[%d] (%s): unknown gateway %q", ErrInvalidPlan, i, b.BID, b.Gateway)
		}
		bundles[b.BID] = true
	}

	for i, r := range p.Routes {
		if !users[r.User] {
			return fmt.Errorf("%w: routes[%d]: unknown user %q", ErrInvalidPlan, i, r.User)
		}
		if r.Domain == "" || r.Tag == "" {
			return fmt.Errorf("%w: routes[%d]: domain and tag are required", ErrInvalidPlan, i)
		}
	}

	if p.PolicyID == "" {
		return fmt.Errorf("%w: policyId is required", ErrInvalidPlan)
	}
	if p.CertID == "" {
		return fmt.Errorf("%w: certId is required", ErrInvalidPlan)
	}
	return nil
}
