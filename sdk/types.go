package sdk

// Endpoint paths relative to the API root.
const (
	EndpointGetAllTenants = "getalltenants"
	EndpointAddGateway    = "addgateway"
	EndpointAddTenant     = "addtenant"
	EndpointAddUser       = "adduser"
	EndpointAddUserAttr   = "adduserattr"
	EndpointAddBundle     = "addbundle"
	EndpointAddBundleAttr = "addbundleattr"
	EndpointAddRoute      = "addroute"
	EndpointAddPolicy     = "addpolicy"
	EndpointAddCert       = "addcert"
)

// ResultOK is the Result value the controller returns on success.
const ResultOK = "ok"

// UnknownTenantID is the curid sent when creating a tenant that has no id yet.
const UnknownTenantID = "unknown"

// OpResult is the body returned by every add* endpoint.
type OpResult struct {
	// Result is "ok" on success, an error description otherwise.
	Result *string `json:"Result"`
}

// Gateway is a named network entry point.
type Gateway struct {
	// Name is the gateway's DNS name (e.g., "gateway.testa.nextensio.net").
	Name string `json:"name" yaml:"name"`

	// IPAddr is the gateway's address. Optional.
	IPAddr string `json:"ipaddr,omitempty" yaml:"ipaddr,omitempty"`
}

// Tenant is the create-tenant request body.
type Tenant struct {
	// CurID is the tenant's current id, UnknownTenantID for new tenants.
	CurID string `json:"curid"`

	// Name is the tenant's display name.
	Name string `json:"name"`

	// Gateways lists the names of gateways the tenant is assigned to.
	Gateways []string `json:"gateways"`

	// Domains lists the tenant's domains. Optional.
	Domains []string `json:"domains,omitempty"`

	// Image is the container image reference for the tenant's pods.
	Image string `json:"image"`

	// Pods is the number of pods to run for the tenant.
	Pods int `json:"pods"`
}

// TenantRecord is a tenant as returned by getalltenants.
type TenantRecord struct {
	// ID is the server-assigned tenant identifier.
	ID string `json:"_id"`

	Name     string   `json:"name"`
	Gateways []string `json:"gateways,omitempty"`
	Domains  []string `json:"domains,omitempty"`
	Image    string   `json:"image,omitempty"`
	Pods     int      `json:"pods,omitempty"`
}

// User is the create-user request body.
type User struct {
	// UID is the user's id, conventionally the email address.
	UID      string   `json:"uid"`
	Tenant   string   `json:"tenant"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Services []string `json:"services"`

	// Gateway is the gateway the user is assigned to. Optional.
	Gateway string `json:"gateway,omitempty"`
}

// UserAttr is the create-user-attributes request body.
type UserAttr struct {
	UID      string   `json:"uid"`
	Tenant   string   `json:"tenant"`
	Category string   `json:"category"`
	Type     string   `json:"type"`
	Level    int      `json:"level"`
	Dept     []string `json:"dept"`
	Team     []string `json:"team"`
}

// Bundle is the create-bundle request body.
type Bundle struct {
	BID      string   `json:"bid"`
	Tenant   string   `json:"tenant"`
	Name     string   `json:"name"`
	Services []string `json:"services"`

	// Gateway is the gateway the bundle is routed to. Optional.
	Gateway string `json:"gateway,omitempty"`
}

// BundleAttr is the create-bundle-attributes request body.
type BundleAttr struct {
	BID         string   `json:"bid"`
	Tenant      string   `json:"tenant"`
	Dept        []string `json:"dept"`
	Team        []string `json:"team"`
	IC          int      `json:"IC"`
	Manager     int      `json:"manager"`
	NonEmployee string   `json:"nonemployee"`
}

// Route is the create-route request body.
type Route struct {
	Tenant string `json:"tenant"`

	// Route is the "user:domain" key, see RouteKey.
	Route string `json:"route"`

	// Tag is the version tag traffic for the key is steered to.
	Tag string `json:"tag"`
}

// RouteKey joins a user id and a domain into a route key.
func RouteKey(user, domain string) string {
	return user + ":" + domain
}

// Policy is the upload-policy request body.
type Policy struct {
	Tenant string     `json:"tenant"`
	PID    string     `json:"pid"`
	Rego   CodePoints `json:"rego"`
}

// Certificate is the upload-certificate request body.
type Certificate struct {
	CertID string     `json:"certid"`
	Cert   CodePoints `json:"cert"`
}
