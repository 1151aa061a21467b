package provision

import (
	"context"
	"errors"

	"github.com/nextensio/ctrlseed/sdk"
)

// ErrNoTenants is returned when the controller lists no tenants after the
// tenant was created. It is retried like any controller failure.
var ErrNoTenants = errors.New("controller returned no tenants")

// TenantLister lists tenants known to the controller.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]sdk.TenantRecord, error)
}

// ResolveTenantID returns the id of the tenant called name. When no tenant
// has that name the first listed tenant is used, which is the only tenant
// on a freshly installed controller. Preferring the name match differs from
// always taking the first element only when the controller lists several
// tenants.
func ResolveTenantID(ctx context.Context, lister TenantLister, name string) (string, error) {
	tenants, err := lister.ListTenants(ctx)
	if err != nil {
		return "", err
	}
	if len(tenants) == 0 {
		return "", ErrNoTenants
	}
	for _, t := range tenants {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return tenants[0].ID, nil
}
