package interfaces

import (
	"context"

	"github.com/noteqa/ragcore/internal/types"
)

// TenantRepository is the minimal tenant lookup the core's HTTP boundary
// needs: validating that a tenant identifier resolves to a real, active
// tenant, and reading its retrieval overrides.
type TenantRepository interface {
	GetTenantByID(ctx context.Context, id uint64) (*types.Tenant, error)
	CreateTenant(ctx context.Context, tenant *types.Tenant) error
}

// TenantService wraps TenantRepository with the API-key issuance/recovery
// logic the HTTP auth boundary needs.
type TenantService interface {
	CreateTenant(ctx context.Context, tenant *types.Tenant) (*types.Tenant, error)
	GetTenantByID(ctx context.Context, id uint64) (*types.Tenant, error)
	ExtractTenantIDFromAPIKey(apiKey string) (uint64, error)
}
