package repository

import (
	"context"
	"errors"

	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
	"gorm.io/gorm"
)

// ErrTenantNotFound is returned when a tenant identifier does not resolve.
var ErrTenantNotFound = errors.New("tenant not found")

// tenantRepository implements interfaces.TenantRepository over GORM.
type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(db *gorm.DB) interfaces.TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) CreateTenant(ctx context.Context, tenant *types.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

func (r *tenantRepository) GetTenantByID(ctx context.Context, id uint64) (*types.Tenant, error) {
	var tenant types.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}
