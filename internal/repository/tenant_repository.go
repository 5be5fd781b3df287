package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/madrasah-api/internal/models"
)

// TenantRepository reads tenant metadata.
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository constructs a TenantRepository.
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// FindByID fetches a tenant by id. It returns sql.ErrNoRows when absent.
func (r *TenantRepository) FindByID(ctx context.Context, id models.TenantID) (*models.Tenant, error) {
	if err := requireTenant(id); err != nil {
		return nil, err
	}
	const query = `SELECT id, name, slug, active, api_key_hash, created_at, updated_at FROM tenants WHERE id = $1`
	var tenant models.Tenant
	if err := r.db.GetContext(ctx, &tenant, query, id); err != nil {
		return nil, err
	}
	return &tenant, nil
}
