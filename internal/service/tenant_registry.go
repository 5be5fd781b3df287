package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type tenantStore interface {
	FindByID(ctx context.Context, id models.TenantID) (*models.Tenant, error)
}

// TenantRegistry resolves the tenant a request acts on. Unknown, inactive and
// unauthenticated tenants are all reported as TenantNotFound.
type TenantRegistry struct {
	repo   tenantStore
	logger *zap.Logger
}

// NewTenantRegistry constructs the registry.
func NewTenantRegistry(repo tenantStore, logger *zap.Logger) *TenantRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantRegistry{repo: repo, logger: logger}
}

// Resolve returns the active tenant with the given id.
func (r *TenantRegistry) Resolve(ctx context.Context, id models.TenantID) (*models.Tenant, error) {
	id = models.TenantID(strings.TrimSpace(id.String()))
	if !id.Valid() {
		return nil, appErrors.Clone(appErrors.ErrTenantNotFound, "tenant is required")
	}
	tenant, err := r.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTenantNotFound
		}
		return nil, internalError(err, "failed to load tenant")
	}
	if !tenant.Active {
		r.logger.Info("inactive tenant rejected", zap.String("tenant_id", id.String()))
		return nil, appErrors.ErrTenantNotFound
	}
	return tenant, nil
}

// ResolveWithKey resolves the tenant and checks the API key against its stored hash.
func (r *TenantRegistry) ResolveWithKey(ctx context.Context, id models.TenantID, key string) (*models.Tenant, error) {
	tenant, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if key == "" || tenant.APIKeyHash == nil || *tenant.APIKeyHash == "" {
		return nil, appErrors.ErrTenantNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*tenant.APIKeyHash), []byte(key)); err != nil {
		r.logger.Warn("tenant api key rejected", zap.String("tenant_id", tenant.ID.String()))
		return nil, appErrors.ErrTenantNotFound
	}
	return tenant, nil
}
