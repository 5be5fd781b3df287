package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
	"github.com/noah-isme/madrasah-api/pkg/logger"
	"github.com/noah-isme/madrasah-api/pkg/response"
)

const (
	// ContextTenantKey stores the resolved *models.Tenant.
	ContextTenantKey = "tenant"
	// ContextAuthMethodKey records how the tenant was authenticated.
	ContextAuthMethodKey = "auth_method"

	AuthMethodToken  = "token"
	AuthMethodAPIKey = "api_key"
)

type tenantResolver interface {
	Resolve(ctx context.Context, id models.TenantID) (*models.Tenant, error)
	ResolveWithKey(ctx context.Context, id models.TenantID, key string) (*models.Tenant, error)
}

// TenantConfig names the headers used for API-key tenant resolution.
type TenantConfig struct {
	TenantHeader  string
	APIKeyHeader  string
	APIKeyEnabled bool
}

// Tenant resolves the tenant of the request. A verified token's tenant_id
// claim wins; otherwise the tenant header and API key are checked when API-key
// access is enabled. Anything else is answered with TenantNotFound.
func Tenant(resolver tenantResolver, cfg TenantConfig) gin.HandlerFunc {
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = "X-Tenant-ID"
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-Tenant-Key"
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		headerTenant := models.TenantID(strings.TrimSpace(c.GetHeader(cfg.TenantHeader)))

		var (
			tenant *models.Tenant
			method string
			err    error
		)
		if claims := claimsFrom(c); claims != nil {
			if headerTenant != "" && headerTenant != claims.TenantID {
				abortTenant(c, appErrors.Clone(appErrors.ErrTenantNotFound, "tenant header does not match token"))
				return
			}
			tenant, err = resolver.Resolve(ctx, claims.TenantID)
			method = AuthMethodToken
		} else if cfg.APIKeyEnabled {
			tenant, err = resolver.ResolveWithKey(ctx, headerTenant, c.GetHeader(cfg.APIKeyHeader))
			method = AuthMethodAPIKey
		} else {
			err = appErrors.ErrTenantNotFound
		}
		if err != nil {
			abortTenant(c, err)
			return
		}

		c.Set(ContextTenantKey, tenant)
		c.Set(ContextAuthMethodKey, method)
		c.Set(logger.TenantIDKey, tenant.ID.String())
		c.Next()
	}
}

// TenantFrom returns the tenant resolved for the request.
func TenantFrom(c *gin.Context) (*models.Tenant, bool) {
	value, exists := c.Get(ContextTenantKey)
	if !exists {
		return nil, false
	}
	tenant, ok := value.(*models.Tenant)
	return tenant, ok && tenant != nil
}

func abortTenant(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
