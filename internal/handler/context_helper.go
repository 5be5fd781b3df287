package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/middleware"
	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
	"github.com/noah-isme/madrasah-api/pkg/response"
)

// tenantFromContext returns the tenant resolved by middleware.Tenant. Handlers
// never fall back to a default tenant.
func tenantFromContext(c *gin.Context) (models.TenantID, bool) {
	tenant, ok := middleware.TenantFrom(c)
	if !ok || tenant == nil || !tenant.ID.Valid() {
		response.Error(c, appErrors.ErrTenantNotFound)
		return "", false
	}
	return tenant.ID, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

func writeResult(c *gin.Context, status int, record interface{}, student *models.Student) {
	response.JSON(c, status, dto.StudentWriteResult{Record: record, Student: student}, nil)
}

func withCacheMeta(c *gin.Context, hit bool) map[string]interface{} {
	middleware.SetCacheHit(c, hit)
	return middleware.ResponseMeta(c)
}

func queryDate(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	parsed, err := dto.ParseDate(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, key+" must be YYYY-MM-DD"))
		return nil, false
	}
	return &parsed, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}
