package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/madrasah-api/pkg/logger"
)

func auditRouter(log *zap.Logger, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(logger.TenantIDKey, "tenant-a")
		c.Set(ContextAuthMethodKey, AuthMethodAPIKey)
		c.Next()
	})
	r.DELETE("/fees/:feeId", Audit(log, "delete", "fee"), func(c *gin.Context) {
		c.Status(status)
	})
	return r
}

func TestAuditLogsSuccessfulMutation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditRouter(zap.New(core), http.StatusOK).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/fees/fee-7", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "delete", fields["action"])
	assert.Equal(t, "fee-7", fields["resource_id"])
	assert.Equal(t, "tenant-a", fields["tenant_id"])
	assert.Equal(t, AuthMethodAPIKey, fields["auth_method"])
}

func TestAuditSkipsFailedMutation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditRouter(zap.New(core), http.StatusUnprocessableEntity).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/fees/fee-7", nil))

	assert.Equal(t, 0, logs.Len())
}
