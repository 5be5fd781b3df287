package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/madrasah-api/internal/models"
)

// ErrMissingTenant is returned when a call reaches the store without a tenant id.
// It indicates a programming error in the caller.
var ErrMissingTenant = errors.New("tenant id is required")

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

func requireTenant(tenant models.TenantID) error {
	if !tenant.Valid() {
		return ErrMissingTenant
	}
	return nil
}

func pick(db *sqlx.DB, exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return db
}

func normaliseOrder(order string) string {
	order = strings.ToUpper(order)
	if order != "ASC" && order != "DESC" {
		return "DESC"
	}
	return order
}

func pageBounds(page, size, defaultSize, maxSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxSize {
		size = defaultSize
	}
	return page, size, (page - 1) * size
}

func whereClause(conditions []string) string {
	return fmt.Sprintf("WHERE %s", strings.Join(conditions, " AND "))
}
