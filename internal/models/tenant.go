package models

import (
	"strings"
	"time"
)

// TenantID identifies the school that owns a record. Every repository and
// service call takes one explicitly; there is no ambient tenant.
type TenantID string

// String returns the raw identifier.
func (t TenantID) String() string {
	return string(t)
}

// Valid reports whether the identifier is non-blank.
func (t TenantID) Valid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Tenant represents a madrasah whose records are isolated from every other tenant.
type Tenant struct {
	ID         TenantID  `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Slug       string    `db:"slug" json:"slug"`
	Active     bool      `db:"active" json:"active"`
	APIKeyHash *string   `db:"api_key_hash" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
