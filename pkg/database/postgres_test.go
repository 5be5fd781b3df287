package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/madrasah-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "madrasah",
		Password: "secret",
		Name:     "records",
		SSLMode:  "require",
	})
	assert.Equal(t, "host=db port=5433 user=madrasah password=secret dbname=records sslmode=require", dsn)
}
