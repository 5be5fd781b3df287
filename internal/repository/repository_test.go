package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-api/internal/models"
)

const testTenant = models.TenantID("tenant-a")

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(errors.Join(errors.New("create student"), &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestTenantRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTenantRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "slug", "active", "api_key_hash", "created_at", "updated_at"}).
		AddRow("tenant-a", "Madrasah An-Nur", "an-nur", true, nil, now, now)
	mock.ExpectQuery(`SELECT id, name, slug, active, api_key_hash, created_at, updated_at FROM tenants WHERE id = \$1`).
		WithArgs(testTenant).
		WillReturnRows(rows)

	tenant, err := repo.FindByID(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, "an-nur", tenant.Slug)
	assert.Nil(t, tenant.APIKeyHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoriesRejectMissingTenant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	ctx := context.Background()

	_, err := NewTenantRepository(db).FindByID(ctx, "")
	assert.ErrorIs(t, err, ErrMissingTenant)
	_, _, err = NewStudentRepository(db).List(ctx, " ", models.StudentFilter{})
	assert.ErrorIs(t, err, ErrMissingTenant)
	_, err = NewAttendanceRepository(db).ListByStudent(ctx, nil, "", "S-1", models.AttendanceFilter{})
	assert.ErrorIs(t, err, ErrMissingTenant)
	err = NewProgressRepository(db).Insert(ctx, nil, &models.ProgressRecord{StudentID: "S-1"})
	assert.ErrorIs(t, err, ErrMissingTenant)
	err = NewFeeRepository(db).Create(ctx, nil, &models.FeeRecord{StudentID: "S-1"})
	assert.ErrorIs(t, err, ErrMissingTenant)

	assert.NoError(t, mock.ExpectationsWereMet())
}
