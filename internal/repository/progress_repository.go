package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/madrasah-api/internal/models"
)

const progressColumns = `id, tenant_id, student_id, category, assessment_date, progress_percentage, notes, created_at`

// ProgressRepository persists the append-only progress assessment history.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Insert appends an assessment.
func (r *ProgressRepository) Insert(ctx context.Context, exec sqlx.ExtContext, record *models.ProgressRecord) error {
	if err := requireTenant(record.TenantID); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.AssessmentDate = models.Day(record.AssessmentDate)
	const query = `INSERT INTO progress_records (id, tenant_id, student_id, category, assessment_date, progress_percentage, notes, created_at)
VALUES (:id, :tenant_id, :student_id, :category, :assessment_date, :progress_percentage, :notes, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, record); err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

// FindByID fetches an assessment of the tenant. It returns sql.ErrNoRows when absent.
func (r *ProgressRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.ProgressRecord, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	query := `SELECT ` + progressColumns + ` FROM progress_records WHERE tenant_id = $1 AND id = $2`
	var record models.ProgressRecord
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &record, query, tenant, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes a single assessment.
func (r *ProgressRepository) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	if _, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM progress_records WHERE tenant_id = $1 AND id = $2`, tenant, id); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// DeleteByStudent removes a student's whole history.
func (r *ProgressRepository) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	if _, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM progress_records WHERE tenant_id = $1 AND student_id = $2`, tenant, studentID); err != nil {
		return fmt.Errorf("delete student progress: %w", err)
	}
	return nil
}

// ListByStudent returns a student's assessments, newest first.
func (r *ProgressRepository) ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	query := `SELECT ` + progressColumns + ` FROM progress_records WHERE tenant_id = $1 AND student_id = $2
ORDER BY assessment_date DESC, created_at DESC, id DESC`
	var records []models.ProgressRecord
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &records, query, tenant, studentID); err != nil {
		return nil, fmt.Errorf("list student progress: %w", err)
	}
	return records, nil
}
