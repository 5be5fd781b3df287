package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/madrasah-api/internal/models"
)

const attendanceColumns = `id, tenant_id, student_id, date, status, notes, created_at, updated_at`

// AttendanceRepository handles persistence for daily attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts a mark or overwrites the existing mark for the same student and date.
func (r *AttendanceRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if err := requireTenant(record.TenantID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Date = models.Day(record.Date)
	query := `INSERT INTO attendance_records (id, tenant_id, student_id, date, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (tenant_id, student_id, date)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
RETURNING ` + attendanceColumns
	var stored models.AttendanceRecord
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &stored, query,
		record.ID, record.TenantID, record.StudentID, record.Date, record.Status, record.Notes, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// FindByID fetches a mark of the tenant. It returns sql.ErrNoRows when absent.
func (r *AttendanceRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.AttendanceRecord, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE tenant_id = $1 AND id = $2`
	var record models.AttendanceRecord
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &record, query, tenant, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update changes the status and notes of an existing mark.
func (r *AttendanceRepository) Update(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error {
	if err := requireTenant(record.TenantID); err != nil {
		return err
	}
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_records SET status = $3, notes = $4, updated_at = $5 WHERE tenant_id = $1 AND id = $2`
	if _, err := pick(r.db, exec).ExecContext(ctx, query, record.TenantID, record.ID, record.Status, record.Notes, record.UpdatedAt); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

// Delete removes a single mark.
func (r *AttendanceRepository) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	if _, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM attendance_records WHERE tenant_id = $1 AND id = $2`, tenant, id); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return nil
}

// DeleteByStudent removes every mark of a student.
func (r *AttendanceRepository) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	if _, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM attendance_records WHERE tenant_id = $1 AND student_id = $2`, tenant, studentID); err != nil {
		return fmt.Errorf("delete student attendance: %w", err)
	}
	return nil
}

// ListByStudent returns a student's marks, newest first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	where := []string{"tenant_id = $1", "student_id = $2"}
	args := []interface{}{tenant, studentID}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, models.Day(*filter.From))
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, models.Day(*filter.To))
	}
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s ORDER BY date DESC`, attendanceColumns, strings.Join(where, " AND "))
	var records []models.AttendanceRecord
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &records, query, args...); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return records, nil
}
