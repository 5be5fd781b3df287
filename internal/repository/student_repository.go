package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/madrasah-api/internal/models"
)

const studentColumns = `tenant_id, student_id, first_name, last_name, gender, date_of_birth, class_name, status, enrollment_date,
        address, notes, guardian_name, guardian_phone, guardian_email, guardian_relation,
        attendance_rate, progress_percentage, outstanding_fees, metrics_updated_at, created_at, updated_at, version`

const nextStudentVersion = `nextval('student_version_seq')`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns the tenant's students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, tenant models.TenantID, filter models.StudentFilter) ([]models.Student, int, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, 0, err
	}
	args := []interface{}{tenant}
	conditions := []string{"tenant_id = $1"}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.ClassName != "" {
		conditions = append(conditions, fmt.Sprintf("class_name = $%d", len(args)+1))
		args = append(args, filter.ClassName)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name || ' ' || last_name) LIKE $%d OR LOWER(student_id) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := whereClause(conditions)

	allowedSorts := map[string]string{
		"last_name":           "last_name",
		"student_id":          "student_id",
		"enrollment_date":     "enrollment_date",
		"attendance_rate":     "attendance_rate",
		"progress_percentage": "progress_percentage",
		"outstanding_fees":    "outstanding_fees",
		"created_at":          "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := normaliseOrder(filter.SortOrder)
	_, size, offset := pageBounds(filter.Page, filter.PageSize, 20, 100)

	query := fmt.Sprintf(`SELECT %s
        FROM students %s ORDER BY %s %s, student_id ASC LIMIT %d OFFSET %d`, studentColumns, where, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM students %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student of the tenant. It returns sql.ErrNoRows when the
// student does not exist in that tenant.
func (r *StudentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error) {
	return r.find(ctx, exec, tenant, studentID, false)
}

// Lock fetches a student row FOR UPDATE, serialising writers to the same student
// for the rest of the transaction.
func (r *StudentRepository) Lock(ctx context.Context, tx sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error) {
	return r.find(ctx, tx, tenant, studentID, true)
}

func (r *StudentRepository) find(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, forUpdate bool) (*models.Student, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s
        FROM students WHERE tenant_id = $1 AND student_id = $2`, studentColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var student models.Student
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &student, query, tenant, studentID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Exists reports whether the student id is taken within the tenant.
func (r *StudentRepository) Exists(ctx context.Context, tenant models.TenantID, studentID string) (bool, error) {
	if err := requireTenant(tenant); err != nil {
		return false, err
	}
	const query = `SELECT EXISTS (SELECT 1 FROM students WHERE tenant_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenant, studentID); err != nil {
		return false, fmt.Errorf("check student id: %w", err)
	}
	return exists, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if err := requireTenant(student.TenantID); err != nil {
		return err
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (tenant_id, student_id, first_name, last_name, gender, date_of_birth, class_name, status, enrollment_date,
        address, notes, guardian_name, guardian_phone, guardian_email, guardian_relation,
        attendance_rate, progress_percentage, outstanding_fees, metrics_updated_at, created_at, updated_at)
        VALUES (:tenant_id, :student_id, :first_name, :last_name, :gender, :date_of_birth, :class_name, :status, :enrollment_date,
        :address, :notes, :guardian_name, :guardian_phone, :guardian_email, :guardian_relation,
        :attendance_rate, :progress_percentage, :outstanding_fees, :metrics_updated_at, :created_at, :updated_at)
        RETURNING version`
	if err := namedReturning(ctx, r.db, query, student, &student.Version); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update writes the static fields of a student. Derived metrics are left untouched.
func (r *StudentRepository) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if err := requireTenant(student.TenantID); err != nil {
		return err
	}
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, gender = :gender, date_of_birth = :date_of_birth,
        class_name = :class_name, status = :status, enrollment_date = :enrollment_date, address = :address, notes = :notes,
        guardian_name = :guardian_name, guardian_phone = :guardian_phone, guardian_email = :guardian_email,
        guardian_relation = :guardian_relation, updated_at = :updated_at, version = ` + nextStudentVersion + `
        WHERE tenant_id = :tenant_id AND student_id = :student_id
        RETURNING version`
	if err := namedReturning(ctx, pick(r.db, exec), query, student, &student.Version); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdateMetrics persists recomputed derived fields and bumps the row version.
func (r *StudentRepository) UpdateMetrics(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, metrics models.DerivedMetrics, at time.Time) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	query := `UPDATE students SET attendance_rate = $3, progress_percentage = $4, outstanding_fees = $5, metrics_updated_at = $6,
        version = ` + nextStudentVersion + `
        WHERE tenant_id = $1 AND student_id = $2`
	res, err := pick(r.db, exec).ExecContext(ctx, query, tenant, studentID, metrics.AttendanceRate, metrics.ProgressPercentage, metrics.OutstandingFees, at)
	if err != nil {
		return fmt.Errorf("update student metrics: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update student metrics: student %s not found", studentID)
	}
	return nil
}

// Delete removes the student row and reports whether a row was deleted.
func (r *StudentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (bool, error) {
	if err := requireTenant(tenant); err != nil {
		return false, err
	}
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM students WHERE tenant_id = $1 AND student_id = $2`, tenant, studentID)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	return affected > 0, nil
}

// ListIDs returns every student id of the tenant.
func (r *StudentRepository) ListIDs(ctx context.Context, tenant models.TenantID) ([]string, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT student_id FROM students WHERE tenant_id = $1 ORDER BY student_id`, tenant); err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	return ids, nil
}

// Summary aggregates tenant-wide student figures.
func (r *StudentRepository) Summary(ctx context.Context, tenant models.TenantID) (*models.StudentSummary, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'Active') AS active,
        COUNT(*) FILTER (WHERE status = 'Inactive') AS inactive,
        COUNT(*) FILTER (WHERE status = 'Graduated') AS graduated,
        COALESCE(AVG(attendance_rate), 0) AS average_attendance_rate,
        COALESCE(AVG(progress_percentage), 0) AS average_progress,
        COALESCE(SUM(outstanding_fees), 0) AS total_outstanding_fees
        FROM students WHERE tenant_id = $1`
	var summary models.StudentSummary
	if err := r.db.GetContext(ctx, &summary, query, tenant); err != nil {
		return nil, fmt.Errorf("student summary: %w", err)
	}
	return &summary, nil
}

// namedReturning binds a named statement and scans its single RETURNING column.
func namedReturning(ctx context.Context, exec sqlx.ExtContext, query string, arg interface{}, dest interface{}) error {
	bound, args, err := exec.BindNamed(query, arg)
	if err != nil {
		return err
	}
	return exec.QueryRowxContext(ctx, bound, args...).Scan(dest)
}
