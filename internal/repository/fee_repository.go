package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/madrasah-api/internal/models"
)

const (
	feeColumns     = `id, tenant_id, student_id, fee_type, description, amount, paid_amount, due_date, created_at, updated_at`
	paymentColumns = `id, tenant_id, fee_id, amount, paid_at, method, reference, created_at`
)

// FeeRepository persists fee line items and their payments.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// Create inserts a fee record.
func (r *FeeRepository) Create(ctx context.Context, exec sqlx.ExtContext, fee *models.FeeRecord) error {
	if err := requireTenant(fee.TenantID); err != nil {
		return err
	}
	now := time.Now().UTC()
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = now
	}
	fee.UpdatedAt = now
	fee.DueDate = models.Day(fee.DueDate)
	const query = `INSERT INTO fee_records (id, tenant_id, student_id, fee_type, description, amount, paid_amount, due_date, created_at, updated_at)
VALUES (:id, :tenant_id, :student_id, :fee_type, :description, :amount, :paid_amount, :due_date, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, fee); err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// FindByID fetches a fee of the tenant. It returns sql.ErrNoRows when absent.
func (r *FeeRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.FeeRecord, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	query := `SELECT ` + feeColumns + ` FROM fee_records WHERE tenant_id = $1 AND id = $2`
	var fee models.FeeRecord
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &fee, query, tenant, id); err != nil {
		return nil, err
	}
	return &fee, nil
}

// Update writes amount, paid amount, type, description and due date.
func (r *FeeRepository) Update(ctx context.Context, exec sqlx.ExtContext, fee *models.FeeRecord) error {
	if err := requireTenant(fee.TenantID); err != nil {
		return err
	}
	fee.UpdatedAt = time.Now().UTC()
	fee.DueDate = models.Day(fee.DueDate)
	const query = `UPDATE fee_records SET fee_type = :fee_type, description = :description, amount = :amount,
paid_amount = :paid_amount, due_date = :due_date, updated_at = :updated_at
WHERE tenant_id = :tenant_id AND id = :id`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, fee); err != nil {
		return fmt.Errorf("update fee: %w", err)
	}
	return nil
}

// Delete removes a fee and its payments.
func (r *FeeRepository) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	target := pick(r.db, exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM fee_payments WHERE tenant_id = $1 AND fee_id = $2`, tenant, id); err != nil {
		return fmt.Errorf("delete fee payments: %w", err)
	}
	if _, err := target.ExecContext(ctx, `DELETE FROM fee_records WHERE tenant_id = $1 AND id = $2`, tenant, id); err != nil {
		return fmt.Errorf("delete fee: %w", err)
	}
	return nil
}

// DeleteByStudent removes every fee of a student together with their payments.
func (r *FeeRepository) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	target := pick(r.db, exec)
	const payments = `DELETE FROM fee_payments WHERE tenant_id = $1 AND fee_id IN (SELECT id FROM fee_records WHERE tenant_id = $1 AND student_id = $2)`
	if _, err := target.ExecContext(ctx, payments, tenant, studentID); err != nil {
		return fmt.Errorf("delete student fee payments: %w", err)
	}
	if _, err := target.ExecContext(ctx, `DELETE FROM fee_records WHERE tenant_id = $1 AND student_id = $2`, tenant, studentID); err != nil {
		return fmt.Errorf("delete student fees: %w", err)
	}
	return nil
}

// ListByStudent returns a student's fees ordered by due date.
func (r *FeeRepository) ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.FeeRecord, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	query := `SELECT ` + feeColumns + ` FROM fee_records WHERE tenant_id = $1 AND student_id = $2 ORDER BY due_date ASC, created_at ASC`
	var fees []models.FeeRecord
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &fees, query, tenant, studentID); err != nil {
		return nil, fmt.Errorf("list student fees: %w", err)
	}
	return fees, nil
}

// InsertPayment records a payment row. The caller updates the fee's paid amount.
func (r *FeeRepository) InsertPayment(ctx context.Context, exec sqlx.ExtContext, payment *models.FeePayment) error {
	if err := requireTenant(payment.TenantID); err != nil {
		return err
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	payment.PaidAt = models.Day(payment.PaidAt)
	const query = `INSERT INTO fee_payments (id, tenant_id, fee_id, amount, paid_at, method, reference, created_at)
VALUES (:id, :tenant_id, :fee_id, :amount, :paid_at, :method, :reference, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, payment); err != nil {
		return fmt.Errorf("insert fee payment: %w", err)
	}
	return nil
}

// ListPayments returns the payments of a fee, oldest first.
func (r *FeeRepository) ListPayments(ctx context.Context, tenant models.TenantID, feeID string) ([]models.FeePayment, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	query := `SELECT ` + paymentColumns + ` FROM fee_payments WHERE tenant_id = $1 AND fee_id = $2 ORDER BY paid_at ASC, created_at ASC`
	var payments []models.FeePayment
	if err := r.db.SelectContext(ctx, &payments, query, tenant, feeID); err != nil {
		return nil, fmt.Errorf("list fee payments: %w", err)
	}
	return payments, nil
}
