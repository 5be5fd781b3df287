package models

import (
	"math"
	"time"
)

// FeeType classifies a fee line item.
type FeeType string

const (
	FeeTypeTuition      FeeType = "Tuition"
	FeeTypeRegistration FeeType = "Registration"
	FeeTypeBooks        FeeType = "Books"
	FeeTypeUniform      FeeType = "Uniform"
	FeeTypeTransport    FeeType = "Transport"
	FeeTypeExam         FeeType = "Exam"
	FeeTypeOther        FeeType = "Other"
)

// Valid returns true when the type is a supported value.
func (t FeeType) Valid() bool {
	switch t {
	case FeeTypeTuition, FeeTypeRegistration, FeeTypeBooks, FeeTypeUniform, FeeTypeTransport, FeeTypeExam, FeeTypeOther:
		return true
	default:
		return false
	}
}

// FeeStatus is derived from amount, paid amount and due date; it is not stored.
type FeeStatus string

const (
	FeeStatusPaid    FeeStatus = "Paid"
	FeeStatusPending FeeStatus = "Pending"
	FeeStatusOverdue FeeStatus = "Overdue"
)

// PaymentMethod records how a payment was made.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "Cash"
	PaymentMethodBankTransfer PaymentMethod = "BankTransfer"
	PaymentMethodCard         PaymentMethod = "Card"
	PaymentMethodMobileMoney  PaymentMethod = "MobileMoney"
	PaymentMethodOther        PaymentMethod = "Other"
)

// Valid returns true when the method is a supported value.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodOther:
		return true
	default:
		return false
	}
}

// FeeRecord is an amount owed by a student with its cumulative paid amount.
// Invariant: 0 <= PaidAmount <= Amount.
type FeeRecord struct {
	ID          string    `db:"id" json:"id"`
	TenantID    TenantID  `db:"tenant_id" json:"tenant_id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	FeeType     FeeType   `db:"fee_type" json:"fee_type"`
	Description string    `db:"description" json:"description"`
	Amount      float64   `db:"amount" json:"amount"`
	PaidAmount  float64   `db:"paid_amount" json:"paid_amount"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	Status      FeeStatus `db:"-" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Outstanding returns the unpaid remainder, never negative.
func (f FeeRecord) Outstanding() float64 {
	return RoundCents(math.Max(f.Amount-f.PaidAmount, 0))
}

// DeriveStatus computes the status as of now.
func (f FeeRecord) DeriveStatus(now time.Time) FeeStatus {
	return DeriveFeeStatus(f.Amount, f.PaidAmount, f.DueDate, now)
}

// WithStatus returns a copy with Status populated for now.
func (f FeeRecord) WithStatus(now time.Time) FeeRecord {
	f.Status = f.DeriveStatus(now)
	return f
}

// DeriveFeeStatus returns Paid once paid covers amount, Overdue when the due
// date is before today and a balance remains, otherwise Pending.
func DeriveFeeStatus(amount, paid float64, dueDate, now time.Time) FeeStatus {
	if RoundCents(paid) >= RoundCents(amount) {
		return FeeStatusPaid
	}
	if Day(now).After(Day(dueDate)) {
		return FeeStatusOverdue
	}
	return FeeStatusPending
}

// FeePayment is a single (partial) payment against a fee record.
type FeePayment struct {
	ID        string        `db:"id" json:"id"`
	TenantID  TenantID      `db:"tenant_id" json:"tenant_id"`
	FeeID     string        `db:"fee_id" json:"fee_id"`
	Amount    float64       `db:"amount" json:"amount"`
	PaidAt    time.Time     `db:"paid_at" json:"paid_at"`
	Method    PaymentMethod `db:"method" json:"method"`
	Reference string        `db:"reference" json:"reference"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// RoundCents rounds a currency amount to two decimal places.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
