package dto

import "github.com/noah-isme/madrasah-api/internal/models"

// MarkAttendanceRequest records (or overwrites) a student's mark for a day.
type MarkAttendanceRequest struct {
	Date   *Date                   `json:"date" validate:"required" swaggertype:"string" example:"2024-02-01"`
	Status models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Notes  string                  `json:"notes" validate:"max=500"`
}

// UpdateAttendanceRequest changes an existing mark.
type UpdateAttendanceRequest struct {
	Status *models.AttendanceStatus `json:"status" validate:"omitempty,attendance_status"`
	Notes  *string                  `json:"notes" validate:"omitempty,max=500"`
}

// AppendProgressRequest appends an assessment to a student's history.
type AppendProgressRequest struct {
	Category           string   `json:"category" validate:"required,max=50"`
	AssessmentDate     *Date    `json:"assessment_date" swaggertype:"string" example:"2024-02-01"`
	ProgressPercentage *float64 `json:"progress_percentage" validate:"required,gte=0,lte=100"`
	Notes              string   `json:"notes" validate:"max=500"`
}

// CreateFeeRequest adds a fee line item to a student.
type CreateFeeRequest struct {
	FeeType     models.FeeType `json:"fee_type" validate:"required,fee_type"`
	Description string         `json:"description" validate:"max=255"`
	Amount      float64        `json:"amount" validate:"required,gt=0"`
	PaidAmount  float64        `json:"paid_amount" validate:"gte=0"`
	DueDate     *Date          `json:"due_date" validate:"required" swaggertype:"string" example:"2024-03-01"`
}

// UpdateFeeRequest changes a fee line item. Nil fields are left unchanged.
type UpdateFeeRequest struct {
	FeeType     *models.FeeType `json:"fee_type" validate:"omitempty,fee_type"`
	Description *string         `json:"description" validate:"omitempty,max=255"`
	Amount      *float64        `json:"amount" validate:"omitempty,gt=0"`
	DueDate     *Date           `json:"due_date" swaggertype:"string" example:"2024-03-01"`
}

// RecordPaymentRequest records a (partial) payment against a fee.
type RecordPaymentRequest struct {
	Amount    float64              `json:"amount" validate:"required,gt=0"`
	PaidAt    *Date                `json:"paid_at" swaggertype:"string" example:"2024-02-15"`
	Method    models.PaymentMethod `json:"method" validate:"required,payment_method"`
	Reference string               `json:"reference" validate:"max=100"`
}
