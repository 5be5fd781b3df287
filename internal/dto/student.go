package dto

import "github.com/noah-isme/madrasah-api/internal/models"

// GuardianPayload carries guardian contact details.
type GuardianPayload struct {
	Name     string `json:"name" validate:"max=150"`
	Phone    string `json:"phone" validate:"max=30"`
	Email    string `json:"email" validate:"omitempty,email"`
	Relation string `json:"relation" validate:"max=50"`
}

// DerivedFields captures derived metrics a client may try to send. Any value
// present is rejected.
type DerivedFields struct {
	AttendanceRate     *float64 `json:"attendance_rate,omitempty" swaggerignore:"true"`
	ProgressPercentage *float64 `json:"progress_percentage,omitempty" swaggerignore:"true"`
	OutstandingFees    *float64 `json:"outstanding_fees,omitempty" swaggerignore:"true"`
}

// Present reports whether any derived field was supplied.
func (d DerivedFields) Present() bool {
	return d.AttendanceRate != nil || d.ProgressPercentage != nil || d.OutstandingFees != nil
}

// CreateStudentRequest holds the payload for enrolling a student.
type CreateStudentRequest struct {
	StudentID      string                `json:"student_id" validate:"required,max=50"`
	FirstName      string                `json:"first_name" validate:"required,max=100"`
	LastName       string                `json:"last_name" validate:"max=100"`
	Gender         string                `json:"gender" validate:"omitempty,oneof=M F"`
	DateOfBirth    *Date                 `json:"date_of_birth" swaggertype:"string" example:"2012-05-14"`
	ClassName      string                `json:"class_name" validate:"max=100"`
	Status         *models.StudentStatus `json:"status" validate:"omitempty,student_status"`
	EnrollmentDate *Date                 `json:"enrollment_date" swaggertype:"string" example:"2024-01-08"`
	Address        string                `json:"address" validate:"max=255"`
	Notes          string                `json:"notes"`
	Guardian       GuardianPayload       `json:"guardian"`
	DerivedFields
}

// UpdateStudentRequest holds a partial update of a student's authored fields.
// Nil fields are left unchanged.
type UpdateStudentRequest struct {
	FirstName      *string               `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName       *string               `json:"last_name" validate:"omitempty,max=100"`
	Gender         *string               `json:"gender" validate:"omitempty,oneof=M F"`
	DateOfBirth    *Date                 `json:"date_of_birth" swaggertype:"string" example:"2012-05-14"`
	ClassName      *string               `json:"class_name" validate:"omitempty,max=100"`
	Status         *models.StudentStatus `json:"status" validate:"omitempty,student_status"`
	EnrollmentDate *Date                 `json:"enrollment_date" swaggertype:"string" example:"2024-01-08"`
	Address        *string               `json:"address" validate:"omitempty,max=255"`
	Notes          *string               `json:"notes"`
	Guardian       *GuardianPayload      `json:"guardian"`
	DerivedFields
}

// StudentWriteResult pairs a mutated event record with the refreshed student.
type StudentWriteResult struct {
	Record  interface{}     `json:"record"`
	Student *models.Student `json:"student"`
}
