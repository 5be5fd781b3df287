package models

import "time"

// StudentStatus captures the enrollment lifecycle of a student.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "Active"
	StudentStatusInactive  StudentStatus = "Inactive"
	StudentStatusGraduated StudentStatus = "Graduated"
)

// Valid returns true when the status is a supported value.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusGraduated:
		return true
	default:
		return false
	}
}

// Guardian holds the contact block for a student's guardian.
type Guardian struct {
	Name     string `db:"guardian_name" json:"name"`
	Phone    string `db:"guardian_phone" json:"phone"`
	Email    string `db:"guardian_email" json:"email"`
	Relation string `db:"guardian_relation" json:"relation"`
}

// DerivedMetrics are computed from a student's attendance, progress and fee records.
// They are never written by clients.
type DerivedMetrics struct {
	AttendanceRate     int     `db:"attendance_rate" json:"attendance_rate"`
	ProgressPercentage int     `db:"progress_percentage" json:"progress_percentage"`
	OutstandingFees    float64 `db:"outstanding_fees" json:"outstanding_fees"`
}

// Student represents a learner enrolled in a tenant. StudentID is assigned by
// the school and is unique within the tenant.
type Student struct {
	TenantID       TenantID      `db:"tenant_id" json:"tenant_id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	FirstName      string        `db:"first_name" json:"first_name"`
	LastName       string        `db:"last_name" json:"last_name"`
	Gender         string        `db:"gender" json:"gender"`
	DateOfBirth    *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	ClassName      string        `db:"class_name" json:"class_name"`
	Status         StudentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time     `db:"enrollment_date" json:"enrollment_date"`
	Address        string        `db:"address" json:"address"`
	Notes          string        `db:"notes" json:"notes"`
	Guardian       `json:"guardian"`
	DerivedMetrics
	MetricsUpdatedAt *time.Time `db:"metrics_updated_at" json:"metrics_updated_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	// Version increases on every committed write to the row, across deletes
	// and re-creates of the same student id.
	Version int64 `db:"version" json:"version"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassName string
	Status    *StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentSummary aggregates tenant-wide student figures.
type StudentSummary struct {
	Total                 int     `db:"total" json:"total"`
	Active                int     `db:"active" json:"active"`
	Inactive              int     `db:"inactive" json:"inactive"`
	Graduated             int     `db:"graduated" json:"graduated"`
	AverageAttendanceRate float64 `db:"average_attendance_rate" json:"average_attendance_rate"`
	AverageProgress       float64 `db:"average_progress" json:"average_progress"`
	TotalOutstandingFees  float64 `db:"total_outstanding_fees" json:"total_outstanding_fees"`
}
