package models

import "time"

// ProgressRecord is one assessment of a student in a category (e.g. Quran, Arabic).
// Records are append-only; the latest per category is the current value.
type ProgressRecord struct {
	ID                 string    `db:"id" json:"id"`
	TenantID           TenantID  `db:"tenant_id" json:"tenant_id"`
	StudentID          string    `db:"student_id" json:"student_id"`
	Category           string    `db:"category" json:"category"`
	AssessmentDate     time.Time `db:"assessment_date" json:"assessment_date"`
	ProgressPercentage float64   `db:"progress_percentage" json:"progress_percentage"`
	Notes              string    `db:"notes" json:"notes"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
