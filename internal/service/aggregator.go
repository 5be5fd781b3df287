package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type metricsStudentStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error)
	UpdateMetrics(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, metrics models.DerivedMetrics, at time.Time) error
}

type attendanceLister interface {
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

type progressLister interface {
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error)
}

type feeLister interface {
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.FeeRecord, error)
}

// AttendanceRate returns round(100 * attended / total), where Present and Late
// count as attended. A student with no records has a rate of 0.
func AttendanceRate(records []models.AttendanceRecord) int {
	if len(records) == 0 {
		return 0
	}
	attended := 0
	for _, r := range records {
		if r.Status.Attended() {
			attended++
		}
	}
	return int(math.Round(100 * float64(attended) / float64(len(records))))
}

// LatestProgress returns the most recent assessment per category, ordered by category.
// Recency is decided by assessment date, then creation time, then id.
func LatestProgress(records []models.ProgressRecord) []models.ProgressRecord {
	latest := make(map[string]models.ProgressRecord)
	for _, r := range records {
		current, ok := latest[r.Category]
		if !ok || newerProgress(r, current) {
			latest[r.Category] = r
		}
	}
	result := make([]models.ProgressRecord, 0, len(latest))
	for _, r := range latest {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Category < result[j].Category })
	return result
}

func newerProgress(a, b models.ProgressRecord) bool {
	if !a.AssessmentDate.Equal(b.AssessmentDate) {
		return a.AssessmentDate.After(b.AssessmentDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// ProgressPercentage averages the latest value of each category and rounds it.
func ProgressPercentage(records []models.ProgressRecord) int {
	latest := LatestProgress(records)
	if len(latest) == 0 {
		return 0
	}
	var sum float64
	for _, r := range latest {
		sum += r.ProgressPercentage
	}
	return int(math.Round(sum / float64(len(latest))))
}

// OutstandingFees sums the unpaid remainder of every fee, rounded to cents.
func OutstandingFees(fees []models.FeeRecord) float64 {
	var total float64
	for _, f := range fees {
		total += f.Outstanding()
	}
	return models.RoundCents(total)
}

// ComputeMetrics derives every metric from a student's event records.
func ComputeMetrics(attendance []models.AttendanceRecord, progress []models.ProgressRecord, fees []models.FeeRecord) models.DerivedMetrics {
	return models.DerivedMetrics{
		AttendanceRate:     AttendanceRate(attendance),
		ProgressPercentage: ProgressPercentage(progress),
		OutstandingFees:    OutstandingFees(fees),
	}
}

// Aggregator recomputes a student's derived metrics from its event records.
type Aggregator struct {
	students   metricsStudentStore
	attendance attendanceLister
	progress   progressLister
	fees       feeLister
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewAggregator constructs an Aggregator.
func NewAggregator(students metricsStudentStore, attendance attendanceLister, progress progressLister, fees feeLister, metrics *MetricsService, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		students:   students,
		attendance: attendance,
		progress:   progress,
		fees:       fees,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Recompute reads the student's events through exec, persists the derived
// metrics and returns the refreshed student. Any failure is reported as
// RecomputeFailed; callers running inside a transaction must roll back.
func (a *Aggregator) Recompute(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (student *models.Student, err error) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveRecompute(time.Since(start), err)
		if err != nil {
			a.logger.Error("recompute failed",
				zap.String("tenant_id", tenant.String()),
				zap.String("student_id", studentID),
				zap.Error(err),
			)
		}
	}()

	attendance, err := a.attendance.ListByStudent(ctx, exec, tenant, studentID, models.AttendanceFilter{})
	if err != nil {
		return nil, recomputeFailed(err)
	}
	progress, err := a.progress.ListByStudent(ctx, exec, tenant, studentID)
	if err != nil {
		return nil, recomputeFailed(err)
	}
	fees, err := a.fees.ListByStudent(ctx, exec, tenant, studentID)
	if err != nil {
		return nil, recomputeFailed(err)
	}

	metrics := ComputeMetrics(attendance, progress, fees)
	if err = a.students.UpdateMetrics(ctx, exec, tenant, studentID, metrics, a.now().UTC()); err != nil {
		return nil, recomputeFailed(err)
	}
	student, err = a.students.FindByID(ctx, exec, tenant, studentID)
	if err != nil {
		return nil, recomputeFailed(err)
	}
	return student, nil
}

func recomputeFailed(err error) error {
	return appErrors.Wrap(err, appErrors.ErrRecomputeFailed.Code, appErrors.ErrRecomputeFailed.Status, appErrors.ErrRecomputeFailed.Message)
}
