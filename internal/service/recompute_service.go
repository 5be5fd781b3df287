package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
	"github.com/noah-isme/madrasah-api/pkg/jobs"
)

// RecomputeQueue names the background queue running tenant-wide recomputes.
const RecomputeQueue = "recompute"

const tenantRecomputeJob = "tenant_recompute"

type recomputeStudentStore interface {
	studentLocker
	ListIDs(ctx context.Context, tenant models.TenantID) ([]string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// RecomputeService repairs derived metrics on demand, for one student
// synchronously or for a whole tenant through the background queue.
type RecomputeService struct {
	students recomputeStudentStore
	uow      *unitOfWork
	cache    *StudentCache
	queue    jobEnqueuer
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewRecomputeService constructs the service. AttachQueue must be called
// before Tenant can enqueue work.
func NewRecomputeService(students recomputeStudentStore, tx txProvider, aggregator recomputer, cache *StudentCache, metrics *MetricsService, logger *zap.Logger) *RecomputeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeService{
		students: students,
		uow:      newUnitOfWork(tx, students, aggregator),
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// AttachQueue sets the queue used for tenant-wide jobs.
func (s *RecomputeService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Student recomputes one student in its own transaction.
func (s *RecomputeService) Student(ctx context.Context, tenant models.TenantID, studentID string) (*models.Student, error) {
	student, err := s.uow.Do(ctx, tenant, studentID, func(*sqlx.Tx) error { return nil })
	if err != nil {
		return nil, err
	}
	s.cache.store(ctx, student)
	return student, nil
}

// Tenant enqueues a recompute of every student of the tenant and returns the job id.
// At most one such job per tenant is queued or running.
func (s *RecomputeService) Tenant(ctx context.Context, tenant models.TenantID) (string, error) {
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "recompute queue unavailable")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    tenantRecomputeJob,
		Key:     tenantRecomputeKey(tenant),
		Payload: tenant,
	}
	if err := s.queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return "", appErrors.Clone(appErrors.ErrConflict, "recompute already queued for tenant")
		}
		return "", internalError(err, "failed to enqueue recompute")
	}
	s.logger.Info("tenant recompute queued", zap.String("tenant_id", tenant.String()), zap.String("job_id", job.ID))
	return job.ID, nil
}

// Handle is the queue handler for tenant-wide recompute jobs. Each student is
// recomputed in its own transaction; the job fails when any student failed.
func (s *RecomputeService) Handle(ctx context.Context, job jobs.Job) (err error) {
	defer func() { s.metrics.RecordJob(RecomputeQueue, err) }()

	tenant, ok := job.Payload.(models.TenantID)
	if !ok || !tenant.Valid() {
		return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	ids, err := s.students.ListIDs(ctx, tenant)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}

	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		student, err := s.uow.Do(ctx, tenant, id, func(*sqlx.Tx) error { return nil })
		if err != nil {
			if appErrors.Is(err, appErrors.ErrNotFound) {
				continue
			}
			failed++
			s.logger.Warn("student recompute failed",
				zap.String("tenant_id", tenant.String()),
				zap.String("student_id", id),
				zap.Error(err),
			)
			continue
		}
		s.cache.store(ctx, student)
	}
	s.logger.Info("tenant recompute finished",
		zap.String("tenant_id", tenant.String()),
		zap.Int("students", len(ids)),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("recompute failed for %d of %d students", failed, len(ids))
	}
	return nil
}

func tenantRecomputeKey(tenant models.TenantID) string {
	return "recompute:" + tenant.String()
}
