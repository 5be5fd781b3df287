package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type progressRepository interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, record *models.ProgressRecord) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.ProgressRecord, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error)
}

// ProgressService appends assessments and keeps the progress percentage current.
type ProgressService struct {
	repo      progressRepository
	students  studentLookup
	uow       *unitOfWork
	cache     *StudentCache
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewProgressService constructs the progress service.
func NewProgressService(repo progressRepository, students studentLookup, tx txProvider, aggregator recomputer, cache *StudentCache, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		repo:      repo,
		students:  students,
		uow:       newUnitOfWork(tx, students, aggregator),
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Append adds an assessment; earlier assessments of the category are kept as history.
func (s *ProgressService) Append(ctx context.Context, tenant models.TenantID, studentID string, req dto.AppendProgressRequest) (*models.ProgressRecord, *models.Student, error) {
	req.Category = strings.TrimSpace(req.Category)
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid progress payload")
	}
	record := &models.ProgressRecord{
		TenantID:           tenant,
		StudentID:          studentID,
		Category:           req.Category,
		AssessmentDate:     dto.DateOr(req.AssessmentDate, s.now()),
		ProgressPercentage: *req.ProgressPercentage,
		Notes:              req.Notes,
	}
	student, err := s.uow.Do(ctx, tenant, studentID, func(tx *sqlx.Tx) error {
		if err := s.repo.Insert(ctx, tx, record); err != nil {
			return internalError(err, "failed to record progress")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.cache.store(ctx, student)
	return record, student, nil
}

// ListByStudent returns the student's assessment history, newest first.
func (s *ProgressService) ListByStudent(ctx context.Context, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error) {
	if _, err := s.students.FindByID(ctx, nil, tenant, studentID); err != nil {
		return nil, studentLookupError(err)
	}
	records, err := s.repo.ListByStudent(ctx, nil, tenant, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list progress")
	}
	if records == nil {
		records = []models.ProgressRecord{}
	}
	return records, nil
}

// Current returns the latest assessment of every category.
func (s *ProgressService) Current(ctx context.Context, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error) {
	records, err := s.ListByStudent(ctx, tenant, studentID)
	if err != nil {
		return nil, err
	}
	return LatestProgress(records), nil
}

// Delete removes an assessment and returns the refreshed student.
func (s *ProgressService) Delete(ctx context.Context, tenant models.TenantID, recordID string) (*models.Student, error) {
	existing, err := s.find(ctx, nil, tenant, recordID)
	if err != nil {
		return nil, err
	}
	student, err := s.uow.Do(ctx, tenant, existing.StudentID, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, tenant, recordID); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, tenant, recordID); err != nil {
			return internalError(err, "failed to delete progress")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.store(ctx, student)
	return student, nil
}

func (s *ProgressService) find(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, recordID string) (*models.ProgressRecord, error) {
	record, err := s.repo.FindByID(ctx, exec, tenant, recordID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "progress record not found")
		}
		return nil, internalError(err, "failed to load progress")
	}
	return record, nil
}
