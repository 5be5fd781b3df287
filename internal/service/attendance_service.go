package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.AttendanceRecord, error)
	Update(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error
	Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

// studentLookup finds and locks student rows for event services.
type studentLookup interface {
	studentLocker
	FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error)
}

// AttendanceService records daily attendance and keeps the attendance rate current.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentLookup
	uow       *unitOfWork
	cache     *StudentCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students studentLookup, tx txProvider, aggregator recomputer, cache *StudentCache, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		uow:       newUnitOfWork(tx, students, aggregator),
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Mark records the student's status for a day, replacing an existing mark for that day.
func (s *AttendanceService) Mark(ctx context.Context, tenant models.TenantID, studentID string, req dto.MarkAttendanceRequest) (*models.AttendanceRecord, *models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid attendance payload")
	}
	var stored *models.AttendanceRecord
	student, err := s.uow.Do(ctx, tenant, studentID, func(tx *sqlx.Tx) error {
		record, err := s.repo.Upsert(ctx, tx, &models.AttendanceRecord{
			TenantID:  tenant,
			StudentID: studentID,
			Date:      req.Date.Time,
			Status:    req.Status,
			Notes:     req.Notes,
		})
		if err != nil {
			return internalError(err, "failed to record attendance")
		}
		stored = record
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.cache.store(ctx, student)
	return stored, student, nil
}

// Update changes the status or notes of an existing mark.
func (s *AttendanceService) Update(ctx context.Context, tenant models.TenantID, recordID string, req dto.UpdateAttendanceRequest) (*models.AttendanceRecord, *models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid attendance payload")
	}
	existing, err := s.find(ctx, nil, tenant, recordID)
	if err != nil {
		return nil, nil, err
	}
	var updated *models.AttendanceRecord
	student, err := s.uow.Do(ctx, tenant, existing.StudentID, func(tx *sqlx.Tx) error {
		record, err := s.find(ctx, tx, tenant, recordID)
		if err != nil {
			return err
		}
		if req.Status != nil {
			record.Status = *req.Status
		}
		if req.Notes != nil {
			record.Notes = *req.Notes
		}
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return internalError(err, "failed to update attendance")
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.cache.store(ctx, student)
	return updated, student, nil
}

// Delete removes a mark and returns the refreshed student.
func (s *AttendanceService) Delete(ctx context.Context, tenant models.TenantID, recordID string) (*models.Student, error) {
	existing, err := s.find(ctx, nil, tenant, recordID)
	if err != nil {
		return nil, err
	}
	student, err := s.uow.Do(ctx, tenant, existing.StudentID, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, tenant, recordID); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, tenant, recordID); err != nil {
			return internalError(err, "failed to delete attendance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.store(ctx, student)
	return student, nil
}

// ListByStudent returns the student's marks in the optional date range, newest first.
func (s *AttendanceService) ListByStudent(ctx context.Context, tenant models.TenantID, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	if _, err := s.students.FindByID(ctx, nil, tenant, studentID); err != nil {
		return nil, studentLookupError(err)
	}
	records, err := s.repo.ListByStudent(ctx, nil, tenant, studentID, filter)
	if err != nil {
		return nil, internalError(err, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

func (s *AttendanceService) find(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, recordID string) (*models.AttendanceRecord, error) {
	record, err := s.repo.FindByID(ctx, exec, tenant, recordID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, internalError(err, "failed to load attendance")
	}
	return record, nil
}
