package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	"github.com/noah-isme/madrasah-api/internal/repository"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, tenant models.TenantID, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error)
	Lock(ctx context.Context, tx sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error)
	Exists(ctx context.Context, tenant models.TenantID, studentID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (bool, error)
	Summary(ctx context.Context, tenant models.TenantID) (*models.StudentSummary, error)
}

// StudentEventPurger removes one kind of event record for a student.
type StudentEventPurger interface {
	DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) error
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	purgers   []StudentEventPurger
	tx        txProvider
	cache     *StudentCache
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service. purgers are run in order
// when a student is deleted; payments and fees must precede the student row.
func NewStudentService(repo studentRepository, purgers []StudentEventPurger, tx txProvider, cache *StudentCache, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		purgers:   purgers,
		tx:        tx,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns the tenant's students and pagination metadata.
func (s *StudentService) List(ctx context.Context, tenant models.TenantID, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	students, total, err := s.repo.List(ctx, tenant, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student with its derived metrics. The boolean reports a cache hit.
func (s *StudentService) Get(ctx context.Context, tenant models.TenantID, studentID string) (*models.Student, bool, error) {
	if cached, found := s.cache.load(ctx, tenant, studentID); found {
		if cached == nil {
			return nil, true, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return cached, true, nil
	}
	student, err := s.repo.FindByID(ctx, nil, tenant, studentID)
	if err != nil {
		return nil, false, studentLookupError(err)
	}
	s.cache.fill(ctx, student)
	return student, false, nil
}

// Summary returns tenant-wide figures. The boolean reports a cache hit.
func (s *StudentService) Summary(ctx context.Context, tenant models.TenantID) (*models.StudentSummary, bool, error) {
	if cached, ok := s.cache.loadSummary(ctx, tenant); ok {
		return cached, true, nil
	}
	summary, err := s.repo.Summary(ctx, tenant)
	if err != nil {
		return nil, false, internalError(err, "failed to load student summary")
	}
	summary.TotalOutstandingFees = models.RoundCents(summary.TotalOutstandingFees)
	s.cache.storeSummary(ctx, tenant, summary)
	return summary, false, nil
}

// Create enrolls a new student. Derived metrics start at zero.
func (s *StudentService) Create(ctx context.Context, tenant models.TenantID, req dto.CreateStudentRequest) (*models.Student, error) {
	if req.Present() {
		return nil, appErrors.ErrDerivedImmutable
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	exists, err := s.repo.Exists(ctx, tenant, req.StudentID)
	if err != nil {
		return nil, internalError(err, "failed to validate student id")
	}
	if exists {
		return nil, appErrors.ErrDuplicateStudentID
	}

	status := models.StudentStatusActive
	if req.Status != nil {
		status = *req.Status
	}
	student := &models.Student{
		TenantID:       tenant,
		StudentID:      req.StudentID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Gender:         req.Gender,
		ClassName:      req.ClassName,
		Status:         status,
		EnrollmentDate: models.Day(dto.DateOr(req.EnrollmentDate, s.now())),
		Address:        req.Address,
		Notes:          req.Notes,
		Guardian:       guardianFromPayload(req.Guardian),
	}
	if req.DateOfBirth != nil {
		dob := models.Day(req.DateOfBirth.Time)
		student.DateOfBirth = &dob
	}

	if err := s.repo.Create(ctx, student); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.ErrDuplicateStudentID
		}
		return nil, internalError(err, "failed to create student")
	}
	s.cache.store(ctx, student)
	s.logger.Info("student created", zap.String("tenant_id", tenant.String()), zap.String("student_id", student.StudentID))
	return student, nil
}

// Update applies a partial update to a student's authored fields.
func (s *StudentService) Update(ctx context.Context, tenant models.TenantID, studentID string, req dto.UpdateStudentRequest) (student *models.Student, err error) {
	if req.Present() {
		return nil, appErrors.ErrDerivedImmutable
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	student, err = s.repo.Lock(ctx, tx, tenant, studentID)
	if err != nil {
		return nil, studentLookupError(err)
	}
	applyStudentUpdate(student, req)
	if err := s.repo.Update(ctx, tx, student); err != nil {
		return nil, internalError(err, "failed to update student")
	}
	if err := tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	s.cache.store(ctx, student)
	return student, nil
}

// Delete removes a student and every event record it owns.
func (s *StudentService) Delete(ctx context.Context, tenant models.TenantID, studentID string) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.repo.Lock(ctx, tx, tenant, studentID)
	if err != nil {
		return studentLookupError(err)
	}
	for _, purger := range s.purgers {
		if err := purger.DeleteByStudent(ctx, tx, tenant, studentID); err != nil {
			return internalError(err, "failed to delete student records")
		}
	}
	deleted, err := s.repo.Delete(ctx, tx, tenant, studentID)
	if err != nil {
		return internalError(err, "failed to delete student")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if err := tx.Commit(); err != nil {
		return internalError(err, "failed to commit transaction")
	}
	s.cache.tombstone(ctx, tenant, studentID, locked.Version)
	s.logger.Info("student deleted", zap.String("tenant_id", tenant.String()), zap.String("student_id", studentID))
	return nil
}

func applyStudentUpdate(student *models.Student, req dto.UpdateStudentRequest) {
	if req.FirstName != nil {
		student.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		student.LastName = *req.LastName
	}
	if req.Gender != nil {
		student.Gender = *req.Gender
	}
	if req.DateOfBirth != nil {
		dob := models.Day(req.DateOfBirth.Time)
		student.DateOfBirth = &dob
	}
	if req.ClassName != nil {
		student.ClassName = *req.ClassName
	}
	if req.Status != nil {
		student.Status = *req.Status
	}
	if req.EnrollmentDate != nil {
		student.EnrollmentDate = models.Day(req.EnrollmentDate.Time)
	}
	if req.Address != nil {
		student.Address = *req.Address
	}
	if req.Notes != nil {
		student.Notes = *req.Notes
	}
	if req.Guardian != nil {
		student.Guardian = guardianFromPayload(*req.Guardian)
	}
}

func guardianFromPayload(p dto.GuardianPayload) models.Guardian {
	return models.Guardian{Name: p.Name, Phone: p.Phone, Email: p.Email, Relation: p.Relation}
}

// isNotFound reports whether err means the row is absent.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
