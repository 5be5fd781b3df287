package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type feeRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, fee *models.FeeRecord) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.FeeRecord, error)
	Update(ctx context.Context, exec sqlx.ExtContext, fee *models.FeeRecord) error
	Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.FeeRecord, error)
	InsertPayment(ctx context.Context, exec sqlx.ExtContext, payment *models.FeePayment) error
	ListPayments(ctx context.Context, tenant models.TenantID, feeID string) ([]models.FeePayment, error)
}

// FeeService manages fee line items and payments and keeps outstanding fees current.
// Fee status is derived on every read from the service clock.
type FeeService struct {
	repo      feeRepository
	students  studentLookup
	uow       *unitOfWork
	cache     *StudentCache
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFeeService constructs the fee service.
func NewFeeService(repo feeRepository, students studentLookup, tx txProvider, aggregator recomputer, cache *StudentCache, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{
		repo:      repo,
		students:  students,
		uow:       newUnitOfWork(tx, students, aggregator),
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Create adds a fee to the student.
func (s *FeeService) Create(ctx context.Context, tenant models.TenantID, studentID string, req dto.CreateFeeRequest) (*models.FeeRecord, *models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid fee payload")
	}
	amount := models.RoundCents(req.Amount)
	paid := models.RoundCents(req.PaidAmount)
	if paid > amount {
		return nil, nil, appErrors.Clone(appErrors.ErrOverpayment, "paid amount exceeds fee amount")
	}
	fee := &models.FeeRecord{
		TenantID:    tenant,
		StudentID:   studentID,
		FeeType:     req.FeeType,
		Description: req.Description,
		Amount:      amount,
		PaidAmount:  paid,
		DueDate:     req.DueDate.Time,
	}
	student, err := s.uow.Do(ctx, tenant, studentID, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, fee); err != nil {
			return internalError(err, "failed to create fee")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.cache.store(ctx, student)
	withStatus := fee.WithStatus(s.now())
	return &withStatus, student, nil
}

// Update changes a fee. Lowering the amount below what was already paid is rejected.
func (s *FeeService) Update(ctx context.Context, tenant models.TenantID, feeID string, req dto.UpdateFeeRequest) (*models.FeeRecord, *models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid fee payload")
	}
	existing, err := s.find(ctx, nil, tenant, feeID)
	if err != nil {
		return nil, nil, err
	}
	var updated *models.FeeRecord
	student, err := s.uow.Do(ctx, tenant, existing.StudentID, func(tx *sqlx.Tx) error {
		fee, err := s.find(ctx, tx, tenant, feeID)
		if err != nil {
			return err
		}
		if req.FeeType != nil {
			fee.FeeType = *req.FeeType
		}
		if req.Description != nil {
			fee.Description = *req.Description
		}
		if req.DueDate != nil {
			fee.DueDate = req.DueDate.Time
		}
		if req.Amount != nil {
			amount := models.RoundCents(*req.Amount)
			if amount < models.RoundCents(fee.PaidAmount) {
				return appErrors.Clone(appErrors.ErrOverpayment, fmt.Sprintf("amount is below the %.2f already paid", fee.PaidAmount))
			}
			fee.Amount = amount
		}
		if err := s.repo.Update(ctx, tx, fee); err != nil {
			return internalError(err, "failed to update fee")
		}
		updated = fee
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.cache.store(ctx, student)
	withStatus := updated.WithStatus(s.now())
	return &withStatus, student, nil
}

// RecordPayment applies a (partial) payment to a fee. A payment that would
// take the paid amount above the fee amount is rejected.
func (s *FeeService) RecordPayment(ctx context.Context, tenant models.TenantID, feeID string, req dto.RecordPaymentRequest) (*models.FeePayment, *models.FeeRecord, *models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, nil, validationError(err, "invalid payment payload")
	}
	existing, err := s.find(ctx, nil, tenant, feeID)
	if err != nil {
		return nil, nil, nil, err
	}
	payment := &models.FeePayment{
		TenantID:  tenant,
		FeeID:     feeID,
		Amount:    models.RoundCents(req.Amount),
		PaidAt:    dto.DateOr(req.PaidAt, s.now()),
		Method:    req.Method,
		Reference: req.Reference,
	}
	var updated *models.FeeRecord
	student, err := s.uow.Do(ctx, tenant, existing.StudentID, func(tx *sqlx.Tx) error {
		fee, err := s.find(ctx, tx, tenant, feeID)
		if err != nil {
			return err
		}
		paid := models.RoundCents(fee.PaidAmount + payment.Amount)
		if paid > models.RoundCents(fee.Amount) {
			return appErrors.Clone(appErrors.ErrOverpayment, fmt.Sprintf("payment exceeds outstanding amount of %.2f", fee.Outstanding()))
		}
		if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
			return internalError(err, "failed to record payment")
		}
		fee.PaidAmount = paid
		if err := s.repo.Update(ctx, tx, fee); err != nil {
			return internalError(err, "failed to update fee")
		}
		updated = fee
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	s.cache.store(ctx, student)
	s.logger.Info("fee payment recorded",
		zap.String("tenant_id", tenant.String()),
		zap.String("fee_id", feeID),
		zap.Float64("amount", payment.Amount),
	)
	withStatus := updated.WithStatus(s.now())
	return payment, &withStatus, student, nil
}

// Delete removes a fee with its payments and returns the refreshed student.
func (s *FeeService) Delete(ctx context.Context, tenant models.TenantID, feeID string) (*models.Student, error) {
	existing, err := s.find(ctx, nil, tenant, feeID)
	if err != nil {
		return nil, err
	}
	student, err := s.uow.Do(ctx, tenant, existing.StudentID, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, tenant, feeID); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, tenant, feeID); err != nil {
			return internalError(err, "failed to delete fee")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.store(ctx, student)
	return student, nil
}

// ListByStudent returns the student's fees with their current status.
func (s *FeeService) ListByStudent(ctx context.Context, tenant models.TenantID, studentID string) ([]models.FeeRecord, error) {
	if _, err := s.students.FindByID(ctx, nil, tenant, studentID); err != nil {
		return nil, studentLookupError(err)
	}
	fees, err := s.repo.ListByStudent(ctx, nil, tenant, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list fees")
	}
	now := s.now()
	result := make([]models.FeeRecord, 0, len(fees))
	for _, fee := range fees {
		result = append(result, fee.WithStatus(now))
	}
	return result, nil
}

// ListPayments returns the payments made against a fee.
func (s *FeeService) ListPayments(ctx context.Context, tenant models.TenantID, feeID string) ([]models.FeePayment, error) {
	if _, err := s.find(ctx, nil, tenant, feeID); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, tenant, feeID)
	if err != nil {
		return nil, internalError(err, "failed to list payments")
	}
	if payments == nil {
		payments = []models.FeePayment{}
	}
	return payments, nil
}

func (s *FeeService) find(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, feeID string) (*models.FeeRecord, error) {
	fee, err := s.repo.FindByID(ctx, exec, tenant, feeID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, internalError(err, "failed to load fee")
	}
	return fee, nil
}
