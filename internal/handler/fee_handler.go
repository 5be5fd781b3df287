package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	"github.com/noah-isme/madrasah-api/pkg/response"
)

type feeService interface {
	Create(ctx context.Context, tenant models.TenantID, studentID string, req dto.CreateFeeRequest) (*models.FeeRecord, *models.Student, error)
	Update(ctx context.Context, tenant models.TenantID, feeID string, req dto.UpdateFeeRequest) (*models.FeeRecord, *models.Student, error)
	RecordPayment(ctx context.Context, tenant models.TenantID, feeID string, req dto.RecordPaymentRequest) (*models.FeePayment, *models.FeeRecord, *models.Student, error)
	Delete(ctx context.Context, tenant models.TenantID, feeID string) (*models.Student, error)
	ListByStudent(ctx context.Context, tenant models.TenantID, studentID string) ([]models.FeeRecord, error)
	ListPayments(ctx context.Context, tenant models.TenantID, feeID string) ([]models.FeePayment, error)
}

// FeeHandler exposes fee and payment endpoints.
type FeeHandler struct {
	fees feeService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees feeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// List godoc
// @Summary List a student's fees
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/fees [get]
func (h *FeeHandler) List(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	fees, err := h.fees.ListByStudent(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}

// Create godoc
// @Summary Create a fee
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.CreateFeeRequest true "Fee payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/fees [post]
func (h *FeeHandler) Create(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateFeeRequest
	if !bindJSON(c, &req) {
		return
	}
	fee, student, err := h.fees.Create(c.Request.Context(), tenant, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusCreated, fee, student)
}

// Update godoc
// @Summary Update a fee
// @Tags Fees
// @Accept json
// @Produce json
// @Param feeId path string true "Fee ID"
// @Param payload body dto.UpdateFeeRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /fees/{feeId} [patch]
func (h *FeeHandler) Update(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateFeeRequest
	if !bindJSON(c, &req) {
		return
	}
	fee, student, err := h.fees.Update(c.Request.Context(), tenant, c.Param("feeId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusOK, fee, student)
}

// Delete godoc
// @Summary Delete a fee and its payments
// @Tags Fees
// @Produce json
// @Param feeId path string true "Fee ID"
// @Success 200 {object} response.Envelope
// @Router /fees/{feeId} [delete]
func (h *FeeHandler) Delete(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	student, err := h.fees.Delete(c.Request.Context(), tenant, c.Param("feeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusOK, nil, student)
}

// RecordPayment godoc
// @Summary Record a payment against a fee
// @Tags Fees
// @Accept json
// @Produce json
// @Param feeId path string true "Fee ID"
// @Param payload body dto.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /fees/{feeId}/payments [post]
func (h *FeeHandler) RecordPayment(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.RecordPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, fee, student, err := h.fees.RecordPayment(c.Request.Context(), tenant, c.Param("feeId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{"record": payment, "fee": fee, "student": student}, nil)
}

// ListPayments godoc
// @Summary List payments of a fee
// @Tags Fees
// @Produce json
// @Param feeId path string true "Fee ID"
// @Success 200 {object} response.Envelope
// @Router /fees/{feeId}/payments [get]
func (h *FeeHandler) ListPayments(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	payments, err := h.fees.ListPayments(c.Request.Context(), tenant, c.Param("feeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}
