package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	"github.com/noah-isme/madrasah-api/pkg/response"
)

type progressService interface {
	Append(ctx context.Context, tenant models.TenantID, studentID string, req dto.AppendProgressRequest) (*models.ProgressRecord, *models.Student, error)
	ListByStudent(ctx context.Context, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error)
	Current(ctx context.Context, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error)
	Delete(ctx context.Context, tenant models.TenantID, recordID string) (*models.Student, error)
}

// ProgressHandler exposes learning progress endpoints.
type ProgressHandler struct {
	progress progressService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress progressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// List godoc
// @Summary Progress history of a student
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/progress [get]
func (h *ProgressHandler) List(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	records, err := h.progress.ListByStudent(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Current godoc
// @Summary Latest progress per category
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/progress/current [get]
func (h *ProgressHandler) Current(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	records, err := h.progress.Current(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Append godoc
// @Summary Append a progress record
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.AppendProgressRequest true "Progress payload"
// @Success 201 {object} response.Envelope
// @Router /students/{id}/progress [post]
func (h *ProgressHandler) Append(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.AppendProgressRequest
	if !bindJSON(c, &req) {
		return
	}
	record, student, err := h.progress.Append(c.Request.Context(), tenant, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusCreated, record, student)
}

// Delete godoc
// @Summary Delete a progress record
// @Tags Progress
// @Produce json
// @Param recordId path string true "Progress record ID"
// @Success 200 {object} response.Envelope
// @Router /progress/{recordId} [delete]
func (h *ProgressHandler) Delete(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	student, err := h.progress.Delete(c.Request.Context(), tenant, c.Param("recordId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusOK, nil, student)
}
