package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	"github.com/noah-isme/madrasah-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, tenant models.TenantID, studentID string, req dto.MarkAttendanceRequest) (*models.AttendanceRecord, *models.Student, error)
	Update(ctx context.Context, tenant models.TenantID, recordID string, req dto.UpdateAttendanceRequest) (*models.AttendanceRecord, *models.Student, error)
	Delete(ctx context.Context, tenant models.TenantID, recordID string) (*models.Student, error)
	ListByStudent(ctx context.Context, tenant models.TenantID, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

// AttendanceHandler exposes daily attendance endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary List a student's attendance
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	records, err := h.attendance.ListByStudent(c.Request.Context(), tenant, c.Param("id"), models.AttendanceFilter{From: from, To: to})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Mark godoc
// @Summary Mark attendance for a day
// @Description Creates or replaces the student's record for the date.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	record, student, err := h.attendance.Mark(c.Request.Context(), tenant, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusOK, record, student)
}

// Update godoc
// @Summary Update an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param recordId path string true "Attendance record ID"
// @Param payload body dto.UpdateAttendanceRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /attendance/{recordId} [patch]
func (h *AttendanceHandler) Update(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	record, student, err := h.attendance.Update(c.Request.Context(), tenant, c.Param("recordId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusOK, record, student)
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Produce json
// @Param recordId path string true "Attendance record ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{recordId} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	student, err := h.attendance.Delete(c.Request.Context(), tenant, c.Param("recordId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, http.StatusOK, nil, student)
}
