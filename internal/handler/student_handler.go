package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	"github.com/noah-isme/madrasah-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, tenant models.TenantID, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, tenant models.TenantID, studentID string) (*models.Student, bool, error)
	Summary(ctx context.Context, tenant models.TenantID) (*models.StudentSummary, bool, error)
	Create(ctx context.Context, tenant models.TenantID, req dto.CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, tenant models.TenantID, studentID string, req dto.UpdateStudentRequest) (*models.Student, error)
	Delete(ctx context.Context, tenant models.TenantID, studentID string) error
}

type recomputeService interface {
	Student(ctx context.Context, tenant models.TenantID, studentID string) (*models.Student, error)
	Tenant(ctx context.Context, tenant models.TenantID) (string, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students  studentService
	recompute recomputeService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService, recompute recomputeService) *StudentHandler {
	return &StudentHandler{students: students, recompute: recompute}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or student ID"
// @Param class query string false "Filter by class name"
// @Param status query string false "Active, Inactive or Graduated"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	filter := models.StudentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		ClassName: strings.TrimSpace(c.Query("class")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "limit", 20),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if status := c.Query("status"); status != "" {
		s := models.StudentStatus(status)
		filter.Status = &s
	}

	students, pagination, err := h.students.List(c.Request.Context(), tenant, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Summary godoc
// @Summary Tenant student summary
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/summary [get]
func (h *StudentHandler) Summary(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	summary, hit, err := h.students.Summary(c.Request.Context(), tenant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, withCacheMeta(c, hit))
}

// Get godoc
// @Summary Get student with derived metrics
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	student, hit, err := h.students.Get(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil, withCacheMeta(c, hit))
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Create(c.Request.Context(), tenant, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student static fields
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.UpdateStudentRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id} [patch]
func (h *StudentHandler) Update(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Update(c.Request.Context(), tenant, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student and its records
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	if err := h.students.Delete(c.Request.Context(), tenant, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Recompute godoc
// @Summary Recompute one student's derived metrics
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/recompute [post]
func (h *StudentHandler) Recompute(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	student, err := h.recompute.Student(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// RecomputeTenant godoc
// @Summary Queue a recompute of every student in the tenant
// @Tags Students
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/recompute [post]
func (h *StudentHandler) RecomputeTenant(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		return
	}
	jobID, err := h.recompute.Tenant(c.Request.Context(), tenant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID, "status": "queued"})
}
