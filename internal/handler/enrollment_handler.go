package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haeun-dev/registrar-api/internal/admission"
	"github.com/haeun-dev/registrar-api/internal/models"
	"github.com/haeun-dev/registrar-api/internal/service"
	appErrors "github.com/haeun-dev/registrar-api/pkg/errors"
	"github.com/haeun-dev/registrar-api/pkg/response"
)

// EnrollmentHandler exposes admission and enrollment-history endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollment history
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseCode query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseCode = c.Query("courseCode")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Enroll godoc
// @Summary Request a seat in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	switch result.Decision {
	case admission.DecisionAccepted:
		response.Created(c, result)
	case admission.DecisionNotFound:
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "student or course not found"))
	case admission.DecisionAlreadyEnrolled:
		response.Error(c, appErrors.ErrAlreadyEnrolled)
	case admission.DecisionCourseFull:
		response.Error(c, appErrors.ErrCourseFull)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("unexpected decision %s", result.Decision)))
	}
}

// Drop godoc
// @Summary Release a seat in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Drop payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.Drop(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	switch result.Decision {
	case admission.DecisionDropped:
		response.JSON(c, http.StatusOK, result, nil)
	case admission.DecisionNotFound:
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "student or course not found"))
	case admission.DecisionNotEnrolled:
		response.Error(c, appErrors.ErrNotEnrolled)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("unexpected decision %s", result.Decision)))
	}
}

// Roster godoc
// @Summary Active roster for a course
// @Tags Enrollments
// @Produce json
// @Param code path string true "Course code"
// @Success 200 {object} response.Envelope
// @Router /courses/{code}/roster [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	roster, err := h.enrollments.Roster(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// ExportRoster godoc
// @Summary Export the active roster as CSV or PDF
// @Tags Enrollments
// @Produce octet-stream
// @Param code path string true "Course code"
// @Param format query string false "csv or pdf"
// @Success 200 {file} byte
// @Router /courses/{code}/roster/export [get]
func (h *EnrollmentHandler) ExportRoster(c *gin.Context) {
	code := c.Param("code")
	format := c.DefaultQuery("format", "csv")

	payload, contentType, err := h.enrollments.ExportRoster(c.Request.Context(), code, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("roster-%s.%s", code, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
