package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arvichandar/facemark-api/internal/dto"
	"github.com/arvichandar/facemark-api/internal/middleware"
	"github.com/arvichandar/facemark-api/internal/models"
	"github.com/arvichandar/facemark-api/internal/service"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
	"github.com/arvichandar/facemark-api/pkg/response"
)

// StudentHandler wires student lifecycle endpoints.
type StudentHandler struct {
	students *service.StudentService
	ledger   *service.LedgerService
	gate     *service.GateService
}

// NewStudentHandler creates a new handler.
func NewStudentHandler(students *service.StudentService, ledger *service.LedgerService, gate *service.GateService) *StudentHandler {
	return &StudentHandler{students: students, ledger: ledger, gate: gate}
}

// Register godoc
// @Summary Register a student
// @Description Create a student with a reference photo and face descriptor
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.RegisterStudentRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /students [post]
func (h *StudentHandler) Register(c *gin.Context) {
	var req dto.RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	student, err := h.students.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, student)
}

// List godoc
// @Summary List students
// @Description List students with filtering and pagination
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or roll"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:    c.Query("search"),
		Page:      parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if status := c.Query("status"); status != "" {
		st := models.StudentStatus(status)
		filter.Status = &st
	}

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	if err := h.gate.Authorize(c.Request.Context(), middleware.CurrentClaims(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete a student
// @Description Remove a student and every dependent artifact: attendance rows, the stored descriptor, the recognizer entry, the photo, and the login account
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Student attendance history
// @Description Most recent attendance records for the student, newest first
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/history [get]
func (h *StudentHandler) History(c *gin.Context) {
	studentID := c.Param("id")
	if err := h.gate.Authorize(c.Request.Context(), middleware.CurrentClaims(c), studentID); err != nil {
		response.Error(c, err)
		return
	}

	records, err := h.ledger.StudentHistory(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, records, nil)
}

// Percentage godoc
// @Summary Student attendance percentage
// @Description Present days over all recorded sessions as a whole percentage
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/percentage [get]
func (h *StudentHandler) Percentage(c *gin.Context) {
	studentID := c.Param("id")
	if err := h.gate.Authorize(c.Request.Context(), middleware.CurrentClaims(c), studentID); err != nil {
		response.Error(c, err)
		return
	}

	pct, err := h.ledger.Percentage(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, pct, nil)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
