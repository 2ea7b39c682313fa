package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arvichandar/facemark-api/internal/dto"
	"github.com/arvichandar/facemark-api/internal/middleware"
	"github.com/arvichandar/facemark-api/internal/models"
	"github.com/arvichandar/facemark-api/internal/service"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
	"github.com/arvichandar/facemark-api/pkg/response"
)

// AttendanceHandler wires ledger endpoints.
type AttendanceHandler struct {
	gate           *service.GateService
	ledger         *service.LedgerService
	exports        *service.ExportService
	exportsEnabled bool
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(gate *service.GateService, ledger *service.LedgerService, exports *service.ExportService, exportsEnabled bool) *AttendanceHandler {
	return &AttendanceHandler{gate: gate, ledger: ledger, exports: exports, exportsEnabled: exportsEnabled}
}

// Mark godoc
// @Summary Mark attendance with face verification
// @Description Verify the captured face against the student's reference and append today's record. Already-marked students get a duplicate no-op.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.MarkAttendanceRequest true "Capture payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mark payload"))
		return
	}

	result, err := h.gate.MarkAttendance(c.Request.Context(), middleware.CurrentClaims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// MarkManual godoc
// @Summary Mark attendance without verification
// @Description Admin-only manual marking, recorded as unverified
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body object true "Student reference"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/manual [post]
func (h *AttendanceHandler) MarkManual(c *gin.Context) {
	var payload struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "student_id is required"))
		return
	}

	result, err := h.gate.MarkManual(c.Request.Context(), middleware.CurrentClaims(c), payload.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Today godoc
// @Summary Today's aggregate
// @Description Present, absent, and total counts for today's date in the institution timezone
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/today [get]
func (h *AttendanceHandler) Today(c *gin.Context) {
	agg, err := h.ledger.AggregateToday(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agg, nil)
}

// List godoc
// @Summary List attendance records
// @Description Filtered, paginated ledger records
// @Tags Attendance
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter := attendanceFilterFromQuery(c)

	records, pagination, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, records, pagination)
}

// BulkDelete godoc
// @Summary Clear the attendance ledger
// @Description Remove every attendance record, including queued fallback state
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [delete]
func (h *AttendanceHandler) BulkDelete(c *gin.Context) {
	deleted, err := h.ledger.BulkDelete(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted}, nil)
}

// Export godoc
// @Summary Export attendance
// @Description Download the filtered ledger as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	if !h.exportsEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "attendance exports are disabled"))
		return
	}
	filter := attendanceFilterFromQuery(c)

	var (
		content     []byte
		filename    string
		contentType string
		err         error
	)
	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		content, filename, err = h.exports.AttendancePDF(c.Request.Context(), filter)
		contentType = "application/pdf"
	case "csv":
		content, filename, err = h.exports.AttendanceCSV(c.Request.Context(), filter)
		contentType = "text/csv"
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, content)
}

// Reconcile godoc
// @Summary Reconcile queued attendance
// @Description Drain the fallback queue into the primary store and refresh the snapshot
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/reconcile [post]
func (h *AttendanceHandler) Reconcile(c *gin.Context) {
	if err := h.ledger.Reconcile(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"pending": h.ledger.PendingCount(c.Request.Context()),
	}, nil)
}

// ReconcileStatus godoc
// @Summary Fallback queue status
// @Description Number of records still waiting in the fallback queue
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/reconcile/status [get]
func (h *AttendanceHandler) ReconcileStatus(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{
		"pending": h.ledger.PendingCount(c.Request.Context()),
	}, nil)
}

func attendanceFilterFromQuery(c *gin.Context) models.AttendanceFilter {
	return models.AttendanceFilter{
		StudentID: c.Query("student_id"),
		DateFrom:  c.Query("date_from"),
		DateTo:    c.Query("date_to"),
		Page:      parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "page_size", 20),
	}
}
