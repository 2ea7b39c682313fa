package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAttendanceHandlerExportDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAttendanceHandler(nil, nil, nil, false)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/attendance/export?format=csv", nil)

	h.Export(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "exports are disabled")
}
