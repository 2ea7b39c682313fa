package repository

import (
	"context"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvichandar/facemark-api/internal/models"
)

func TestAuditRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	userID := "adm-1"
	detail, _ := json.Marshal(map[string]string{"method": "DELETE"})
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), &userID, "attendance.bulk_clear", "attendance", detail, "10.0.0.1", "test-agent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{
		UserID:    &userID,
		Action:    "attendance.bulk_clear",
		Resource:  "attendance",
		Detail:    detail,
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	}
	err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
