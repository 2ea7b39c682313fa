package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvichandar/facemark-api/internal/models"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryInsertNew(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "student-1", "2024-01-10", sqlmock.AnyArg(), models.VerificationFaceMatch, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))

	stored, duplicate, err := repo.Insert(context.Background(), &models.AttendanceRecord{
		StudentID:  "student-1",
		Date:       "2024-01-10",
		CapturedAt: time.Now().UTC(),
		Method:     models.VerificationFaceMatch,
		Verified:   true,
	})
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, "student-1", stored.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertDuplicateReturnsExisting(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	existing := time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC)

	// Conflict suppresses the insert, so RETURNING yields no rows.
	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "student-1", "2024-01-10", sqlmock.AnyArg(), models.VerificationFaceMatch, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, date, captured_at, method, verified, confidence, created_at\nFROM attendance_records WHERE student_id = $1 AND date = $2 LIMIT 1")).
		WithArgs("student-1", "2024-01-10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "date", "captured_at", "method", "verified", "confidence", "created_at"}).
			AddRow("rec-1", "student-1", "2024-01-10", existing, "face-match", true, 0.92, existing))

	stored, duplicate, err := repo.Insert(context.Background(), &models.AttendanceRecord{
		StudentID:  "student-1",
		Date:       "2024-01-10",
		CapturedAt: time.Now().UTC(),
		Method:     models.VerificationFaceMatch,
		Verified:   true,
	})
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, "rec-1", stored.ID)
	assert.Equal(t, existing, stored.CapturedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryExistsForDate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM attendance_records WHERE student_id = $1 AND date = $2)")).
		WithArgs("student-1", "2024-01-10").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForDate(context.Background(), "student-1", "2024-01-10")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCounts(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT student_id) FROM attendance_records WHERE date = $1")).
		WithArgs("2024-01-10").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT date) FROM attendance_records WHERE student_id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT date) FROM attendance_records")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	present, err := repo.CountPresentForDate(context.Background(), "2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, 12, present)

	days, err := repo.CountDistinctDatesForStudent(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 4, days)

	sessions, err := repo.CountDistinctDates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, date, captured_at, method, verified, confidence, created_at\nFROM attendance_records WHERE student_id = $1 ORDER BY date DESC, captured_at DESC LIMIT $2")).
		WithArgs("student-1", 15).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "date", "captured_at", "method", "verified", "confidence", "created_at"}).
			AddRow("rec-2", "student-1", "2024-01-11", now, "face-match", true, 0.95, now).
			AddRow("rec-1", "student-1", "2024-01-10", now, "face-match", true, 0.91, now))

	records, err := repo.ListByStudent(context.Background(), "student-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-01-11", records[0].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteAll(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("DELETE FROM attendance_records").
		WillReturnResult(sqlmock.NewResult(0, 42))

	affected, err := repo.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
