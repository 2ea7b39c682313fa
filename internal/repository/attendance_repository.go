package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arvichandar/facemark-api/internal/models"
)

// AttendanceRepository persists attendance records. The at-most-one-per-day
// invariant lives here as a unique constraint on (student_id, date); the
// service layer treats a conflicting insert as a successful no-op.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert writes a record unless one already exists for the same student and
// date. It returns the stored record and whether the insert was suppressed
// by the uniqueness constraint.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, student_id, date, captured_at, method, verified, confidence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, date) DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.QueryRowxContext(ctx, query, record.ID, record.StudentID, record.Date, record.CapturedAt, record.Method, record.Verified, record.Confidence, record.CreatedAt).Scan(&insertedID)
	if err == nil {
		return record, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("insert attendance record: %w", err)
	}

	existing, err := r.FindByStudentAndDate(ctx, record.StudentID, record.Date)
	if err != nil {
		return nil, false, fmt.Errorf("load existing attendance record: %w", err)
	}
	return existing, true, nil
}

// FindByStudentAndDate loads the record for a (student, date) pair.
func (r *AttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID, date string) (*models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, date, captured_at, method, verified, confidence, created_at
FROM attendance_records WHERE student_id = $1 AND date = $2 LIMIT 1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// ExistsForDate reports whether a record exists for the pair.
func (r *AttendanceRepository) ExistsForDate(ctx context.Context, studentID, date string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE student_id = $1 AND date = $2)`
	if err := r.db.GetContext(ctx, &exists, query, studentID, date); err != nil {
		return false, fmt.Errorf("check attendance record: %w", err)
	}
	return exists, nil
}

// ListByStudent returns a student's records, most recent first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 15
	}
	const query = `SELECT id, student_id, date, captured_at, method, verified, confidence, created_at
FROM attendance_records WHERE student_id = $1 ORDER BY date DESC, captured_at DESC LIMIT $2`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list attendance by student: %w", err)
	}
	return records, nil
}

// List returns records matching the filter with a total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := `FROM attendance_records WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, filter.DateTo)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, date, captured_at, method, verified, confidence, created_at %s ORDER BY date DESC, captured_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return records, total, nil
}

// ListAll returns every record. Used by reconciliation and exports.
func (r *AttendanceRepository) ListAll(ctx context.Context) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, date, captured_at, method, verified, confidence, created_at
FROM attendance_records ORDER BY date DESC, captured_at DESC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list all attendance records: %w", err)
	}
	return records, nil
}

// CountPresentForDate counts distinct students with a record on a date.
func (r *AttendanceRepository) CountPresentForDate(ctx context.Context, date string) (int, error) {
	var present int
	const query = `SELECT COUNT(DISTINCT student_id) FROM attendance_records WHERE date = $1`
	if err := r.db.GetContext(ctx, &present, query, date); err != nil {
		return 0, fmt.Errorf("count present for date: %w", err)
	}
	return present, nil
}

// CountDistinctDatesForStudent counts calendar dates the student attended.
func (r *AttendanceRepository) CountDistinctDatesForStudent(ctx context.Context, studentID string) (int, error) {
	var days int
	const query = `SELECT COUNT(DISTINCT date) FROM attendance_records WHERE student_id = $1`
	if err := r.db.GetContext(ctx, &days, query, studentID); err != nil {
		return 0, fmt.Errorf("count present days: %w", err)
	}
	return days, nil
}

// CountDistinctDates counts calendar dates with any record system-wide.
func (r *AttendanceRepository) CountDistinctDates(ctx context.Context) (int, error) {
	var sessions int
	const query = `SELECT COUNT(DISTINCT date) FROM attendance_records`
	if err := r.db.GetContext(ctx, &sessions, query); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, nil
}

// DeleteAll clears the ledger. Admin bulk-clear only.
func (r *AttendanceRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records`)
	if err != nil {
		return 0, fmt.Errorf("bulk clear attendance: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
