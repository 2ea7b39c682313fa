package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

// AttendanceRepo is the primary attendance store.
type AttendanceRepo interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	FindByStudentAndDate(ctx context.Context, studentID, date string) (*models.AttendanceRecord, error)
	ExistsForDate(ctx context.Context, studentID, date string) (bool, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	ListAll(ctx context.Context) ([]models.AttendanceRecord, error)
	CountPresentForDate(ctx context.Context, date string) (int, error)
	CountDistinctDatesForStudent(ctx context.Context, studentID string) (int, error)
	CountDistinctDates(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// FallbackStore buffers attendance writes while the primary store is down
// and keeps a read snapshot for degraded reads.
type FallbackStore interface {
	SaveSnapshot(ctx context.Context, records []models.AttendanceRecord) error
	LoadSnapshot(ctx context.Context) ([]models.AttendanceRecord, error)
	EnqueuePending(ctx context.Context, record models.AttendanceRecord) error
	PendingRecords(ctx context.Context) ([]models.AttendanceRecord, error)
	ClearPending(ctx context.Context) error
	PendingCount(ctx context.Context) (int64, error)
}

// ActiveStudentCounter reports how many students are currently enrolled.
type ActiveStudentCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// LedgerService owns the append-only attendance ledger. Every calendar date
// is derived from the institution timezone at append time; client-supplied
// dates are never trusted. Appends are idempotent per (student, date).
type LedgerService struct {
	repo         AttendanceRepo
	fallback     FallbackStore
	students     ActiveStudentCounter
	location     *time.Location
	historyLimit int
	logger       *zap.Logger
	now          func() time.Time
}

// NewLedgerService creates the ledger. timezone must be an IANA name; an
// unknown name falls back to UTC with a warning rather than failing startup.
func NewLedgerService(repo AttendanceRepo, fallback FallbackStore, students ActiveStudentCounter, timezone string, historyLimit int, logger *zap.Logger) *LedgerService {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown attendance timezone, using UTC", zap.String("timezone", timezone), zap.Error(err))
		loc = time.UTC
	}
	if historyLimit <= 0 {
		historyLimit = 15
	}
	return &LedgerService{
		repo:         repo,
		fallback:     fallback,
		students:     students,
		location:     loc,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// DateKey returns today's calendar date in the institution timezone.
func (s *LedgerService) DateKey() string {
	return s.now().In(s.location).Format("2006-01-02")
}

// Append records attendance for the student today. A record that already
// exists for (student, today) makes the call a successful no-op with
// Duplicate set. When the primary store is unreachable the record is queued
// in the fallback store and Pending is set.
func (s *LedgerService) Append(ctx context.Context, studentID string, method models.VerificationMethod, verified bool, confidence *float64) (*models.MarkResult, error) {
	if !method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported verification method")
	}

	now := s.now()
	record := models.AttendanceRecord{
		StudentID:  studentID,
		Date:       now.In(s.location).Format("2006-01-02"),
		CapturedAt: now,
		Method:     method,
		Verified:   verified,
		Confidence: confidence,
	}

	stored, duplicate, err := s.repo.Insert(ctx, &record)
	if err == nil {
		if duplicate {
			s.logger.Info("attendance already marked today",
				zap.String("student_id", studentID), zap.String("date", record.Date))
		}
		return &models.MarkResult{Record: *stored, Duplicate: duplicate}, nil
	}

	// Primary store down. Queue the write for reconciliation unless the
	// same (student, date) pair is already waiting in the queue.
	s.logger.Warn("primary attendance store unreachable, queueing record",
		zap.String("student_id", studentID), zap.Error(err))

	pending, perr := s.fallback.PendingRecords(ctx)
	if perr == nil {
		for _, p := range pending {
			if p.Key() == record.Key() {
				return &models.MarkResult{Record: p, Duplicate: true, Pending: true}, nil
			}
		}
	}
	if qerr := s.fallback.EnqueuePending(ctx, record); qerr != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBackendUnreachable.Code,
			appErrors.ErrBackendUnreachable.Status, "attendance store and fallback store both unavailable")
	}
	return &models.MarkResult{Record: record, Pending: true}, nil
}

// HasRecordForToday reports whether the student is already marked present
// today, consulting the fallback queue when the primary store is down.
func (s *LedgerService) HasRecordForToday(ctx context.Context, studentID string) (bool, error) {
	date := s.DateKey()
	exists, err := s.repo.ExistsForDate(ctx, studentID, date)
	if err == nil {
		if exists {
			return true, nil
		}
		pendingHit, perr := s.pendingHas(ctx, studentID, date)
		if perr != nil {
			return false, nil
		}
		return pendingHit, nil
	}

	s.logger.Warn("attendance lookup fell back to pending queue", zap.Error(err))
	return s.pendingHas(ctx, studentID, date)
}

func (s *LedgerService) pendingHas(ctx context.Context, studentID, date string) (bool, error) {
	pending, err := s.fallback.PendingRecords(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range pending {
		if p.StudentID == studentID && p.Date == date {
			return true, nil
		}
	}
	return false, nil
}

// AggregateToday builds the dashboard counts for today. The counts always
// satisfy present+absent == total with absent >= 0.
func (s *LedgerService) AggregateToday(ctx context.Context) (*models.TodayAggregate, error) {
	date := s.DateKey()
	total, err := s.students.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active students: %w", err)
	}
	present, err := s.repo.CountPresentForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("count present students: %w", err)
	}
	if present > total {
		present = total
	}
	return &models.TodayAggregate{
		Date:    date,
		Total:   total,
		Present: present,
		Absent:  total - present,
	}, nil
}

// StudentHistory returns the student's most recent records, newest first,
// capped at the configured history limit. When the primary store is down the
// snapshot in the fallback store serves a possibly stale answer.
func (s *LedgerService) StudentHistory(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	records, err := s.repo.ListByStudent(ctx, studentID, s.historyLimit)
	if err == nil {
		return records, nil
	}

	s.logger.Warn("history read fell back to snapshot", zap.String("student_id", studentID), zap.Error(err))
	snapshot, serr := s.fallback.LoadSnapshot(ctx)
	if serr != nil {
		if appErrors.Is(serr, appErrors.ErrCacheMiss) {
			return nil, appErrors.Wrap(err, appErrors.ErrBackendUnreachable.Code,
				appErrors.ErrBackendUnreachable.Status, "attendance store unreachable and no snapshot available")
		}
		return nil, serr
	}
	var out []models.AttendanceRecord
	for _, r := range snapshot {
		if r.StudentID == studentID {
			out = append(out, r)
			if len(out) == s.historyLimit {
				break
			}
		}
	}
	return out, nil
}

// List returns filtered, paginated ledger records for the admin view.
func (s *LedgerService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list attendance: %w", err)
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Percentage computes the student's presence across all recorded sessions.
// Zero recorded sessions yields zero percent, and the result never exceeds
// one hundred.
func (s *LedgerService) Percentage(ctx context.Context, studentID string) (*models.AttendancePercentage, error) {
	presentDays, err := s.repo.CountDistinctDatesForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("count present days: %w", err)
	}
	totalSessions, err := s.repo.CountDistinctDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	out := &models.AttendancePercentage{
		StudentID:     studentID,
		PresentDays:   presentDays,
		TotalSessions: totalSessions,
	}
	if totalSessions > 0 {
		pct := int(float64(presentDays)/float64(totalSessions)*100 + 0.5)
		if pct > 100 {
			pct = 100
		}
		out.Percentage = pct
	}
	return out, nil
}

// BulkDelete wipes the entire ledger, including queued and snapshotted
// fallback state, and returns the number of primary rows removed.
func (s *LedgerService) BulkDelete(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete attendance records: %w", err)
	}
	if err := s.fallback.ClearPending(ctx); err != nil {
		s.logger.Warn("failed to clear pending fallback queue", zap.Error(err))
	}
	if err := s.fallback.SaveSnapshot(ctx, []models.AttendanceRecord{}); err != nil {
		s.logger.Warn("failed to reset fallback snapshot", zap.Error(err))
	}
	s.logger.Info("attendance ledger cleared", zap.Int64("deleted", deleted))
	return deleted, nil
}

// Reconcile drains the fallback queue into the primary store and refreshes
// the read snapshot. Records that meanwhile appeared in the primary store
// win; the queued copy is discarded. Reconcile is safe to run repeatedly.
func (s *LedgerService) Reconcile(ctx context.Context) error {
	pending, err := s.fallback.PendingRecords(ctx)
	if err != nil {
		return fmt.Errorf("load pending records: %w", err)
	}

	for _, record := range pending {
		rec := record
		if _, duplicate, err := s.repo.Insert(ctx, &rec); err != nil {
			return fmt.Errorf("replay pending record %s/%s: %w", record.StudentID, record.Date, err)
		} else if duplicate {
			s.logger.Debug("pending record superseded by primary store",
				zap.String("student_id", record.StudentID), zap.String("date", record.Date))
		}
	}
	if len(pending) > 0 {
		if err := s.fallback.ClearPending(ctx); err != nil {
			return fmt.Errorf("clear pending queue: %w", err)
		}
		s.logger.Info("reconciled pending attendance records", zap.Int("count", len(pending)))
	}

	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}
	if err := s.fallback.SaveSnapshot(ctx, records); err != nil {
		s.logger.Warn("failed to refresh fallback snapshot", zap.Error(err))
	}
	return nil
}

// PendingCount reports how many records await reconciliation.
func (s *LedgerService) PendingCount(ctx context.Context) int64 {
	n, err := s.fallback.PendingCount(ctx)
	if err != nil {
		return 0
	}
	return n
}

// FindRecord loads a single record by its idempotence key.
func (s *LedgerService) FindRecord(ctx context.Context, studentID, date string) (*models.AttendanceRecord, error) {
	rec, err := s.repo.FindByStudentAndDate(ctx, studentID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return rec, nil
}
