package models

import "time"

// VerificationMethod tags how an attendance record was verified.
type VerificationMethod string

const (
	VerificationFaceMatch  VerificationMethod = "face-match"
	VerificationManualTest VerificationMethod = "manual-test"
	VerificationOther      VerificationMethod = "other"
)

// Valid returns true when the method is a supported value.
func (m VerificationMethod) Valid() bool {
	switch m {
	case VerificationFaceMatch, VerificationManualTest, VerificationOther:
		return true
	default:
		return false
	}
}

// AttendanceRecord is a single per-student per-day attendance row. Date is a
// calendar date in the institution timezone ("2006-01-02"); CapturedAt is
// the full capture instant. At most one record exists per (StudentID, Date),
// enforced by a unique constraint rather than caller discipline. Records are
// never mutated after creation.
type AttendanceRecord struct {
	ID         string             `db:"id" json:"id"`
	StudentID  string             `db:"student_id" json:"student_id"`
	Date       string             `db:"date" json:"date"`
	CapturedAt time.Time          `db:"captured_at" json:"captured_at"`
	Method     VerificationMethod `db:"method" json:"method"`
	Verified   bool               `db:"verified" json:"verified"`
	Confidence *float64           `db:"confidence" json:"confidence,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
}

// Key identifies the idempotence pair for the record.
func (r AttendanceRecord) Key() AttendanceKey {
	return AttendanceKey{StudentID: r.StudentID, Date: r.Date}
}

// AttendanceKey is the (student, calendar date) pair the ledger dedupes on.
type AttendanceKey struct {
	StudentID string
	Date      string
}

// AttendanceFilter scopes ledger listing queries.
type AttendanceFilter struct {
	StudentID string
	DateFrom  string
	DateTo    string
	Page      int
	PageSize  int
}

// TodayAggregate is the dashboard view for a single calendar date.
type TodayAggregate struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
}

// AttendancePercentage reports per-student presence across all sessions.
type AttendancePercentage struct {
	StudentID     string `json:"student_id"`
	PresentDays   int    `json:"present_days"`
	TotalSessions int    `json:"total_sessions"`
	Percentage    int    `json:"percentage"`
}

// MarkResult is returned by the mark-attendance flow. Duplicate reports
// that the record already existed and the call was a no-op. Pending reports
// that the primary store was unreachable and the record was queued in the
// fallback store for later reconciliation.
type MarkResult struct {
	Record    AttendanceRecord `json:"record"`
	Duplicate bool             `json:"duplicate"`
	Pending   bool             `json:"pending,omitempty"`
	Distance  *float64         `json:"distance,omitempty"`
}
