package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/models"
	"github.com/arvichandar/facemark-api/pkg/export"
)

type exportLedger interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error)
}

type exportStudents interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
}

// ExportService renders attendance sheets as CSV or PDF downloads.
type ExportService struct {
	ledger   exportLedger
	students exportStudents
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
	now      func() time.Time
}

func NewExportService(ledger exportLedger, students exportStudents, logger *zap.Logger) *ExportService {
	return &ExportService{
		ledger:   ledger,
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		now:      time.Now,
	}
}

// exportPageSize bounds one export; a school-sized ledger fits comfortably.
const exportPageSize = 50000

// AttendanceCSV renders the filtered ledger as CSV and returns content and
// a suggested filename.
func (s *ExportService) AttendanceCSV(ctx context.Context, filter models.AttendanceFilter) ([]byte, string, error) {
	data, err := s.dataset(ctx, filter)
	if err != nil {
		return nil, "", err
	}
	content, err := s.csv.Render(data)
	if err != nil {
		return nil, "", fmt.Errorf("render attendance csv: %w", err)
	}
	return content, s.filename("csv"), nil
}

// AttendancePDF renders the filtered ledger as a PDF sheet.
func (s *ExportService) AttendancePDF(ctx context.Context, filter models.AttendanceFilter) ([]byte, string, error) {
	data, err := s.dataset(ctx, filter)
	if err != nil {
		return nil, "", err
	}
	content, err := s.pdf.Render(data, "Attendance Report")
	if err != nil {
		return nil, "", fmt.Errorf("render attendance pdf: %w", err)
	}
	return content, s.filename("pdf"), nil
}

func (s *ExportService) dataset(ctx context.Context, filter models.AttendanceFilter) (export.Dataset, error) {
	filter.Page = 1
	filter.PageSize = exportPageSize

	records, _, err := s.ledger.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, err
	}

	names := s.studentNames(ctx)

	data := export.Dataset{
		Headers: []string{"Date", "Roll", "Student", "Method", "Verified", "Confidence", "Captured At"},
		Rows:    make([]map[string]string, 0, len(records)),
	}
	for _, rec := range records {
		confidence := ""
		if rec.Confidence != nil {
			confidence = strconv.FormatFloat(*rec.Confidence, 'f', 3, 64)
		}
		info := names[rec.StudentID]
		data.Rows = append(data.Rows, map[string]string{
			"Date":        rec.Date,
			"Roll":        info.roll,
			"Student":     info.name,
			"Method":      string(rec.Method),
			"Verified":    strconv.FormatBool(rec.Verified),
			"Confidence":  confidence,
			"Captured At": rec.CapturedAt.Format(time.RFC3339),
		})
	}
	return data, nil
}

type studentLabel struct {
	roll string
	name string
}

// studentNames builds a lookup for the export; a failed lookup degrades to
// blank name columns rather than failing the export.
func (s *ExportService) studentNames(ctx context.Context) map[string]studentLabel {
	names := make(map[string]studentLabel)
	students, _, err := s.students.List(ctx, models.StudentFilter{Page: 1, PageSize: exportPageSize})
	if err != nil {
		s.logger.Warn("export proceeding without student names", zap.Error(err))
		return names
	}
	for _, st := range students {
		names[st.ID] = studentLabel{roll: st.Roll, name: st.FullName}
	}
	return names
}

func (s *ExportService) filename(ext string) string {
	return fmt.Sprintf("attendance-%s.%s", s.now().Format("20060102-150405"), ext)
}
