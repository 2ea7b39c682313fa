package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/dto"
	"github.com/arvichandar/facemark-api/internal/faceclient"
	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

// flagReader is the gate's view of the feature flag. Security-sensitive
// checks use Refresh to bypass the TTL cache.
type flagReader interface {
	Refresh(ctx context.Context) *models.FeatureFlag
}

// attendanceLedger is the gate's view of the ledger.
type attendanceLedger interface {
	DateKey() string
	HasRecordForToday(ctx context.Context, studentID string) (bool, error)
	FindRecord(ctx context.Context, studentID, date string) (*models.AttendanceRecord, error)
	Append(ctx context.Context, studentID string, method models.VerificationMethod, verified bool, confidence *float64) (*models.MarkResult, error)
}

// referenceReader supplies descriptors for the match step.
type referenceReader interface {
	Extract(ctx context.Context, imageBase64 string) ([]float32, error)
	GetReference(ctx context.Context, studentID string) (*models.FaceDescriptor, error)
}

// remoteVerifier is the recognizer-side 1:1 verification, used when no
// local reference descriptor exists.
type remoteVerifier interface {
	Verify(ctx context.Context, studentID, imageBase64 string) (*faceclient.VerifyResult, error)
}

// descriptorMatcher compares two descriptors.
type descriptorMatcher interface {
	Compare(live, reference []float32) (*MatchOutcome, error)
}

// GateService guards every student-facing attendance operation. It enforces
// the self-auth feature flag with a forced refresh, restricts students to
// their own records, short-circuits duplicates before the face pipeline
// runs, and walks the verification fallback chain.
type GateService struct {
	flags      flagReader
	ledger     attendanceLedger
	references referenceReader
	matcher    descriptorMatcher
	verifier   remoteVerifier
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

func NewGateService(flags flagReader, ledger attendanceLedger, references referenceReader, matcher descriptorMatcher, verifier remoteVerifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GateService{
		flags:      flags,
		ledger:     ledger,
		references: references,
		matcher:    matcher,
		verifier:   verifier,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Authorize decides whether the actor may operate on targetStudentID.
// Admins always may. Students may act only on themselves and only while the
// self-auth flag is enabled; the flag is re-read from the store here so a
// just-flipped switch takes effect immediately.
func (s *GateService) Authorize(ctx context.Context, claims *models.JWTClaims, targetStudentID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleAdmin {
		return nil
	}
	if claims.Role != models.RoleStudent {
		return appErrors.ErrForbidden
	}
	if !s.flags.Refresh(ctx).Enabled {
		return appErrors.ErrStudentAuthOff
	}
	if claims.StudentID == nil || *claims.StudentID != targetStudentID {
		return appErrors.Clone(appErrors.ErrForbidden, "students may only access their own records")
	}
	return nil
}

// MarkAttendance runs the full verified marking flow for one student. A
// record already present for today returns as a duplicate no-op before any
// face work happens. Verification prefers a local descriptor comparison
// against the stored reference; when no reference is stored, the
// recognizer's own 1:1 verification is the fallback.
func (s *GateService) MarkAttendance(ctx context.Context, claims *models.JWTClaims, req dto.MarkAttendanceRequest) (*models.MarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}
	if err := s.Authorize(ctx, claims, req.StudentID); err != nil {
		return nil, err
	}

	already, err := s.ledger.HasRecordForToday(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if already {
		result := &models.MarkResult{Duplicate: true}
		if rec, ferr := s.ledger.FindRecord(ctx, req.StudentID, s.ledger.DateKey()); ferr == nil {
			result.Record = *rec
		} else {
			result.Record = models.AttendanceRecord{StudentID: req.StudentID, Date: s.ledger.DateKey()}
			result.Pending = true
		}
		s.logger.Info("duplicate mark attempt short-circuited", zap.String("student_id", req.StudentID))
		return result, nil
	}

	verifyStart := time.Now()
	outcome, err := s.verify(ctx, req)
	if err != nil {
		s.metrics.ObserveVerification(verificationOutcome(err), -1, time.Since(verifyStart))
		return nil, err
	}
	if !outcome.IsMatch {
		s.metrics.ObserveVerification("mismatch", outcome.Distance, time.Since(verifyStart))
		s.logger.Info("face mismatch",
			zap.String("student_id", req.StudentID),
			zap.Float64("distance", outcome.Distance))
		return nil, appErrors.ErrFaceMismatch
	}
	s.metrics.ObserveVerification("match", outcome.Distance, time.Since(verifyStart))

	confidence := outcome.Confidence
	result, err := s.ledger.Append(ctx, req.StudentID, models.VerificationFaceMatch, true, &confidence)
	if err != nil {
		return nil, err
	}
	result.Distance = &outcome.Distance
	return result, nil
}

// MarkManual records attendance without face verification. Admin only.
func (s *GateService) MarkManual(ctx context.Context, claims *models.JWTClaims, studentID string) (*models.MarkResult, error) {
	if claims == nil || claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "manual marking requires admin role")
	}
	return s.ledger.Append(ctx, studentID, models.VerificationManualTest, false, nil)
}

// verify walks the fallback chain and returns a match outcome. Steps, in
// order: client-supplied descriptor, remotely extracted descriptor, and
// finally the recognizer's own 1:1 verification when no local reference
// exists.
func (s *GateService) verify(ctx context.Context, req dto.MarkAttendanceRequest) (*MatchOutcome, error) {
	live := req.Descriptor
	var extractErr error
	if len(live) == 0 {
		live, extractErr = s.references.Extract(ctx, req.ImageBase64)
		if extractErr != nil && !appErrors.Is(extractErr, appErrors.ErrBackendUnreachable) {
			return nil, extractErr
		}
	}

	reference, refErr := s.references.GetReference(ctx, req.StudentID)
	if refErr == nil && len(live) > 0 {
		return s.matcher.Compare(live, reference.Descriptor)
	}

	// No usable local pair. The recognizer keeps its own gallery, so its
	// verification endpoint is the last resort.
	res, err := s.verifier.Verify(ctx, req.StudentID, req.ImageBase64)
	if err != nil {
		if refErr != nil && appErrors.Is(refErr, appErrors.ErrNoReferenceData) {
			return nil, refErr
		}
		if extractErr != nil {
			return nil, extractErr
		}
		return nil, err
	}
	distance := 1 - res.Confidence
	return &MatchOutcome{
		Distance:   distance,
		Confidence: roundConfidence(res.Confidence),
		IsMatch:    res.Success,
	}, nil
}

// verificationOutcome maps a verify error to a metrics label.
func verificationOutcome(err error) string {
	switch {
	case appErrors.Is(err, appErrors.ErrNoFaceDetected):
		return "no_face"
	case appErrors.Is(err, appErrors.ErrNoReferenceData):
		return "no_reference"
	default:
		return "error"
	}
}
