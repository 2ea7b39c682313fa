package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/dto"
	"github.com/arvichandar/facemark-api/internal/faceclient"
	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

type fakeFlagReader struct {
	enabled  bool
	refreshN int
}

func (f *fakeFlagReader) Refresh(_ context.Context) *models.FeatureFlag {
	f.refreshN++
	return &models.FeatureFlag{Enabled: f.enabled}
}

type fakeGateLedger struct {
	existing map[string]models.AttendanceRecord
	appended []models.AttendanceRecord
}

func newFakeGateLedger() *fakeGateLedger {
	return &fakeGateLedger{existing: make(map[string]models.AttendanceRecord)}
}

func (f *fakeGateLedger) DateKey() string { return "2026-03-10" }

func (f *fakeGateLedger) HasRecordForToday(_ context.Context, studentID string) (bool, error) {
	_, ok := f.existing[studentID]
	return ok, nil
}

func (f *fakeGateLedger) FindRecord(_ context.Context, studentID, _ string) (*models.AttendanceRecord, error) {
	if rec, ok := f.existing[studentID]; ok {
		return &rec, nil
	}
	return nil, appErrors.ErrNotFound
}

func (f *fakeGateLedger) Append(_ context.Context, studentID string, method models.VerificationMethod, verified bool, confidence *float64) (*models.MarkResult, error) {
	rec := models.AttendanceRecord{
		ID: "rec-" + studentID, StudentID: studentID, Date: f.DateKey(),
		Method: method, Verified: verified, Confidence: confidence,
	}
	f.existing[studentID] = rec
	f.appended = append(f.appended, rec)
	return &models.MarkResult{Record: rec}, nil
}

type fakeGateReferences struct {
	descriptors map[string][]float32
	extracted   []float32
	extractErr  error
}

func (f *fakeGateReferences) Extract(_ context.Context, _ string) ([]float32, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.extracted, nil
}

func (f *fakeGateReferences) GetReference(_ context.Context, studentID string) (*models.FaceDescriptor, error) {
	if d, ok := f.descriptors[studentID]; ok {
		return &models.FaceDescriptor{StudentID: studentID, Descriptor: d, Dim: len(d)}, nil
	}
	return nil, appErrors.ErrNoReferenceData
}

type fakeVerifier struct {
	result *faceclient.VerifyResult
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, _, _ string) (*faceclient.VerifyResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type gateFixture struct {
	svc      *GateService
	flags    *fakeFlagReader
	ledger   *fakeGateLedger
	refs     *fakeGateReferences
	verifier *fakeVerifier
}

func newGateFixture() *gateFixture {
	f := &gateFixture{
		flags:    &fakeFlagReader{enabled: true},
		ledger:   newFakeGateLedger(),
		refs:     &fakeGateReferences{descriptors: map[string][]float32{}},
		verifier: &fakeVerifier{result: &faceclient.VerifyResult{Success: true, Confidence: 0.9}},
	}
	matcher := NewMatcherService(0.3, 0, zap.NewNop())
	f.svc = NewGateService(f.flags, f.ledger, f.refs, matcher, f.verifier, NewMetricsService(), nil, zap.NewNop())
	return f
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin}
}

func studentClaims(studentID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "usr-" + studentID, Role: models.RoleStudent, StudentID: &studentID}
}

func TestGateAuthorizeAdminAlways(t *testing.T) {
	f := newGateFixture()
	f.flags.enabled = false

	assert.NoError(t, f.svc.Authorize(context.Background(), adminClaims(), "stu-1"))
	assert.Zero(t, f.flags.refreshN)
}

func TestGateAuthorizeStudentSelfOnly(t *testing.T) {
	f := newGateFixture()

	assert.NoError(t, f.svc.Authorize(context.Background(), studentClaims("stu-1"), "stu-1"))

	err := f.svc.Authorize(context.Background(), studentClaims("stu-1"), "stu-2")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestGateAuthorizeStudentFlagDisabled(t *testing.T) {
	f := newGateFixture()
	f.flags.enabled = false

	err := f.svc.Authorize(context.Background(), studentClaims("stu-1"), "stu-1")

	assert.True(t, appErrors.Is(err, appErrors.ErrStudentAuthOff))
	// The flag must be re-read, never trusted from cache.
	assert.Equal(t, 1, f.flags.refreshN)
}

func TestGateAuthorizeNoClaims(t *testing.T) {
	f := newGateFixture()

	err := f.svc.Authorize(context.Background(), nil, "stu-1")

	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestGateMarkAttendanceLocalMatch(t *testing.T) {
	f := newGateFixture()
	f.refs.descriptors["stu-1"] = []float32{0.1, 0.2, 0.3}

	res, err := f.svc.MarkAttendance(context.Background(), studentClaims("stu-1"), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
		Descriptor:  []float32{0.1, 0.2, 0.32},
	})

	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.VerificationFaceMatch, res.Record.Method)
	assert.True(t, res.Record.Verified)
	require.NotNil(t, res.Record.Confidence)
	assert.InDelta(t, 0.98, *res.Record.Confidence, 0.001)
	// Local comparison succeeded, so the remote verifier must stay idle.
	assert.Zero(t, f.verifier.calls)
}

func TestGateMarkAttendanceMismatch(t *testing.T) {
	f := newGateFixture()
	f.refs.descriptors["stu-1"] = []float32{0.9, 0.9, 0.9}

	_, err := f.svc.MarkAttendance(context.Background(), studentClaims("stu-1"), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
		Descriptor:  []float32{0.1, 0.1, 0.1},
	})

	assert.True(t, appErrors.Is(err, appErrors.ErrFaceMismatch))
	assert.Empty(t, f.ledger.appended)
}

func TestGateMarkAttendanceDuplicateSkipsFacePipeline(t *testing.T) {
	f := newGateFixture()
	f.ledger.existing["stu-1"] = models.AttendanceRecord{ID: "rec-old", StudentID: "stu-1", Date: "2026-03-10"}

	res, err := f.svc.MarkAttendance(context.Background(), studentClaims("stu-1"), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
		Descriptor:  []float32{0.1, 0.2, 0.3},
	})

	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "rec-old", res.Record.ID)
	assert.Zero(t, f.verifier.calls)
	assert.Empty(t, f.ledger.appended)
}

func TestGateMarkAttendanceExtractsWhenNoClientDescriptor(t *testing.T) {
	f := newGateFixture()
	f.refs.descriptors["stu-1"] = []float32{0.1, 0.2, 0.3}
	f.refs.extracted = []float32{0.1, 0.2, 0.3}

	res, err := f.svc.MarkAttendance(context.Background(), adminClaims(), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
	})

	require.NoError(t, err)
	require.NotNil(t, res.Record.Confidence)
	assert.Equal(t, 1.0, *res.Record.Confidence)
}

func TestGateMarkAttendanceFallsBackToRemoteVerify(t *testing.T) {
	f := newGateFixture()
	// No locally stored reference; the recognizer's gallery still has one.
	f.refs.extracted = []float32{0.1, 0.2, 0.3}

	res, err := f.svc.MarkAttendance(context.Background(), adminClaims(), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.verifier.calls)
	require.NotNil(t, res.Record.Confidence)
	assert.InDelta(t, 0.9, *res.Record.Confidence, 0.001)
}

func TestGateMarkAttendanceNoReferenceAnywhere(t *testing.T) {
	f := newGateFixture()
	f.refs.extracted = []float32{0.1, 0.2, 0.3}
	f.verifier.err = appErrors.ErrBackendUnreachable

	_, err := f.svc.MarkAttendance(context.Background(), adminClaims(), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
	})

	assert.True(t, appErrors.Is(err, appErrors.ErrNoReferenceData))
}

func TestGateMarkAttendanceNoFaceDetected(t *testing.T) {
	f := newGateFixture()
	f.refs.descriptors["stu-1"] = []float32{0.1, 0.2, 0.3}
	f.refs.extractErr = appErrors.ErrNoFaceDetected

	_, err := f.svc.MarkAttendance(context.Background(), adminClaims(), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
	})

	assert.True(t, appErrors.Is(err, appErrors.ErrNoFaceDetected))
	assert.Empty(t, f.ledger.appended)
}

func TestGateMarkAttendanceRecordsVerificationMetrics(t *testing.T) {
	f := newGateFixture()
	f.refs.descriptors["stu-1"] = []float32{0.1, 0.2, 0.3}

	_, err := f.svc.MarkAttendance(context.Background(), studentClaims("stu-1"), dto.MarkAttendanceRequest{
		StudentID:   "stu-1",
		ImageBase64: "img",
		Descriptor:  []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.svc.metrics.verifications.WithLabelValues("match")))

	f.refs.descriptors["stu-2"] = []float32{0.9, 0.9, 0.9}
	_, err = f.svc.MarkAttendance(context.Background(), studentClaims("stu-2"), dto.MarkAttendanceRequest{
		StudentID:   "stu-2",
		ImageBase64: "img",
		Descriptor:  []float32{0.1, 0.1, 0.1},
	})
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.svc.metrics.verifications.WithLabelValues("mismatch")))

	f.refs.extractErr = appErrors.ErrNoFaceDetected
	_, err = f.svc.MarkAttendance(context.Background(), adminClaims(), dto.MarkAttendanceRequest{
		StudentID:   "stu-3",
		ImageBase64: "img",
	})
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.svc.metrics.verifications.WithLabelValues("no_face")))
}

func TestGateMarkManualAdminOnly(t *testing.T) {
	f := newGateFixture()

	res, err := f.svc.MarkManual(context.Background(), adminClaims(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationManualTest, res.Record.Method)
	assert.False(t, res.Record.Verified)

	_, err = f.svc.MarkManual(context.Background(), studentClaims("stu-1"), "stu-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
