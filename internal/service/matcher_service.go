package service

import (
	"math"

	"go.uber.org/zap"

	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

// MatchOutcome is the result of comparing a live capture descriptor against a
// stored reference descriptor.
type MatchOutcome struct {
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	IsMatch    bool    `json:"is_match"`
}

// MatcherService compares face descriptors. The comparison is pure and
// deterministic: identical inputs always produce identical outcomes.
type MatcherService struct {
	threshold float64
	dim       int
	logger    *zap.Logger
}

// NewMatcherService creates a matcher. threshold is the exclusive euclidean
// distance bound below which two descriptors count as the same person.
func NewMatcherService(threshold float64, dim int, logger *zap.Logger) *MatcherService {
	return &MatcherService{threshold: threshold, dim: dim, logger: logger}
}

// Compare computes euclidean distance between a live descriptor and a stored
// reference and applies the match threshold. Confidence is 1-distance rounded
// to three decimals, floored at zero.
func (s *MatcherService) Compare(live, reference []float32) (*MatchOutcome, error) {
	if len(live) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoFaceDetected, "no descriptor extracted from the capture")
	}
	if len(reference) == 0 {
		return nil, appErrors.ErrNoReferenceData
	}
	if len(live) != len(reference) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "descriptor dimensions do not match")
	}
	if s.dim > 0 && len(live) != s.dim {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unexpected descriptor dimension")
	}

	var sum float64
	for i := range live {
		d := float64(live[i]) - float64(reference[i])
		sum += d * d
	}
	distance := math.Sqrt(sum)

	outcome := &MatchOutcome{
		Distance:   distance,
		Confidence: roundConfidence(1 - distance),
		IsMatch:    distance < s.threshold,
	}

	s.logger.Debug("face comparison",
		zap.Float64("distance", distance),
		zap.Float64("threshold", s.threshold),
		zap.Bool("is_match", outcome.IsMatch))

	return outcome, nil
}

// Threshold returns the configured match threshold.
func (s *MatcherService) Threshold() float64 {
	return s.threshold
}

func roundConfidence(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return math.Round(v*1000) / 1000
}
