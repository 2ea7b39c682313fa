package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/faceclient"
	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

// DescriptorRepo persists reference face descriptors.
type DescriptorRepo interface {
	Upsert(ctx context.Context, studentID string, descriptor []float32) error
	Get(ctx context.Context, studentID string) (*models.FaceDescriptor, error)
	Delete(ctx context.Context, studentID string) error
}

// FaceExtractor turns an image into a face descriptor.
type FaceExtractor interface {
	Embed(ctx context.Context, imageBase64 string) (*faceclient.EmbedResult, error)
}

// DescriptorService owns the reference face data lifecycle: extraction from
// enrollment photos, storage, retrieval for matching, and removal.
type DescriptorService struct {
	repo      DescriptorRepo
	extractor FaceExtractor
	dim       int
	logger    *zap.Logger
}

func NewDescriptorService(repo DescriptorRepo, extractor FaceExtractor, dim int, logger *zap.Logger) *DescriptorService {
	return &DescriptorService{repo: repo, extractor: extractor, dim: dim, logger: logger}
}

// Extract runs face detection and embedding on a base64 image. Exactly one
// face must be present.
func (s *DescriptorService) Extract(ctx context.Context, imageBase64 string) ([]float32, error) {
	res, err := s.extractor.Embed(ctx, imageBase64)
	if err != nil {
		return nil, err
	}
	if s.dim > 0 && len(res.Descriptor) != s.dim {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("descriptor has %d dimensions, expected %d", len(res.Descriptor), s.dim))
	}
	return res.Descriptor, nil
}

// SaveReference stores (or replaces) the student's reference descriptor.
func (s *DescriptorService) SaveReference(ctx context.Context, studentID string, descriptor []float32) error {
	if s.dim > 0 && len(descriptor) != s.dim {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("descriptor has %d dimensions, expected %d", len(descriptor), s.dim))
	}
	if err := s.repo.Upsert(ctx, studentID, descriptor); err != nil {
		return fmt.Errorf("save reference descriptor: %w", err)
	}
	s.logger.Info("reference descriptor stored", zap.String("student_id", studentID))
	return nil
}

// GetReference loads the student's stored descriptor. A student with no
// stored descriptor yields ErrNoReferenceData.
func (s *DescriptorService) GetReference(ctx context.Context, studentID string) (*models.FaceDescriptor, error) {
	desc, err := s.repo.Get(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoReferenceData
		}
		return nil, fmt.Errorf("load reference descriptor: %w", err)
	}
	return desc, nil
}

// DeleteReference removes the student's stored descriptor. Missing data is
// not an error; deletion is idempotent.
func (s *DescriptorService) DeleteReference(ctx context.Context, studentID string) error {
	if err := s.repo.Delete(ctx, studentID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete reference descriptor: %w", err)
	}
	return nil
}
