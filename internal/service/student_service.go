package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arvichandar/facemark-api/internal/dto"
	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

// StudentRepo is the primary student store.
type StudentRepo interface {
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindActiveByRoll(ctx context.Context, roll string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Delete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
}

// studentUserRepo manages the login accounts tied to students.
type studentUserRepo interface {
	Create(ctx context.Context, user *models.User) error
	DeactivateByStudent(ctx context.Context, studentID string, ts time.Time) error
}

// ReferenceStore covers the face reference lifecycle used by registration.
type ReferenceStore interface {
	Extract(ctx context.Context, imageBase64 string) ([]float32, error)
	SaveReference(ctx context.Context, studentID string, descriptor []float32) error
	DeleteReference(ctx context.Context, studentID string) error
}

// FaceEnroller manages gallery entries in the recognition service.
type FaceEnroller interface {
	RegisterFace(ctx context.Context, studentID, imageBase64 string) error
	DeleteStudentData(ctx context.Context, studentID string) error
}

// PhotoStore persists reference photos.
type PhotoStore interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
}

// PhotoSigner issues short-lived signed tokens for photo downloads.
type PhotoSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
}

// StudentService owns the student lifecycle. Registration is all-or-nothing:
// when any step after the database insert fails, earlier steps are rolled
// back so no student exists without a usable face reference.
type StudentService struct {
	repo       StudentRepo
	users      studentUserRepo
	references ReferenceStore
	enroller   FaceEnroller
	photos     PhotoStore
	signer     PhotoSigner
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

func NewStudentService(repo StudentRepo, users studentUserRepo, references ReferenceStore, enroller FaceEnroller, photos PhotoStore, signer PhotoSigner, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:       repo,
		users:      users,
		references: references,
		enroller:   enroller,
		photos:     photos,
		signer:     signer,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates a student, stores their reference photo and descriptor,
// enrolls them with the recognizer, and creates their login account.
func (s *StudentService) Register(ctx context.Context, req dto.RegisterStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if existing, err := s.repo.FindActiveByRoll(ctx, req.Roll); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("roll %s is already registered", req.Roll))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check roll uniqueness: %w", err)
	}

	photoBytes, err := decodeImage(req.PhotoBase64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo is not valid base64 image data")
	}

	// Extract the descriptor before touching any store so a bad photo
	// fails the whole registration upfront.
	descriptor, err := s.references.Extract(ctx, req.PhotoBase64)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	student := &models.Student{
		ID:           uuid.NewString(),
		Roll:         req.Roll,
		FullName:     req.FullName,
		Status:       models.StudentStatusActive,
		RegisteredAt: now,
	}

	photoPath := fmt.Sprintf("students/%s.jpg", student.ID)
	if _, err := s.photos.Save(photoPath, photoBytes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUploadFailed.Code, appErrors.ErrUploadFailed.Status, "failed to store reference photo")
	}
	student.PhotoPath = photoPath

	if err := s.repo.Create(ctx, student); err != nil {
		s.removePhoto(photoPath)
		return nil, fmt.Errorf("create student: %w", err)
	}

	if err := s.references.SaveReference(ctx, student.ID, descriptor); err != nil {
		s.rollbackRegistration(ctx, student)
		return nil, err
	}

	if err := s.enroller.RegisterFace(ctx, student.ID, req.PhotoBase64); err != nil {
		s.rollbackRegistration(ctx, student)
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.rollbackRegistration(ctx, student)
		return nil, fmt.Errorf("hash password: %w", err)
	}
	account := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleStudent,
		StudentID:    &student.ID,
		Active:       true,
	}
	if err := s.users.Create(ctx, account); err != nil {
		s.rollbackRegistration(ctx, student)
		return nil, fmt.Errorf("create student account: %w", err)
	}

	s.logger.Info("student registered",
		zap.String("student_id", student.ID), zap.String("roll", student.Roll))

	s.attachPhotoURL(student)
	return student, nil
}

// Get loads one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	s.attachPhotoURL(student)
	return student, nil
}

// List returns filtered, paginated students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list students: %w", err)
	}
	for i := range students {
		s.attachPhotoURL(&students[i])
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete removes a student and all dependent data: attendance rows, the
// stored descriptor, the recognizer gallery entry, the photo, and the login
// account. The recognizer and photo cleanup are best effort; the database
// cascade is not.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return fmt.Errorf("find student: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return fmt.Errorf("delete student: %w", err)
	}

	if err := s.enroller.DeleteStudentData(ctx, id); err != nil {
		s.logger.Warn("failed to remove recognizer gallery entry",
			zap.String("student_id", id), zap.Error(err))
	}
	if student.PhotoPath != "" {
		s.removePhoto(student.PhotoPath)
	}
	if err := s.users.DeactivateByStudent(ctx, id, s.now().UTC()); err != nil {
		s.logger.Warn("failed to deactivate student account",
			zap.String("student_id", id), zap.Error(err))
	}

	s.logger.Info("student deleted", zap.String("student_id", id), zap.String("roll", student.Roll))
	return nil
}

// rollbackRegistration undoes a partially completed registration.
func (s *StudentService) rollbackRegistration(ctx context.Context, student *models.Student) {
	s.logger.Warn("rolling back partial registration", zap.String("student_id", student.ID))
	if err := s.references.DeleteReference(ctx, student.ID); err != nil {
		s.logger.Warn("rollback: failed to delete reference", zap.Error(err))
	}
	if err := s.enroller.DeleteStudentData(ctx, student.ID); err != nil {
		s.logger.Warn("rollback: failed to delete recognizer entry", zap.Error(err))
	}
	if err := s.repo.HardDelete(ctx, student.ID); err != nil {
		s.logger.Error("rollback: failed to remove student row", zap.Error(err))
	}
	s.removePhoto(student.PhotoPath)
}

func (s *StudentService) removePhoto(path string) {
	if path == "" {
		return
	}
	if err := s.photos.Delete(path); err != nil {
		s.logger.Warn("failed to remove photo", zap.String("path", path), zap.Error(err))
	}
}

func (s *StudentService) attachPhotoURL(student *models.Student) {
	if student.PhotoPath == "" || s.signer == nil {
		return
	}
	token, _, err := s.signer.Generate(student.ID, student.PhotoPath)
	if err != nil {
		s.logger.Warn("failed to sign photo url", zap.String("student_id", student.ID), zap.Error(err))
		return
	}
	student.PhotoURL = "/api/v1/photos/" + token
}

// decodeImage accepts a raw base64 payload or a data URL and returns the
// image bytes.
func decodeImage(payload string) ([]byte, error) {
	if idx := strings.Index(payload, ","); idx != -1 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	return data, nil
}
