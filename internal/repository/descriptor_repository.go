package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/arvichandar/facemark-api/internal/models"
)

// DescriptorRepository stores reference face descriptors as pgvector
// columns, one row per student.
type DescriptorRepository struct {
	db *sqlx.DB
}

// NewDescriptorRepository constructs the repository.
func NewDescriptorRepository(db *sqlx.DB) *DescriptorRepository {
	return &DescriptorRepository{db: db}
}

// Upsert writes the reference descriptor for a student, replacing any
// previous registration.
func (r *DescriptorRepository) Upsert(ctx context.Context, studentID string, descriptor []float32) error {
	const query = `INSERT INTO face_descriptors (student_id, embedding, dim, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (student_id)
DO UPDATE SET embedding = EXCLUDED.embedding, dim = EXCLUDED.dim, updated_at = EXCLUDED.updated_at`
	vec := pgvector.NewVector(descriptor)
	if _, err := r.db.ExecContext(ctx, query, studentID, vec, len(descriptor), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert descriptor: %w", err)
	}
	return nil
}

// Get loads the stored reference descriptor for a student.
func (r *DescriptorRepository) Get(ctx context.Context, studentID string) (*models.FaceDescriptor, error) {
	const query = `SELECT student_id, embedding, dim, updated_at FROM face_descriptors WHERE student_id = $1 LIMIT 1`
	row := r.db.QueryRowxContext(ctx, query, studentID)

	var stored models.FaceDescriptor
	var vec pgvector.Vector
	if err := row.Scan(&stored.StudentID, &vec, &stored.Dim, &stored.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get descriptor: %w", err)
	}
	stored.Descriptor = vec.Slice()
	return &stored, nil
}

// Delete removes a student's reference descriptor.
func (r *DescriptorRepository) Delete(ctx context.Context, studentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM face_descriptors WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("delete descriptor: %w", err)
	}
	return nil
}
