package models

import "time"

// FaceDescriptor is the stored reference embedding for a student. The
// vector length is fixed by the embedding model (128 for the integrated
// recognizer) and checked on write.
type FaceDescriptor struct {
	StudentID  string    `db:"student_id" json:"student_id"`
	Descriptor []float32 `db:"-" json:"descriptor"`
	Dim        int       `db:"dim" json:"dim"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
