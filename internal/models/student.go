package models

import "time"

// StudentStatus is the lifecycle state of a student row. Deleted students
// stay in the table so historic attendance keeps resolving, but they no
// longer participate in roll-number uniqueness or aggregates.
type StudentStatus string

const (
	StudentStatusActive  StudentStatus = "active"
	StudentStatusDeleted StudentStatus = "deleted"
)

// Student represents a learner registered with a face reference. Roll is the
// enrollment code, unique among active students and immutable once issued.
type Student struct {
	ID           string        `db:"id" json:"id"`
	Roll         string        `db:"roll" json:"roll"`
	FullName     string        `db:"full_name" json:"full_name"`
	PhotoPath    string        `db:"photo_path" json:"-"`
	PhotoURL     string        `db:"-" json:"photo_url,omitempty"`
	Status       StudentStatus `db:"status" json:"status"`
	RegisteredAt time.Time     `db:"registered_at" json:"registered_at"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    *StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
