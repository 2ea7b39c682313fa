package models

import "time"

// FeatureFlag is the singleton "student self-service authentication" switch.
// Exactly one logical row exists; UpdatedBy records the admin who last
// flipped it.
type FeatureFlag struct {
	Enabled   bool      `db:"enabled" json:"enabled"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}
