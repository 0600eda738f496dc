// Package models contains domain models for ideahunter.
package models

import "time"

// Cluster is a semantic group of problems.
// Centroid is always unit length once persisted.
type Cluster struct {
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	Centroid  []float32 `db:"centroid" json:"-"`
	ID        int64     `db:"id" json:"id"`
	Size      int       `db:"size" json:"size"`
}
