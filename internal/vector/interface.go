// Package vector defines the storage contract for cluster centroids and
// problem-to-cluster membership.
package vector

import (
	"context"
	"errors"
)

// ErrAlreadyAssigned is returned when a problem already belongs to a cluster.
// Membership is permanent.
var ErrAlreadyAssigned = errors.New("problem already assigned to a cluster")

// ErrClusterNotFound is returned when a cluster id does not exist.
var ErrClusterNotFound = errors.New("cluster not found")

// Centroid is a cluster's current centroid and member count.
type Centroid struct {
	Vector    []float32
	ClusterID int64
	Size      int
}

// FoldFunc computes a cluster's new centroid from its current state.
// It runs while the cluster row is locked.
type FoldFunc func(current []float32, size int) ([]float32, error)

// Store reads and writes centroids and memberships.
// The gorm ClusterStore is the production implementation.
type Store interface {
	// LoadCentroids returns every cluster ordered by ascending id.
	LoadCentroids(ctx context.Context) ([]Centroid, error)

	// CreateCluster creates a cluster of size 1 with the given centroid and
	// records problemID as its first member, atomically.
	CreateCluster(ctx context.Context, problemID int64, centroid []float32) (int64, error)

	// AddMember re-reads the cluster under a lock, replaces its centroid with
	// fold's result, increments its size and records problemID as a member,
	// atomically.
	AddMember(ctx context.Context, clusterID, problemID int64, fold FoldFunc) error
}
