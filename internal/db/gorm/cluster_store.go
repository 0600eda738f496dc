package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/ideahunter/internal/vector"
	"github.com/thebtf/ideahunter/pkg/models"
	"github.com/thebtf/ideahunter/pkg/similarity"
)

// ClusterStore persists clusters and problem memberships.
// It implements vector.Store.
type ClusterStore struct {
	db       *gorm.DB
	postgres bool
}

// ClusterStats summarizes the cluster tables.
type ClusterStats struct {
	Clusters        int64 `json:"clusters"`
	ClusteredItems  int64 `json:"clustered_problems"`
	LargestCluster  int   `json:"largest_cluster"`
	SingletonsCount int64 `json:"singletons"`
}

var _ vector.Store = (*ClusterStore)(nil)

// NewClusterStore creates a new cluster store.
func NewClusterStore(store *Store) *ClusterStore {
	return &ClusterStore{
		db:       store.DB,
		postgres: store.DB.Dialector.Name() == DriverPostgres,
	}
}

// LoadCentroids returns every cluster ordered by ascending id.
func (s *ClusterStore) LoadCentroids(ctx context.Context) ([]vector.Centroid, error) {
	var rows []Cluster
	err := s.db.WithContext(ctx).
		Select("id", "centroid", "size").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	centroids := make([]vector.Centroid, 0, len(rows))
	for _, row := range rows {
		v, err := similarity.DecodeVector(row.Centroid)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", row.ID, err)
		}
		centroids = append(centroids, vector.Centroid{
			ClusterID: row.ID,
			Vector:    v,
			Size:      row.Size,
		})
	}
	return centroids, nil
}

// CreateCluster creates a cluster of size 1 whose first member is problemID.
func (s *ClusterStore) CreateCluster(ctx context.Context, problemID int64, centroid []float32) (int64, error) {
	var clusterID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnassigned(tx, problemID); err != nil {
			return err
		}

		now := time.Now()
		row := &Cluster{
			Centroid:       similarity.EncodeVector(centroid),
			Size:           1,
			CreatedAt:      now.UTC().Format(time.RFC3339),
			CreatedAtEpoch: now.UnixMilli(),
			UpdatedAt:      now.UTC().Format(time.RFC3339),
			UpdatedAtEpoch: now.UnixMilli(),
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		if err := insertMembership(tx, problemID, row.ID); err != nil {
			return err
		}
		clusterID = row.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return clusterID, nil
}

// AddMember re-reads the cluster inside a transaction, applies fold to its
// current centroid, increments its size and records the membership.
func (s *ClusterStore) AddMember(ctx context.Context, clusterID, problemID int64, fold vector.FoldFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnassigned(tx, problemID); err != nil {
			return err
		}

		q := tx
		if s.postgres {
			// SQLite holds the database write lock from BEGIN (_txlock=immediate).
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var row Cluster
		err := q.Where("id = ?", clusterID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", vector.ErrClusterNotFound, clusterID)
		}
		if err != nil {
			return err
		}

		current, err := similarity.DecodeVector(row.Centroid)
		if err != nil {
			return fmt.Errorf("cluster %d: %w", clusterID, err)
		}
		next, err := fold(current, row.Size)
		if err != nil {
			return err
		}

		now := time.Now()
		err = tx.Model(&Cluster{}).
			Where("id = ?", clusterID).
			Updates(map[string]any{
				"centroid":         similarity.EncodeVector(next),
				"size":             row.Size + 1,
				"updated_at":       now.UTC().Format(time.RFC3339),
				"updated_at_epoch": now.UnixMilli(),
			}).Error
		if err != nil {
			return err
		}
		return insertMembership(tx, problemID, clusterID)
	})
}

// GetCluster returns a cluster by id, or nil, nil when absent.
func (s *ClusterStore) GetCluster(ctx context.Context, id int64) (*models.Cluster, error) {
	var row Cluster
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	centroid, err := similarity.DecodeVector(row.Centroid)
	if err != nil {
		return nil, fmt.Errorf("cluster %d: %w", id, err)
	}
	return &models.Cluster{
		ID:        row.ID,
		Centroid:  centroid,
		Size:      row.Size,
		CreatedAt: epochToTime(row.CreatedAtEpoch),
		UpdatedAt: epochToTime(row.UpdatedAtEpoch),
	}, nil
}

// ClusterSize returns a cluster's stored size. ok is false when the cluster
// does not exist.
func (s *ClusterStore) ClusterSize(ctx context.Context, clusterID int64) (size int, ok bool, err error) {
	var sizes []int
	err = s.db.WithContext(ctx).
		Model(&Cluster{}).
		Where("id = ?", clusterID).
		Limit(1).
		Pluck("size", &sizes).Error
	if err != nil || len(sizes) == 0 {
		return 0, false, err
	}
	return sizes[0], true, nil
}

// ClusterForProblem returns the cluster a problem belongs to.
// ok is false when the problem is unclustered.
func (s *ClusterStore) ClusterForProblem(ctx context.Context, problemID int64) (clusterID int64, ok bool, err error) {
	var row ProblemCluster
	err = s.db.WithContext(ctx).Where("problem_id = ?", problemID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.ClusterID, true, nil
}

// CountMembers returns the number of problems assigned to a cluster.
func (s *ClusterStore) CountMembers(ctx context.Context, clusterID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ProblemCluster{}).
		Where("cluster_id = ?", clusterID).
		Count(&count).Error
	return count, err
}

// CountRecentMembers counts members of a cluster whose problem was created at
// or after since.
func (s *ClusterStore) CountRecentMembers(ctx context.Context, clusterID int64, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table("problem_clusters").
		Joins("JOIN problems ON problems.id = problem_clusters.problem_id").
		Where("problem_clusters.cluster_id = ? AND problems.created_at_epoch >= ?", clusterID, since.UnixMilli()).
		Count(&count).Error
	return count, err
}

// Stats returns aggregate cluster counts.
func (s *ClusterStore) Stats(ctx context.Context) (*ClusterStats, error) {
	stats := &ClusterStats{}
	db := s.db.WithContext(ctx)

	if err := db.Model(&Cluster{}).Count(&stats.Clusters).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&ProblemCluster{}).Count(&stats.ClusteredItems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Cluster{}).Where("size = 1").Count(&stats.SingletonsCount).Error; err != nil {
		return nil, err
	}
	if stats.Clusters > 0 {
		if err := db.Model(&Cluster{}).Select("MAX(size)").Scan(&stats.LargestCluster).Error; err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func ensureUnassigned(tx *gorm.DB, problemID int64) error {
	var count int64
	if err := tx.Model(&ProblemCluster{}).Where("problem_id = ?", problemID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: problem %d", vector.ErrAlreadyAssigned, problemID)
	}
	return nil
}

func insertMembership(tx *gorm.DB, problemID, clusterID int64) error {
	err := tx.Create(&ProblemCluster{ProblemID: problemID, ClusterID: clusterID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: problem %d", vector.ErrAlreadyAssigned, problemID)
	}
	return err
}
