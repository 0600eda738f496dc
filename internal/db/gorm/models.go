// Package gorm provides GORM-based database operations for ideahunter.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/ideahunter/pkg/models"
)

// GORM Models

// RawPost is a fetched post, keyed by its platform-prefixed external id.
type RawPost struct {
	ID             string         `gorm:"primaryKey;type:text"`
	Source         string         `gorm:"type:text;index:idx_raw_posts_source;not null"`
	Subreddit      sql.NullString `gorm:"type:text"`
	Title          string         `gorm:"type:text;not null"`
	Body           sql.NullString `gorm:"type:text"`
	Upvotes        int            `gorm:"default:0"`
	Comments       int            `gorm:"default:0"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_raw_posts_created,sort:desc;not null"`
	FetchedAt      string         `gorm:"not null"`
	FetchedAtEpoch int64          `gorm:"not null"`
}

func (RawPost) TableName() string { return "raw_posts" }

// BeforeCreate hook to ensure timestamps are set.
func (p *RawPost) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if p.FetchedAtEpoch == 0 {
		p.FetchedAtEpoch = now.UnixMilli()
	}
	if p.FetchedAt == "" {
		p.FetchedAt = now.Format(time.RFC3339)
	}
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = p.FetchedAtEpoch
	}
	if p.CreatedAt == "" {
		p.CreatedAt = p.FetchedAt
	}
	return nil
}

// Problem is an extracted business problem and its derived scores.
type Problem struct {
	ID                int64             `gorm:"primaryKey;autoIncrement"`
	PostID            string            `gorm:"type:text;index:idx_problems_post_id;not null"`
	Summary           string            `gorm:"column:problem_summary;type:text;not null"`
	TargetGroup       sql.NullString    `gorm:"type:text"`
	MarketType        models.MarketType `gorm:"type:text;check:market_type IN ('B2B', 'Consumer', 'Tech', 'Hybrid');index"`
	BuyerType         sql.NullString    `gorm:"type:text"`
	PainScore         int               `gorm:"default:0"`
	MonetizationScore int               `gorm:"default:0"`
	ComplexityScore   int               `gorm:"default:0"`

	// Derived scores, written by the scoring engine
	EngagementScore      float64       `gorm:"type:real;default:0"`
	PainSubScore         float64       `gorm:"type:real;default:0"`
	MonetizationSubScore float64       `gorm:"type:real;default:0"`
	FrequencyScore       float64       `gorm:"type:real;default:0"`
	MomentumScore        float64       `gorm:"type:real;default:0"`
	FinalScore           float64       `gorm:"type:real;default:0;index:idx_problems_final_score,sort:desc"`
	ScoredAtEpoch        sql.NullInt64 `gorm:"column:scored_at_epoch"`

	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_problems_created;not null"`
}

func (Problem) TableName() string { return "problems" }

// BeforeCreate hook to ensure timestamps are set.
func (p *Problem) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.UnixMilli(p.CreatedAtEpoch).UTC().Format(time.RFC3339)
	}
	return nil
}

// Embedding stores a problem's vector as little-endian float32 bytes.
type Embedding struct {
	ProblemID      int64  `gorm:"primaryKey;autoIncrement:false"`
	Vector         []byte `gorm:"not null"`
	Dim            int    `gorm:"not null"`
	Model          string `gorm:"type:text"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (Embedding) TableName() string { return "embeddings" }

// BeforeCreate hook to ensure timestamps are set.
func (e *Embedding) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAtEpoch == 0 {
		e.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// Cluster is a semantic group; Centroid is a unit vector in little-endian
// float32 bytes.
type Cluster struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Centroid       []byte `gorm:"not null"`
	Size           int    `gorm:"default:1;not null"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
	UpdatedAt      string `gorm:"not null"`
	UpdatedAtEpoch int64  `gorm:"index:idx_clusters_updated,sort:desc;not null"`
}

func (Cluster) TableName() string { return "clusters" }

// BeforeCreate hook to ensure timestamps are set.
func (c *Cluster) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = now.UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now.Format(time.RFC3339)
	}
	if c.UpdatedAtEpoch == 0 {
		c.UpdatedAtEpoch = c.CreatedAtEpoch
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Size == 0 {
		c.Size = 1
	}
	return nil
}

// ProblemCluster links a problem to the one cluster it was assigned to.
type ProblemCluster struct {
	ProblemID int64 `gorm:"primaryKey;autoIncrement:false"`
	ClusterID int64 `gorm:"index:idx_problem_clusters_cluster;not null"`
}

func (ProblemCluster) TableName() string { return "problem_clusters" }

// PipelineRun records the outcome of one pipeline run.
type PipelineRun struct {
	ID              string           `gorm:"primaryKey;type:text"`
	Status          models.RunStatus `gorm:"type:text;check:status IN ('running', 'completed', 'aborted');default:'running';index"`
	Fetched         int              `gorm:"default:0"`
	New             int              `gorm:"column:new_posts;default:0"`
	Processed       int              `gorm:"default:0"`
	NoProblem       int              `gorm:"default:0"`
	ExtractFailed   int              `gorm:"default:0"`
	Errors          int              `gorm:"default:0"`
	Error           sql.NullString   `gorm:"type:text"`
	StartedAt       string           `gorm:"not null"`
	StartedAtEpoch  int64            `gorm:"index:idx_runs_started,sort:desc;not null"`
	FinishedAt      sql.NullString
	FinishedAtEpoch sql.NullInt64
}

func (PipelineRun) TableName() string { return "pipeline_runs" }

// BeforeCreate hook to ensure timestamps are set.
func (r *PipelineRun) BeforeCreate(tx *gorm.DB) error {
	if r.StartedAtEpoch == 0 {
		r.StartedAtEpoch = time.Now().UnixMilli()
	}
	if r.StartedAt == "" {
		r.StartedAt = time.UnixMilli(r.StartedAtEpoch).UTC().Format(time.RFC3339)
	}
	return nil
}
