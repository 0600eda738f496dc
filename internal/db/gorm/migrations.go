// Package gorm provides GORM-based database operations for ideahunter.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (RawPost, Problem)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				if err := tx.AutoMigrate(&RawPost{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Problem{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("problems", "raw_posts")
			},
		},

		// Migration 002: Problem embeddings
		{
			ID: "002_embeddings",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Embedding{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("embeddings")
			},
		},

		// Migration 003: Clusters and membership
		{
			ID: "003_clusters",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Cluster{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&ProblemCluster{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("problem_clusters", "clusters")
			},
		},

		// Migration 004: Pipeline run history
		{
			ID: "004_pipeline_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&PipelineRun{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("pipeline_runs")
			},
		},

		// Migration 005: Leaderboard lookups join membership on cluster then
		// order by score.
		{
			ID: "005_leaderboard_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_problems_market_final
					ON problems(market_type, final_score DESC)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_problems_market_final").Error
			},
		},
	})

	return m.Migrate()
}
