package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/ideahunter/pkg/models"
	"github.com/thebtf/ideahunter/pkg/similarity"
)

// ProblemStore provides problem and embedding operations.
type ProblemStore struct {
	db *gorm.DB
}

// NewProblemStore creates a new problem store.
func NewProblemStore(store *Store) *ProblemStore {
	return &ProblemStore{db: store.DB}
}

// StoreProblem persists an extracted problem for a post and returns its id.
func (s *ProblemStore) StoreProblem(ctx context.Context, postID string, p *models.StructuredProblem) (int64, error) {
	now := time.Now()
	row := &Problem{
		PostID:            postID,
		Summary:           p.Summary,
		TargetGroup:       nullString(p.TargetGroup),
		MarketType:        models.ParseMarketType(string(p.MarketType)),
		BuyerType:         nullString(p.BuyerType),
		PainScore:         p.PainScore,
		MonetizationScore: p.MonetizationScore,
		ComplexityScore:   p.ComplexityScore,
		CreatedAt:         now.UTC().Format(time.RFC3339),
		CreatedAtEpoch:    now.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// GetProblem retrieves a problem by id. It returns nil, nil when absent.
func (s *ProblemStore) GetProblem(ctx context.Context, id int64) (*models.Problem, error) {
	var row Problem
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelProblem(&row), nil
}

// TopProblems returns the highest scoring problems.
func (s *ProblemStore) TopProblems(ctx context.Context, limit int) ([]*models.Problem, error) {
	var rows []Problem
	err := s.db.WithContext(ctx).
		Order("final_score DESC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Problem, len(rows))
	for i := range rows {
		out[i] = toModelProblem(&rows[i])
	}
	return out, nil
}

// UpdateScores writes every derived score of a problem in one statement.
// It reports whether the problem exists.
func (s *ProblemStore) UpdateScores(ctx context.Context, id int64, scores models.Scores, scoredAt time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&Problem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"engagement_score":       scores.Engagement,
			"pain_sub_score":         scores.Pain,
			"monetization_sub_score": scores.Monetization,
			"frequency_score":        scores.Frequency,
			"momentum_score":         scores.Momentum,
			"final_score":            scores.Final,
			"scored_at_epoch":        scoredAt.UnixMilli(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountProblems returns the number of stored problems.
func (s *ProblemStore) CountProblems(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Problem{}).Count(&count).Error
	return count, err
}

// StoreEmbedding persists a problem's embedding. Embeddings are immutable, so
// a second call for the same problem fails with gorm.ErrDuplicatedKey.
func (s *ProblemStore) StoreEmbedding(ctx context.Context, problemID int64, vec []float32, model string) error {
	row := &Embedding{
		ProblemID: problemID,
		Vector:    similarity.EncodeVector(vec),
		Dim:       len(vec),
		Model:     model,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// GetEmbedding returns a problem's embedding, or nil, nil when absent.
func (s *ProblemStore) GetEmbedding(ctx context.Context, problemID int64) ([]float32, error) {
	var row Embedding
	err := s.db.WithContext(ctx).Where("problem_id = ?", problemID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return similarity.DecodeVector(row.Vector)
}

func toModelProblem(r *Problem) *models.Problem {
	return &models.Problem{
		ID:                r.ID,
		PostID:            r.PostID,
		Summary:           r.Summary,
		TargetGroup:       r.TargetGroup.String,
		MarketType:        r.MarketType,
		BuyerType:         r.BuyerType.String,
		PainScore:         r.PainScore,
		MonetizationScore: r.MonetizationScore,
		ComplexityScore:   r.ComplexityScore,
		Scores: models.Scores{
			Engagement:   r.EngagementScore,
			Pain:         r.PainSubScore,
			Monetization: r.MonetizationSubScore,
			Frequency:    r.FrequencyScore,
			Momentum:     r.MomentumScore,
			Final:        r.FinalScore,
		},
		CreatedAt: epochToTime(r.CreatedAtEpoch),
		ScoredAt:  nullEpochToTime(r.ScoredAtEpoch),
	}
}
