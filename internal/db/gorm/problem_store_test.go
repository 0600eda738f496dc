package gorm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/thebtf/ideahunter/pkg/models"
)

func testProblem() *models.StructuredProblem {
	return &models.StructuredProblem{
		Summary:           "Freelancers lose time chasing unpaid invoices",
		TargetGroup:       "freelancers",
		MarketType:        models.MarketB2B,
		BuyerType:         "individual",
		PainScore:         7,
		MonetizationScore: 6,
		ComplexityScore:   3,
	}
}

func TestProblemStore_StoreAndGet(t *testing.T) {
	problems := NewProblemStore(testStore(t))
	ctx := context.Background()

	id, err := problems.StoreProblem(ctx, "reddit_abc", testProblem())
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := problems.GetProblem(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "reddit_abc", got.PostID)
	assert.Equal(t, "Freelancers lose time chasing unpaid invoices", got.Summary)
	assert.Equal(t, models.MarketB2B, got.MarketType)
	assert.Equal(t, 7, got.PainScore)
	assert.Equal(t, 6, got.MonetizationScore)
	assert.Equal(t, 3, got.ComplexityScore)
	assert.Nil(t, got.ScoredAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestProblemStore_UnknownMarketTypeStoredAsHybrid(t *testing.T) {
	problems := NewProblemStore(testStore(t))
	ctx := context.Background()

	p := testProblem()
	p.MarketType = "Enterprise"
	id, err := problems.StoreProblem(ctx, "reddit_abc", p)
	require.NoError(t, err)

	got, err := problems.GetProblem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MarketHybrid, got.MarketType)
}

func TestProblemStore_GetMissing(t *testing.T) {
	problems := NewProblemStore(testStore(t))

	got, err := problems.GetProblem(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProblemStore_UpdateScores(t *testing.T) {
	problems := NewProblemStore(testStore(t))
	ctx := context.Background()

	id, err := problems.StoreProblem(ctx, "reddit_abc", testProblem())
	require.NoError(t, err)

	scores := models.Scores{Engagement: 10.5, Pain: 14, Monetization: 12, Frequency: 4.2, Momentum: 5.5, Final: 46.2}
	scoredAt := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	ok, err := problems.UpdateScores(ctx, id, scores, scoredAt)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := problems.GetProblem(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, got.Engagement, 1e-9)
	assert.InDelta(t, 14, got.Pain, 1e-9)
	assert.InDelta(t, 12, got.Monetization, 1e-9)
	assert.InDelta(t, 4.2, got.Frequency, 1e-9)
	assert.InDelta(t, 5.5, got.Momentum, 1e-9)
	assert.InDelta(t, 46.2, got.Final, 1e-9)
	require.NotNil(t, got.ScoredAt)
	assert.True(t, got.ScoredAt.Equal(scoredAt))

	ok, err = problems.UpdateScores(ctx, id+100, scores, scoredAt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProblemStore_TopProblems(t *testing.T) {
	problems := NewProblemStore(testStore(t))
	ctx := context.Background()

	finals := []float64{12, 80, 45}
	for _, f := range finals {
		id, err := problems.StoreProblem(ctx, "reddit_abc", testProblem())
		require.NoError(t, err)
		_, err = problems.UpdateScores(ctx, id, models.Scores{Final: f}, time.Now())
		require.NoError(t, err)
	}

	top, err := problems.TopProblems(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.InDelta(t, 80, top[0].Final, 1e-9)
	assert.InDelta(t, 45, top[1].Final, 1e-9)
}

func TestProblemStore_Embeddings(t *testing.T) {
	problems := NewProblemStore(testStore(t))
	ctx := context.Background()

	id, err := problems.StoreProblem(ctx, "reddit_abc", testProblem())
	require.NoError(t, err)

	vec := []float32{0.6, 0.8, 0}
	require.NoError(t, problems.StoreEmbedding(ctx, id, vec, "test-model"))

	got, err := problems.GetEmbedding(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	// Embeddings are immutable.
	err = problems.StoreEmbedding(ctx, id, []float32{1, 0, 0}, "test-model")
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	missing, err := problems.GetEmbedding(ctx, id+1)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
