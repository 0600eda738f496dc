// Package models contains domain models for ideahunter.
package models

import (
	"strings"
	"time"
)

// MarketType is the market category of an extracted problem.
type MarketType string

const (
	MarketB2B      MarketType = "B2B"
	MarketConsumer MarketType = "Consumer"
	MarketTech     MarketType = "Tech"
	MarketHybrid   MarketType = "Hybrid"
)

// MarketTypes lists the accepted market categories.
var MarketTypes = []MarketType{MarketB2B, MarketConsumer, MarketTech, MarketHybrid}

// ParseMarketType returns the matching market type, or MarketHybrid when s is
// not one of the known values.
func ParseMarketType(s string) MarketType {
	for _, mt := range MarketTypes {
		if string(mt) == s {
			return mt
		}
	}
	return MarketHybrid
}

// NoProblemSummary is the summary the extraction model returns for posts
// without an identifiable problem.
const NoProblemSummary = "No clear problem identified"

// StructuredProblem is the validated output of the extraction step.
type StructuredProblem struct {
	Summary           string     `json:"problem_summary"`
	TargetGroup       string     `json:"target_group"`
	MarketType        MarketType `json:"market_type"`
	BuyerType         string     `json:"buyer_type"`
	PainScore         int        `json:"pain_score"`
	MonetizationScore int        `json:"monetization_score"`
	ComplexityScore   int        `json:"complexity_score"`
}

// HasProblem reports whether the extraction found a real problem.
func (p *StructuredProblem) HasProblem() bool {
	return p != nil && p.Summary != NoProblemSummary
}

// EmbeddingText is the text embedded for clustering.
func (p *StructuredProblem) EmbeddingText() string {
	return trimJoin(p.Summary, p.TargetGroup)
}

// Problem is a stored problem with its derived scores.
type Problem struct {
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	ScoredAt          *time.Time `db:"scored_at" json:"scored_at,omitempty"`
	PostID            string     `db:"post_id" json:"post_id"`
	Summary           string     `db:"problem_summary" json:"problem_summary"`
	TargetGroup       string     `db:"target_group" json:"target_group"`
	MarketType        MarketType `db:"market_type" json:"market_type"`
	BuyerType         string     `db:"buyer_type" json:"buyer_type"`
	ID                int64      `db:"id" json:"id"`
	PainScore         int        `db:"pain_score" json:"pain_score"`
	MonetizationScore int        `db:"monetization_score" json:"monetization_score"`
	ComplexityScore   int        `db:"complexity_score" json:"complexity_score"`
	Scores
}

// EmbeddingText is the text embedded for clustering.
func (p *Problem) EmbeddingText() string {
	return trimJoin(p.Summary, p.TargetGroup)
}

// Scores holds the five bounded sub-scores and the final score.
type Scores struct {
	Engagement   float64 `db:"engagement_score" json:"engagement_score"`
	Pain         float64 `db:"pain_sub_score" json:"pain_sub_score"`
	Monetization float64 `db:"monetization_sub_score" json:"monetization_sub_score"`
	Frequency    float64 `db:"frequency_score" json:"frequency_score"`
	Momentum     float64 `db:"momentum_score" json:"momentum_score"`
	Final        float64 `db:"final_score" json:"final_score"`
}

func trimJoin(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}
