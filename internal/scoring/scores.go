// Package scoring computes the composite attractiveness score of a problem.
package scoring

import "math"

const (
	// MaxSubScore caps each of the five sub-scores.
	MaxSubScore = 20.0
	// MaxFinal caps the final score.
	MaxFinal = 100.0
)

// Engagement scores community reaction to the originating post.
func Engagement(upvotes, comments int) float64 {
	return capped(math.Log1p(nonNeg(upvotes))*2 + math.Log1p(nonNeg(comments))*1.5)
}

// Pain scores how acute the problem is, from the extracted 0-10 pain score.
func Pain(pain int) float64 {
	return capped(nonNeg(pain) * 2)
}

// Monetization scores willingness to pay, from the extracted 0-10 score.
func Monetization(monetization int) float64 {
	return capped(nonNeg(monetization) * 2)
}

// Frequency scores how many problems share the cluster.
func Frequency(clusterSize int) float64 {
	return capped(math.Log1p(nonNeg(clusterSize)) * 6)
}

// Momentum scores how many cluster members appeared in the recent window.
func Momentum(recentCount int) float64 {
	return capped(math.Log1p(nonNeg(recentCount)) * 8)
}

// Total sums sub-scores and clamps the result to [0, MaxFinal].
func Total(subScores ...float64) float64 {
	var sum float64
	for _, s := range subScores {
		sum += s
	}
	return math.Max(0, math.Min(MaxFinal, sum))
}

func nonNeg(n int) float64 {
	if n < 0 {
		return 0
	}
	return float64(n)
}

func capped(x float64) float64 {
	return math.Max(0, math.Min(MaxSubScore, x))
}
