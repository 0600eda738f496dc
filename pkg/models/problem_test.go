package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseMarketType(t *testing.T) {
	tests := []struct {
		input    string
		expected MarketType
	}{
		{"B2B", MarketB2B},
		{"Consumer", MarketConsumer},
		{"Tech", MarketTech},
		{"Hybrid", MarketHybrid},
		{"b2b", MarketHybrid},
		{"Enterprise", MarketHybrid},
		{"", MarketHybrid},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseMarketType(tt.input))
		})
	}
}

func TestStructuredProblem_HasProblem(t *testing.T) {
	var nilProblem *StructuredProblem
	assert.False(t, nilProblem.HasProblem())
	assert.False(t, (&StructuredProblem{Summary: NoProblemSummary}).HasProblem())
	assert.True(t, (&StructuredProblem{Summary: "Invoicing is slow"}).HasProblem())
}

func TestEmbeddingText(t *testing.T) {
	p := &StructuredProblem{Summary: "Invoicing is slow", TargetGroup: "freelancers"}
	assert.Equal(t, "Invoicing is slow freelancers", p.EmbeddingText())

	p.TargetGroup = ""
	assert.Equal(t, "Invoicing is slow", p.EmbeddingText())

	stored := &Problem{Summary: " ", TargetGroup: "agencies "}
	assert.Equal(t, "agencies", stored.EmbeddingText())
}

func TestPipelineRun_Elapsed(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &PipelineRun{StartedAt: start}
	assert.Zero(t, run.Elapsed())

	end := start.Add(90 * time.Second)
	run.FinishedAt = &end
	assert.Equal(t, 90*time.Second, run.Elapsed())
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "reddit_abc", ExternalID(SourceReddit, "abc"))
	assert.Equal(t, "askhn_42", ExternalID(SourceAskHN, "42"))
}
