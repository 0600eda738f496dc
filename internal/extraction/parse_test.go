package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/ideahunter/pkg/models"
)

const validJSON = `{
  "problem_summary": "Freelancers lose time chasing unpaid invoices",
  "target_group": "freelancers",
  "market_type": "B2B",
  "buyer_type": "individual professionals",
  "pain_score": 7,
  "monetization_score": 6,
  "complexity_score": 3
}`

func TestParseProblem_Valid(t *testing.T) {
	p, err := ParseProblem(validJSON)
	require.NoError(t, err)
	assert.Equal(t, "Freelancers lose time chasing unpaid invoices", p.Summary)
	assert.Equal(t, "freelancers", p.TargetGroup)
	assert.Equal(t, models.MarketB2B, p.MarketType)
	assert.Equal(t, "individual professionals", p.BuyerType)
	assert.Equal(t, 7, p.PainScore)
	assert.Equal(t, 6, p.MonetizationScore)
	assert.Equal(t, 3, p.ComplexityScore)
	assert.True(t, p.HasProblem())
}

func TestParseProblem_Normalization(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		market models.MarketType
		pain   int
		money  int
		cplx   int
	}{
		{
			name:   "scores clamped high and low",
			input:  `{"problem_summary":"s","target_group":"t","market_type":"Tech","buyer_type":"b","pain_score":14,"monetization_score":-2,"complexity_score":10}`,
			market: models.MarketTech,
			pain:   10, money: 0, cplx: 10,
		},
		{
			name:   "fractional scores truncated",
			input:  `{"problem_summary":"s","target_group":"t","market_type":"Consumer","buyer_type":"b","pain_score":7.9,"monetization_score":0.4,"complexity_score":3.5}`,
			market: models.MarketConsumer,
			pain:   7, money: 0, cplx: 3,
		},
		{
			name:   "unknown market type coerced to Hybrid",
			input:  `{"problem_summary":"s","target_group":"t","market_type":"Enterprise SaaS","buyer_type":"b","pain_score":1,"monetization_score":2,"complexity_score":3}`,
			market: models.MarketHybrid,
			pain:   1, money: 2, cplx: 3,
		},
		{
			name:   "market type is case sensitive",
			input:  `{"problem_summary":"s","target_group":"t","market_type":"b2b","buyer_type":"b","pain_score":1,"monetization_score":2,"complexity_score":3}`,
			market: models.MarketHybrid,
			pain:   1, money: 2, cplx: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProblem(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.market, p.MarketType)
			assert.Equal(t, tt.pain, p.PainScore)
			assert.Equal(t, tt.money, p.MonetizationScore)
			assert.Equal(t, tt.cplx, p.ComplexityScore)
		})
	}
}

func TestParseProblem_Wrapped(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"json fence", "```json\n" + validJSON + "\n```"},
		{"plain fence", "```\n" + validJSON + "\n```"},
		{"surrounding prose", "Here is the analysis:\n" + validJSON + "\nHope this helps."},
		{"whitespace", "\n\n   " + validJSON + "   \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProblem(tt.input)
			require.NoError(t, err)
			assert.Equal(t, 7, p.PainScore)
		})
	}
}

func TestParseProblem_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "I could not find a problem."},
		{"array", `[1, 2, 3]`},
		{"null", `null`},
		{"missing field", `{"problem_summary":"s","target_group":"t","market_type":"B2B","buyer_type":"b","pain_score":1,"monetization_score":2}`},
		{"score as string", `{"problem_summary":"s","target_group":"t","market_type":"B2B","buyer_type":"b","pain_score":"7","monetization_score":2,"complexity_score":3}`},
		{"summary as number", `{"problem_summary":5,"target_group":"t","market_type":"B2B","buyer_type":"b","pain_score":1,"monetization_score":2,"complexity_score":3}`},
		{"buyer null", `{"problem_summary":"s","target_group":"t","market_type":"B2B","buyer_type":null,"pain_score":1,"monetization_score":2,"complexity_score":3}`},
		{"truncated", `{"problem_summary":"s","target_group":"t"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProblem(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseProblem_NoProblemSentinel(t *testing.T) {
	p, err := ParseProblem(`{"problem_summary":"No clear problem identified","target_group":"","market_type":"Hybrid","buyer_type":"","pain_score":0,"monetization_score":0,"complexity_score":0}`)
	require.NoError(t, err)
	assert.False(t, p.HasProblem())
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain JSON unchanged",
			input: `{"problem_summary":"test"}`,
			want:  `{"problem_summary":"test"}`,
		},
		{
			name:  "strips json fenced block",
			input: "```json\n{\"problem_summary\":\"test\"}\n```",
			want:  `{"problem_summary":"test"}`,
		},
		{
			name:  "strips plain fenced block",
			input: "```\n{\"problem_summary\":\"test\"}\n```",
			want:  `{"problem_summary":"test"}`,
		},
		{
			name:  "trims surrounding whitespace",
			input: "  {\"problem_summary\":\"test\"}  ",
			want:  `{"problem_summary":"test"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanJSONResponse(tt.input)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
