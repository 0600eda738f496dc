// Package extraction turns community posts into structured business problems
// using a language model.
package extraction

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"

	"github.com/thebtf/ideahunter/pkg/models"
)

// ErrMalformed is returned when model output is not a valid problem object.
var ErrMalformed = errors.New("malformed extraction output")

const (
	fieldSummary      = "problem_summary"
	fieldTargetGroup  = "target_group"
	fieldMarketType   = "market_type"
	fieldBuyerType    = "buyer_type"
	fieldPain         = "pain_score"
	fieldMonetization = "monetization_score"
	fieldComplexity   = "complexity_score"
)

var (
	stringFields = []string{fieldSummary, fieldTargetGroup, fieldMarketType, fieldBuyerType}
	scoreFields  = []string{fieldPain, fieldMonetization, fieldComplexity}
)

// ParseProblem validates raw model output and converts it into a
// StructuredProblem. Code fences and surrounding prose are stripped. All seven
// fields are required with the right JSON types; scores are truncated to
// integers and clamped to [0, 10]; an unknown market type becomes Hybrid.
func ParseProblem(raw string) (*models.StructuredProblem, error) {
	content := cleanJSONResponse(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	strs := make(map[string]string, len(stringFields))
	for _, field := range stringFields {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, field)
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T, want string", ErrMalformed, field, v)
		}
		strs[field] = s
	}

	scores := make(map[string]int, len(scoreFields))
	for _, field := range scoreFields {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, field)
		}
		n, ok := v.(float64)
		if !ok || math.IsNaN(n) {
			return nil, fmt.Errorf("%w: %s is %T, want number", ErrMalformed, field, v)
		}
		scores[field] = clampScore(n)
	}

	return &models.StructuredProblem{
		Summary:           strs[fieldSummary],
		TargetGroup:       strs[fieldTargetGroup],
		MarketType:        models.ParseMarketType(strs[fieldMarketType]),
		BuyerType:         strs[fieldBuyerType],
		PainScore:         scores[fieldPain],
		MonetizationScore: scores[fieldMonetization],
		ComplexityScore:   scores[fieldComplexity],
	}, nil
}

func clampScore(n float64) int {
	return int(math.Max(0, math.Min(10, math.Trunc(n))))
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Some model responses include extra prose around JSON.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
