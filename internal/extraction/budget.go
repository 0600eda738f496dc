package extraction

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// DefaultTokenBudget is the maximum number of body tokens sent to the model.
const DefaultTokenBudget = 750

// charsPerToken approximates token length when no codec is available.
const charsPerToken = 4

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("Tokenizer unavailable, truncating by characters")
			return
		}
		codec = c
	})
	return codec
}

// TruncateTokens returns text cut to at most budget tokens.
// A non-positive budget leaves text unchanged.
func TruncateTokens(text string, budget int) string {
	if budget <= 0 || text == "" {
		return text
	}

	c := getCodec()
	if c == nil {
		return truncateRunes(text, budget*charsPerToken)
	}

	ids, _, err := c.Encode(text)
	if err != nil {
		return truncateRunes(text, budget*charsPerToken)
	}
	if len(ids) <= budget {
		return text
	}

	out, err := c.Decode(ids[:budget])
	if err != nil {
		return truncateRunes(text, budget*charsPerToken)
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
