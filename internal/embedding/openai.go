package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = openai.EmbeddingModelTextEmbedding3Small

// OpenAIBackend embeds text with the OpenAI embeddings API, asking for
// vectors truncated to the configured dimension.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	dim    int64
}

// NewOpenAIBackend creates an OpenAI embedding backend.
func NewOpenAIBackend(apiKey, model string, dim int, opts ...option.RequestOption) *OpenAIBackend {
	if model == "" {
		model = string(DefaultOpenAIModel)
	}
	if dim <= 0 {
		dim = DefaultDimension
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIBackend{client: &client, model: model, dim: int64(dim)}
}

// Model returns the configured model name.
func (b *OpenAIBackend) Model() string {
	return b.model
}

// EmbedBatch implements Backend.
func (b *OpenAIBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(b.model),
		Dimensions:     openai.Int(b.dim),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		out[d.Index] = v
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embeddings: missing vector %d", i)
		}
	}
	return out, nil
}
