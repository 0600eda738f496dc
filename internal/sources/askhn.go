package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/pkg/models"
)

// AskHNURL is the Algolia Hacker News search endpoint.
const AskHNURL = "https://hn.algolia.com/api/v1/search_by_date"

// askHNPageSize is the number of hits requested per page.
const askHNPageSize = 50

// AskHNConfig configures the Ask HN source.
type AskHNConfig struct {
	URL        string
	Limit      int
	MinUpvotes int
}

// AskHN fetches recent Ask HN posts from the Algolia search API.
type AskHN struct {
	client *http.Client
	now    func() time.Time
	cfg    AskHNConfig
}

// NewAskHN creates an Ask HN source. A nil client gets the default timeout.
func NewAskHN(client *http.Client, cfg AskHNConfig) *AskHN {
	if cfg.URL == "" {
		cfg.URL = AskHNURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultFetchLimit
	}
	if cfg.MinUpvotes < 0 {
		cfg.MinUpvotes = 0
	}
	return &AskHN{
		client: newHTTPClient(client),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Name implements Source.
func (a *AskHN) Name() string { return models.SourceAskHN }

type algoliaResponse struct {
	Hits    []algoliaHit `json:"hits"`
	NbPages int          `json:"nbPages"`
}

type algoliaHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	StoryText   string `json:"story_text"`
	CreatedAt   string `json:"created_at"`
	CreatedAtI  int64  `json:"created_at_i"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
}

// Fetch implements Source. Pages are requested until Limit hits have been
// seen or the API runs out. A failure after the first page returns what was
// collected so far.
func (a *AskHN) Fetch(ctx context.Context) ([]models.RawPost, error) {
	var posts []models.RawPost
	collected := 0

	for page := 0; collected < a.cfg.Limit; page++ {
		resp, err := a.fetchPage(ctx, page, min(askHNPageSize, a.cfg.Limit-collected))
		if err != nil {
			if page == 0 || ctx.Err() != nil {
				return nil, err
			}
			log.Error().Err(err).Int("page", page).Msg("AskHN fetch error")
			break
		}
		if len(resp.Hits) == 0 {
			break
		}

		fetchedAt := a.now()
		for _, hit := range resp.Hits {
			post, ok := parseHit(hit)
			if !ok || post.Upvotes < a.cfg.MinUpvotes {
				continue
			}
			posts = append(posts, normalize(post, fetchedAt))
		}
		collected += len(resp.Hits)

		if resp.NbPages > 0 && page+1 >= resp.NbPages {
			break
		}
	}

	log.Info().Int("posts", len(posts)).Msg("AskHN: fetched posts")
	return posts, nil
}

func (a *AskHN) fetchPage(ctx context.Context, page, hitsPerPage int) (*algoliaResponse, error) {
	q := url.Values{
		"tags":        {"ask_hn"},
		"hitsPerPage": {strconv.Itoa(hitsPerPage)},
		"page":        {strconv.Itoa(page)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page %d returned status %d", page, resp.StatusCode)
	}

	var out algoliaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding page %d: %w", page, err)
	}
	return &out, nil
}

func parseHit(hit algoliaHit) (models.RawPost, bool) {
	if hit.ObjectID == "" || hit.Title == "" {
		return models.RawPost{}, false
	}

	var created time.Time
	switch {
	case hit.CreatedAtI > 0:
		created = time.Unix(hit.CreatedAtI, 0).UTC()
	case hit.CreatedAt != "":
		if t, err := time.Parse(time.RFC3339, hit.CreatedAt); err == nil {
			created = t.UTC()
		}
	}

	return models.RawPost{
		ID:        models.ExternalID(models.SourceAskHN, hit.ObjectID),
		Source:    models.SourceAskHN,
		Title:     hit.Title,
		Body:      hit.StoryText,
		Upvotes:   hit.Points,
		Comments:  hit.NumComments,
		CreatedAt: created,
	}, true
}
