package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/pkg/models"
)

// Reddit endpoints.
const (
	RedditPublicURL = "https://www.reddit.com"
	RedditOAuthURL  = "https://oauth.reddit.com"
	RedditTokenURL  = "https://www.reddit.com/api/v1/access_token"
)

// DefaultSubreddits are polled when none are configured.
var DefaultSubreddits = []string{"SaaS", "startups", "Entrepreneur", "smallbusiness", "indiehackers"}

// RedditConfig configures the Reddit source.
type RedditConfig struct {
	ClientID   string
	Secret     string
	UserAgent  string
	Subreddits []string
	Limit      int
	MinUpvotes int

	// Endpoint overrides, for tests.
	PublicURL string
	OAuthURL  string
	TokenURL  string
}

// Reddit fetches the newest posts of a set of subreddits. With client
// credentials it uses app-only OAuth; otherwise the public JSON listings.
type Reddit struct {
	client *http.Client
	now    func() time.Time
	token  string
	expiry time.Time
	cfg    RedditConfig
	mu     sync.Mutex
}

// NewReddit creates a Reddit source. A nil client gets the default timeout.
func NewReddit(client *http.Client, cfg RedditConfig) *Reddit {
	if len(cfg.Subreddits) == 0 {
		cfg.Subreddits = DefaultSubreddits
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultFetchLimit
	}
	if cfg.MinUpvotes < 0 {
		cfg.MinUpvotes = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ideahunter/1.0"
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = RedditPublicURL
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = RedditOAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = RedditTokenURL
	}
	return &Reddit{
		client: newHTTPClient(client),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Name implements Source.
func (r *Reddit) Name() string { return models.SourceReddit }

func (r *Reddit) authenticated() bool {
	return r.cfg.ClientID != "" && r.cfg.Secret != ""
}

// Fetch implements Source. A failing subreddit is logged and skipped; an
// error is returned only when every subreddit failed.
func (r *Reddit) Fetch(ctx context.Context) ([]models.RawPost, error) {
	var (
		posts []models.RawPost
		errs  []error
	)
	for _, sub := range r.cfg.Subreddits {
		got, err := r.fetchSubreddit(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error().Err(err).Str("subreddit", sub).Msg("Failed to fetch subreddit")
			errs = append(errs, fmt.Errorf("r/%s: %w", sub, err))
			continue
		}
		log.Info().
			Str("subreddit", sub).
			Int("posts", len(got)).
			Int("minUpvotes", r.cfg.MinUpvotes).
			Msg("Fetched subreddit")
		posts = append(posts, got...)
	}

	if len(errs) == len(r.cfg.Subreddits) {
		return nil, errors.Join(errs...)
	}
	log.Info().Int("posts", len(posts)).Msg("Reddit: fetched posts total")
	return posts, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

func (r *Reddit) fetchSubreddit(ctx context.Context, sub string) ([]models.RawPost, error) {
	limit := strconv.Itoa(min(r.cfg.Limit, 100))

	var endpoint string
	var bearer string
	if r.authenticated() {
		token, err := r.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		bearer = token
		endpoint = fmt.Sprintf("%s/r/%s/new?limit=%s&raw_json=1", r.cfg.OAuthURL, url.PathEscape(sub), limit)
	} else {
		endpoint = fmt.Sprintf("%s/r/%s/new.json?limit=%s&raw_json=1", r.cfg.PublicURL, url.PathEscape(sub), limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating listing request: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && bearer != "" {
		r.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned status %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}

	fetchedAt := r.now()
	posts := make([]models.RawPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		if p.ID == "" || p.Title == "" || p.Score < r.cfg.MinUpvotes {
			continue
		}
		subreddit := p.Subreddit
		if subreddit == "" {
			subreddit = sub
		}
		posts = append(posts, normalize(models.RawPost{
			ID:        models.ExternalID(models.SourceReddit, p.ID),
			Source:    models.SourceReddit,
			Subreddit: subreddit,
			Title:     p.Title,
			Body:      p.Selftext,
			Upvotes:   p.Score,
			Comments:  p.NumComments,
			CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		}, fetchedAt))
	}
	return posts, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached app-only token, refreshing it a minute before
// it expires.
func (r *Reddit) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && r.now().Before(r.expiry) {
		return r.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.SetBasicAuth(r.cfg.ClientID, r.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token endpoint returned no access token")
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	r.token = tok.AccessToken
	r.expiry = r.now().Add(ttl)
	return r.token, nil
}

func (r *Reddit) invalidateToken() {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()
}
