package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/ideahunter/pkg/models"
)

func listing(posts ...redditPost) redditListing {
	var l redditListing
	for _, p := range posts {
		l.Data.Children = append(l.Data.Children, struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		}{Kind: "t3", Data: p})
	}
	return l
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestReddit_PublicListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/SaaS/new.json", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, listing(
			redditPost{ID: "a1", Subreddit: "SaaS", Title: "Invoicing is painful", Selftext: strings.Repeat("x", 5000), Score: 12, NumComments: 4, CreatedUTC: 1700000000},
			redditPost{ID: "a2", Subreddit: "SaaS", Title: "Low score", Score: 2},
			redditPost{ID: "", Title: "No id", Score: 50},
		))
	}))
	defer srv.Close()

	src := NewReddit(srv.Client(), RedditConfig{
		Subreddits: []string{"SaaS"},
		Limit:      25,
		MinUpvotes: DefaultMinUpvotes,
		PublicURL:  srv.URL,
	})
	assert.Equal(t, models.SourceReddit, src.Name())

	posts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)

	p := posts[0]
	assert.Equal(t, "reddit_a1", p.ID)
	assert.Equal(t, "SaaS", p.Subreddit)
	assert.Equal(t, 12, p.Upvotes)
	assert.Equal(t, 4, p.Comments)
	assert.Len(t, []rune(p.Body), MaxBodyChars)
	assert.Equal(t, int64(1700000000), p.CreatedAt.Unix())
}

func TestReddit_OAuth(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		writeJSON(w, tokenResponse{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 3600})
	})
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.False(t, strings.HasSuffix(r.URL.Path, ".json"))
		writeJSON(w, listing(redditPost{ID: strings.TrimPrefix(r.URL.Path, "/r/"), Title: "t", Score: 10}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewReddit(srv.Client(), RedditConfig{
		ClientID:   "id",
		Secret:     "secret",
		Subreddits: []string{"one", "two"},
		OAuthURL:   srv.URL,
		TokenURL:   srv.URL + "/api/v1/access_token",
	})

	posts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is cached across subreddits")
	assert.Equal(t, "one", posts[0].Subreddit)
}

func TestReddit_SubredditFailureIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/broken/") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(w, listing(redditPost{ID: "ok", Title: "fine", Score: 10}))
	}))
	defer srv.Close()

	src := NewReddit(srv.Client(), RedditConfig{Subreddits: []string{"broken", "good"}, PublicURL: srv.URL})
	posts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "good", posts[0].Subreddit)
}

func TestReddit_AllSubredditsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewReddit(srv.Client(), RedditConfig{Subreddits: []string{"a", "b"}, PublicURL: srv.URL})
	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}

func TestNewReddit_Defaults(t *testing.T) {
	src := NewReddit(nil, RedditConfig{MinUpvotes: -3})
	assert.Equal(t, DefaultSubreddits, src.cfg.Subreddits)
	assert.Equal(t, DefaultFetchLimit, src.cfg.Limit)
	assert.Zero(t, src.cfg.MinUpvotes)
	assert.Equal(t, DefaultHTTPTimeout, src.client.Timeout)
	assert.False(t, src.authenticated())
}
