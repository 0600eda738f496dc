// Package sources fetches posts from online communities.
package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/thebtf/ideahunter/internal/sanitize"
	"github.com/thebtf/ideahunter/pkg/models"
)

// Defaults shared by all sources.
const (
	DefaultMinUpvotes  = 5
	DefaultFetchLimit  = 100
	MaxBodyChars       = 4000
	DefaultHTTPTimeout = 30 * time.Second
)

// Source is a community post provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.RawPost, error)
}

// newHTTPClient returns client, or a client with the default timeout.
func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// normalize cleans a post body and stamps FetchedAt.
func normalize(p models.RawPost, fetchedAt time.Time) models.RawPost {
	p.Title = sanitize.Clean(p.Title)
	p.Body = sanitize.Truncate(sanitize.Clean(p.Body), MaxBodyChars)
	p.FetchedAt = fetchedAt
	return p
}
