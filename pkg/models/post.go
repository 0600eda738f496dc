// Package models contains domain models for ideahunter.
package models

import "time"

// Source names used as external id prefixes.
const (
	SourceReddit = "reddit"
	SourceAskHN  = "askhn"
)

// RawPost is a normalized post fetched from a community source.
// ID is the platform-prefixed external id (e.g. "reddit_abc123").
type RawPost struct {
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	FetchedAt time.Time `db:"fetched_at" json:"fetched_at"`
	ID        string    `db:"id" json:"id"`
	Source    string    `db:"source" json:"source"`
	Subreddit string    `db:"subreddit" json:"subreddit,omitempty"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body,omitempty"`
	Upvotes   int       `db:"upvotes" json:"upvotes"`
	Comments  int       `db:"comments" json:"comments"`
}

// ExternalID builds the prefixed id for a post from the given source.
func ExternalID(source, nativeID string) string {
	return source + "_" + nativeID
}
