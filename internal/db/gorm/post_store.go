package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/ideahunter/pkg/models"
)

// existingIDsChunk bounds the IN list of one existence query.
const existingIDsChunk = 500

// PostStore provides raw post operations.
type PostStore struct {
	db *gorm.DB
}

// NewPostStore creates a new post store.
func NewPostStore(store *Store) *PostStore {
	return &PostStore{db: store.DB}
}

// ExistingIDs returns the subset of ids that already exist in raw_posts.
func (s *PostStore) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += existingIDsChunk {
		end := min(start+existingIDsChunk, len(ids))

		var found []string
		err := s.db.WithContext(ctx).
			Model(&RawPost{}).
			Where("id IN ?", ids[start:end]).
			Pluck("id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

// StorePost inserts a raw post if its id is not already present.
// It reports whether a row was inserted.
func (s *PostStore) StorePost(ctx context.Context, post *models.RawPost) (bool, error) {
	row := fromModelPost(post)
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetPost retrieves a raw post by its external id.
func (s *PostStore) GetPost(ctx context.Context, id string) (*models.RawPost, error) {
	var row RawPost
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelPost(&row), nil
}

// CountPosts returns the number of stored raw posts.
func (s *PostStore) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RawPost{}).Count(&count).Error
	return count, err
}

func fromModelPost(p *models.RawPost) *RawPost {
	row := &RawPost{
		ID:        p.ID,
		Source:    p.Source,
		Subreddit: nullString(p.Subreddit),
		Title:     p.Title,
		Body:      nullString(p.Body),
		Upvotes:   p.Upvotes,
		Comments:  p.Comments,
	}
	if !p.CreatedAt.IsZero() {
		row.CreatedAtEpoch = p.CreatedAt.UnixMilli()
		row.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !p.FetchedAt.IsZero() {
		row.FetchedAtEpoch = p.FetchedAt.UnixMilli()
		row.FetchedAt = p.FetchedAt.UTC().Format(time.RFC3339)
	}
	return row
}

func toModelPost(r *RawPost) *models.RawPost {
	return &models.RawPost{
		ID:        r.ID,
		Source:    r.Source,
		Subreddit: r.Subreddit.String,
		Title:     r.Title,
		Body:      r.Body.String,
		Upvotes:   r.Upvotes,
		Comments:  r.Comments,
		CreatedAt: epochToTime(r.CreatedAtEpoch),
		FetchedAt: epochToTime(r.FetchedAtEpoch),
	}
}
