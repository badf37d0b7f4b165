// Package history loads message pages from the backend.
package history

import (
	"context"

	"github.com/pkg/errors"

	"chat-client/internal/models"
	"chat-client/internal/store"
)

// DefaultLimit is the page size used for initial loads and resyncs.
const DefaultLimit = 100

// Page is one paginated history response.
type Page struct {
	Rows       []models.Message `json:"rows"`
	HasMore    bool             `json:"hasMore"`
	NextOffset int              `json:"nextOffset"`
}

// Source fetches history pages, newest page at offset 0.
type Source interface {
	Fetch(ctx context.Context, limit, offset int) (Page, error)
}

// LoadRecent fetches the first page and returns it in chronological order.
func LoadRecent(ctx context.Context, src Source, limit int) ([]models.Message, error) {
	page, err := LoadPage(ctx, src, limit, 0)
	if err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// LoadPage fetches the page at offset with its rows in chronological order.
func LoadPage(ctx context.Context, src Source, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	page, err := src.Fetch(ctx, limit, offset)
	if err != nil {
		return Page{}, errors.Wrapf(err, "fetch page at offset %d", offset)
	}
	store.SortChronological(page.Rows)
	return page, nil
}
