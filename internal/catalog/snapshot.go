// Snapshot helpers: convert catalog items into the compact records persisted
// on bot turns, and answer price follow-ups from a stored snapshot without
// touching the catalog backend again.
package catalog

import (
	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

// Snapshot converts up to max items into persistable snapshot records,
// preserving input order.
func Snapshot(items []Item, max int) []domain.CatalogSnapshotItem {
	if max <= 0 || len(items) == 0 {
		return nil
	}
	if len(items) > max {
		items = items[:max]
	}
	out := make([]domain.CatalogSnapshotItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.CatalogSnapshotItem{
			ID:           it.ID,
			Title:        it.Title,
			ProductURL:   it.ProductURL,
			ThumbnailURL: it.ThumbnailURL,
			Currency:     it.Currency,
			Amount:       it.Amount,
			Stock:        it.Stock,
		})
	}
	return out
}

// CheapestOf returns the lowest-priced snapshot item, or nil for an empty
// snapshot. Ties keep the earlier item (input order is the bot's display
// order, so the first mentioned wins).
func CheapestOf(items []domain.CatalogSnapshotItem) *domain.CatalogSnapshotItem {
	if len(items) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(items); i++ {
		if items[i].Amount < items[best].Amount {
			best = i
		}
	}
	item := items[best]
	return &item
}
