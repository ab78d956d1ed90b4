package models

import "time"

// TryOnResult is the rendered composite returned by the processing backend.
type TryOnResult struct {
	ID               string `json:"id"`
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name"`
	ProductCategory  string `json:"product_category"`
	ResultImageURL   string `json:"result_image_url"`
	OriginalImageURL string `json:"original_image_url"`
	// ProcessingDuration is measured by the backend, in seconds.
	ProcessingDuration float64   `json:"processing_time"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

func (r TryOnResult) Duration() time.Duration {
	return time.Duration(r.ProcessingDuration * float64(time.Second))
}

func (r TryOnResult) HistoryEntry() HistoryEntry {
	return HistoryEntry{
		ID:              r.ID,
		ResultImageURL:  r.ResultImageURL,
		ProductName:     r.ProductName,
		ProductCategory: r.ProductCategory,
		CreatedAt:       r.CreatedAt,
	}
}

// HistoryEntry is one past try-on, cached read-only by the client.
type HistoryEntry struct {
	ID              string    `json:"id"`
	ResultImageURL  string    `json:"result_image_url"`
	ProductName     string    `json:"product_name"`
	ProductCategory string    `json:"product_category,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryPage holds entries newest first.
type HistoryPage struct {
	Items      []HistoryEntry `json:"items"`
	TotalCount int            `json:"total_count"`
}

// PrependHistory puts entry in front of entries, dropping any older copy of
// the same id, and keeps at most limit entries when limit is positive.
func PrependHistory(entries []HistoryEntry, entry HistoryEntry, limit int) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries)+1)
	out = append(out, entry)
	for _, e := range entries {
		if e.ID == entry.ID {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func RemoveHistory(entries []HistoryEntry, id string) ([]HistoryEntry, bool) {
	out := make([]HistoryEntry, 0, len(entries))
	removed := false
	for _, e := range entries {
		if e.ID == id {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}
