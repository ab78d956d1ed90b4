package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp accepts the naive ISO datetimes the backend emits as well as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

type ProductResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Category    string    `json:"category"`
	Gender      string    `json:"gender"`
	TryOnType   string    `json:"tryon_type"`
	ImageURL    *string   `json:"image_url"`
	IsActive    *bool     `json:"is_active"`
	CreatedAt   Timestamp `json:"created_at"`
}

func (p ProductResponse) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

func (p ProductResponse) ToProduct() Product {
	category := Category(p.Category)
	if parsed, err := ParseCategory(p.Category); err == nil {
		category = parsed
	}
	return Product{
		ID:          p.ID,
		Name:        p.Name,
		Category:    category,
		ImageURL:    p.ImageURL,
		Description: p.Description,
		Gender:      p.Gender,
		TryOnType:   p.TryOnType,
	}
}

// TryOnResponse is returned by the process endpoint and listed by history.
type TryOnResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ProductID        string    `json:"product_id"`
	ProductName      string    `json:"product_name"`
	ProductCategory  string    `json:"product_category"`
	OriginalImageURL string    `json:"original_image_url"`
	ResultImageURL   string    `json:"result_image_url"`
	ProcessingTime   *float64  `json:"processing_time"`
	Status           string    `json:"status"`
	CreatedAt        Timestamp `json:"created_at"`
}

// Validate rejects bodies that are missing what a rendered result needs.
func (r TryOnResponse) Validate() error {
	if r.ResultImageURL == "" {
		return fmt.Errorf("response has no result_image_url")
	}
	if r.ProcessingTime == nil {
		return fmt.Errorf("response has no processing_time")
	}
	if r.ProductName == "" {
		return fmt.Errorf("response has no product_name")
	}
	if r.Status != "" && r.Status != "completed" {
		return fmt.Errorf("response status is %q", r.Status)
	}
	return nil
}

func (r TryOnResponse) ToResult() TryOnResult {
	var duration float64
	if r.ProcessingTime != nil {
		duration = *r.ProcessingTime
	}
	return TryOnResult{
		ID:                 r.ID,
		ProductID:          r.ProductID,
		ProductName:        r.ProductName,
		ProductCategory:    r.ProductCategory,
		ResultImageURL:     r.ResultImageURL,
		OriginalImageURL:   r.OriginalImageURL,
		ProcessingDuration: duration,
		Status:             r.Status,
		CreatedAt:          r.CreatedAt.Time,
	}
}

func (r TryOnResponse) ToHistoryEntry() HistoryEntry {
	return HistoryEntry{
		ID:              r.ID,
		ResultImageURL:  r.ResultImageURL,
		ProductName:     r.ProductName,
		ProductCategory: r.ProductCategory,
		CreatedAt:       r.CreatedAt.Time,
	}
}

type TryOnHistoryResponse struct {
	Items      []TryOnResponse `json:"items"`
	TotalCount int             `json:"total_count"`
}

// ErrorDetail is the backend error body. Detail is either a string or a
// list of validation issues.
type ErrorDetail struct {
	Detail json.RawMessage `json:"detail"`
}

func (e ErrorDetail) Message() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(e.Detail, &text); err == nil {
		return text
	}
	var issues []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(e.Detail, &issues); err == nil {
		messages := make([]string, 0, len(issues))
		for _, issue := range issues {
			if issue.Msg != "" {
				messages = append(messages, issue.Msg)
			}
		}
		return strings.Join(messages, "; ")
	}
	return string(e.Detail)
}

type MessageResponse struct {
	Message string `json:"message"`
}
