package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"tryonapp/models"
)

type HistoryServiceProvider interface {
	List(ctx context.Context, limit, offset int) (models.HistoryPage, error)
	Delete(ctx context.Context, id string) error
}

type HistoryService struct {
	Client *APIClient
}

func NewHistoryService(client *APIClient) *HistoryService {
	return &HistoryService{Client: client}
}

// List returns one page of the user's results, newest first.
func (s *HistoryService) List(ctx context.Context, limit, offset int) (models.HistoryPage, error) {
	const op = "history.list"
	if limit <= 0 {
		return models.HistoryPage{}, models.NewError(models.KindInvalidState, op, "limit must be positive")
	}
	if offset < 0 {
		offset = 0
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(offset))
	req, err := s.Client.newRequest(ctx, op, authRequired, http.MethodGet, "/api/tryon/history", query, nil)
	if err != nil {
		return models.HistoryPage{}, err
	}
	var body models.TryOnHistoryResponse
	if err := s.Client.do(req, op, &body); err != nil {
		return models.HistoryPage{}, err
	}
	page := models.HistoryPage{
		Items:      make([]models.HistoryEntry, 0, len(body.Items)),
		TotalCount: body.TotalCount,
	}
	for _, item := range body.Items {
		page.Items = append(page.Items, item.ToHistoryEntry())
	}
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
	}
	return page, nil
}

func (s *HistoryService) Delete(ctx context.Context, id string) error {
	const op = "history.delete"
	if id == "" {
		return models.NewError(models.KindInvalidState, op, "empty history id")
	}
	req, err := s.Client.newRequest(ctx, op, authRequired, http.MethodDelete, "/api/tryon/history/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	var body models.MessageResponse
	return s.Client.do(req, op, &body)
}
