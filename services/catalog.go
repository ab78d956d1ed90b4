package services

import (
	"context"
	"net/http"
	"net/url"

	"tryonapp/models"
)

type CatalogServiceProvider interface {
	ListProducts(ctx context.Context, filter models.CategoryFilter) ([]models.Product, error)
}

type CatalogService struct {
	Client *APIClient
}

func NewCatalogService(client *APIClient) *CatalogService {
	return &CatalogService{Client: client}
}

// ListProducts fetches the catalog. The "All" filter sends no category.
// Inactive products are left out.
func (s *CatalogService) ListProducts(ctx context.Context, filter models.CategoryFilter) ([]models.Product, error) {
	const op = "catalog.list"
	query := url.Values{}
	if !filter.IsAll() {
		query.Set("category", filter.Category.String())
	}
	req, err := s.Client.newRequest(ctx, op, authOptional, http.MethodGet, "/products", query, nil)
	if err != nil {
		return nil, err
	}
	var body []models.ProductResponse
	if err := s.Client.do(req, op, &body); err != nil {
		return nil, err
	}
	products := make([]models.Product, 0, len(body))
	for _, item := range body {
		if !item.Active() || item.ID == "" {
			continue
		}
		products = append(products, item.ToProduct())
	}
	return products, nil
}
