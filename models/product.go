package models

// Product is a try-on-able catalog item. Values are owned by the catalog
// backend and never modified on the client.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	ImageURL    *string  `json:"image_url,omitempty"`
	Description *string  `json:"description,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	TryOnType   string   `json:"tryon_type,omitempty"`
}

func (p Product) HasImage() bool {
	return p.ImageURL != nil && *p.ImageURL != ""
}

func FindProduct(products []Product, id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
