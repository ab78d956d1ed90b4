package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Category string

const (
	CategoryTop     Category = "Top"
	CategoryBottom  Category = "Bottom"
	CategoryDress   Category = "Dress"
	CategoryJewelry Category = "Jewelry"
)

// CategoryAll is the catalog filter that matches every category.
const CategoryAll = "All"

var Categories = []Category{CategoryTop, CategoryBottom, CategoryDress, CategoryJewelry}

// ParseCategory accepts any casing ("top", "TOP", " Top ") of a known category.
func ParseCategory(value string) (Category, error) {
	// a Caser keeps state between calls, so each parse gets its own
	normalized := Category(cases.Title(language.English).String(strings.TrimSpace(value)))
	for _, c := range Categories {
		if c == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", value)
}

func (c Category) String() string {
	return string(c)
}

func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

// CategoryFilter narrows a catalog listing. The zero value means "All".
type CategoryFilter struct {
	Category Category
}

func AllCategories() CategoryFilter {
	return CategoryFilter{}
}

func FilterBy(c Category) CategoryFilter {
	return CategoryFilter{Category: c}
}

// ParseCategoryFilter maps "", "all" and "All" to the unfiltered listing.
func ParseCategoryFilter(value string) (CategoryFilter, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, CategoryAll) {
		return AllCategories(), nil
	}
	c, err := ParseCategory(trimmed)
	if err != nil {
		return CategoryFilter{}, err
	}
	return FilterBy(c), nil
}

func (f CategoryFilter) IsAll() bool {
	return f.Category == ""
}

// Key is used both as the query value and as the catalog cache key.
func (f CategoryFilter) Key() string {
	if f.IsAll() {
		return CategoryAll
	}
	return string(f.Category)
}

func ValidateCategoryFilter(fl validator.FieldLevel) bool {
	_, err := ParseCategoryFilter(fl.Field().String())
	return err == nil
}
