package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tryonapp/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash-image-preview"

const tryOnInstruction = `Take the person from the first image and dress them in the garment or accessory shown in the second image. Keep the person's face, body proportions, pose and background unchanged. Return a single photorealistic image.`

// ContentGenerator is the part of the genai client used here. *genai.Models
// satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiTryOnService renders try-ons directly with Gemini and stores the
// composite in the bucket. It is a drop-in TryOnServiceProvider.
type GeminiTryOnService struct {
	Generator  ContentGenerator
	Model      string
	Catalog    CatalogServiceProvider
	Storage    AWSServiceProvider
	BucketName string
	Prefix     string
	FetchImage func(ctx context.Context, url string) ([]byte, error)
	Logger     zerolog.Logger
	Now        func() time.Time
}

func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (s *GeminiTryOnService) Process(ctx context.Context, image models.CapturedImage, productID string) (models.TryOnResult, error) {
	const op = "tryon.gemini"
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	started := now()

	if len(image.Data) == 0 {
		return models.TryOnResult{}, models.NewError(models.KindInvalidState, op, "captured image has no data")
	}
	products, err := s.Catalog.ListProducts(ctx, models.AllCategories())
	if err != nil {
		return models.TryOnResult{}, models.AsError(op, err)
	}
	product, ok := models.FindProduct(products, productID)
	if !ok {
		return models.TryOnResult{}, models.ServiceError(op, 404, "product not found", nil)
	}
	if !product.HasImage() {
		return models.TryOnResult{}, models.ServiceError(op, 422, "product has no image", nil)
	}

	fetch := s.FetchImage
	if fetch == nil {
		fetch = ReadFileFromUrl
	}
	productImage, err := fetch(ctx, *product.ImageURL)
	if err != nil {
		return models.TryOnResult{}, models.ServiceError(op, 0, "failed to fetch product image", err)
	}

	personType := image.ContentType
	if personType == "" {
		personType = SniffImageType(image.Data)
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: personType, Data: image.Data}},
		{InlineData: &genai.Blob{MIMEType: SniffImageType(productImage), Data: productImage}},
		{Text: fmt.Sprintf("Product: %s (%s)", product.Name, product.Category)},
	}
	result, err := s.Generator.GenerateContent(ctx, s.model(), []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount:     1,
		ResponseModalities: []string{"TEXT", "IMAGE"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: tryOnInstruction}},
		},
	})
	if err != nil {
		return models.TryOnResult{}, models.ServiceError(op, 0, "generation failed", err)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return models.TryOnResult{}, models.ServiceError(op, 422, "content blocked: "+string(result.PromptFeedback.BlockReason), nil)
	}
	images, err := GetAllInlineImages(result)
	if err != nil {
		return models.TryOnResult{}, models.ServiceError(op, 422, err.Error(), err)
	}
	if len(images) == 0 {
		return models.TryOnResult{}, models.ServiceError(op, 0, "model returned no image", nil)
	}

	id := uuid.NewString()
	key := fmt.Sprintf("%s/%s.png", strings.Trim(s.Prefix, "/"), id)
	if err := s.Storage.PutObject(ctx, s.BucketName, key, images[0].Data, images[0].MIMEType); err != nil {
		return models.TryOnResult{}, models.ServiceError(op, 0, "failed to store result", err)
	}
	url, err := s.Storage.GetPresignedR2FileReadURL(ctx, s.BucketName, key)
	if err != nil {
		return models.TryOnResult{}, models.ServiceError(op, 0, "failed to sign result", err)
	}

	finished := now()
	s.Logger.Info().Str("product_id", productID).Str("key", key).Dur("elapsed", finished.Sub(started)).Msg("gemini try-on rendered")
	return models.TryOnResult{
		ID:                 id,
		ProductID:          product.ID,
		ProductName:        product.Name,
		ProductCategory:    product.Category.String(),
		ResultImageURL:     url,
		OriginalImageURL:   image.URI,
		ProcessingDuration: finished.Sub(started).Seconds(),
		Status:             "completed",
		CreatedAt:          finished.UTC(),
	}, nil
}

func (s *GeminiTryOnService) model() string {
	if s.Model == "" {
		return DefaultGeminiModel
	}
	return s.Model
}

// GetAllInlineImages collects every inline image of every candidate.
// A candidate blocked by a safety rating fails the whole response.
func GetAllInlineImages(result *genai.GenerateContentResponse) ([]*genai.Blob, error) {
	if result == nil {
		return nil, fmt.Errorf("empty response")
	}
	var images []*genai.Blob
	for _, cand := range result.Candidates {
		for _, rating := range cand.SafetyRatings {
			if rating.Blocked {
				return nil, fmt.Errorf("content blocked by safety setting: %s", rating.Category)
			}
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") && len(part.InlineData.Data) > 0 {
				images = append(images, part.InlineData)
			}
		}
	}
	return images, nil
}
