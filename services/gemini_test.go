package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"tryonapp/models"
	"tryonapp/test"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	response *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.model = model
	g.contents = contents
	g.config = config
	return g.response, g.err
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
			}},
		}},
	}
}

func newGeminiService(generator ContentGenerator, storage AWSServiceProvider) *GeminiTryOnService {
	catalog := &test.CatalogMock{Products: map[string][]models.Product{
		models.CategoryAll: {
			test.FakeProduct("p1", "Linen Shirt", models.CategoryTop),
			{ID: "p2", Name: "Bare", Category: models.CategoryDress},
		},
	}}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &GeminiTryOnService{
		Generator:  generator,
		Catalog:    catalog,
		Storage:    storage,
		BucketName: "bucket",
		Prefix:     "results/",
		FetchImage: func(ctx context.Context, url string) ([]byte, error) {
			return test.PNGImage(4, 4), nil
		},
		Logger: zerolog.Nop(),
		Now: func() time.Time {
			clock = clock.Add(1500 * time.Millisecond)
			return clock
		},
	}
}

func TestGeminiProcessStoresResult(t *testing.T) {
	generator := &fakeGenerator{response: imageResponse([]byte("png-result"))}
	storage := test.NewAWSProviderMock()
	service := newGeminiService(generator, storage)

	result, err := service.Process(context.Background(), test.FakeImage("file:///me.jpg"), "p1")
	require.NoError(t, err)

	assert.Equal(t, DefaultGeminiModel, generator.model)
	require.Len(t, generator.contents, 1)
	parts := generator.contents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Equal(t, MimePNG, parts[1].InlineData.MIMEType)
	assert.Contains(t, parts[2].Text, "Linen Shirt")
	assert.Equal(t, []string{"TEXT", "IMAGE"}, generator.config.ResponseModalities)

	keys := storage.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "bucket/results/"+result.ID))
	data, contentType, err := storage.GetObject(context.Background(), "bucket", strings.TrimPrefix(keys[0], "bucket/"))
	require.NoError(t, err)
	assert.Equal(t, "png-result", string(data))
	assert.Equal(t, "image/png", contentType)

	assert.Equal(t, "https://r2.example.com/"+keys[0]+"?signed=1", result.ResultImageURL)
	assert.Equal(t, "p1", result.ProductID)
	assert.Equal(t, "Linen Shirt", result.ProductName)
	assert.Equal(t, "Top", result.ProductCategory)
	assert.Equal(t, "file:///me.jpg", result.OriginalImageURL)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 1.5, result.ProcessingDuration)
}

func TestGeminiProcessFailures(t *testing.T) {
	cases := []struct {
		name      string
		productID string
		generator *fakeGenerator
		status    int
		message   string
	}{
		{"unknown product", "missing", &fakeGenerator{}, 404, "product not found"},
		{"product without image", "p2", &fakeGenerator{}, 422, "product has no image"},
		{"no image returned", "p1", &fakeGenerator{response: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry"}}}}},
		}}, 0, "model returned no image"},
		{"prompt blocked", "p1", &fakeGenerator{response: &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}}, 422, "content blocked: SAFETY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			storage := test.NewAWSProviderMock()
			_, err := newGeminiService(tc.generator, storage).Process(context.Background(), test.FakeImage("file:///me.jpg"), tc.productID)
			require.ErrorIs(t, err, models.ErrServiceError)
			e := models.AsError("", err)
			assert.Equal(t, tc.status, e.Status)
			assert.Equal(t, tc.message, e.Message)
			assert.Empty(t, storage.Keys())
		})
	}
}

func TestGeminiProcessRequiresImageData(t *testing.T) {
	img := test.FakeImage("file:///me.jpg")
	img.Data = nil
	_, err := newGeminiService(&fakeGenerator{}, test.NewAWSProviderMock()).Process(context.Background(), img, "p1")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}
