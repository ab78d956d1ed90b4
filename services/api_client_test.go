package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tryonapp/models"
	"tryonapp/test"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *APIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAPIClient(server.URL+"/", 5*time.Second, NewStaticToken(token), zerolog.Nop())
}

func TestCatalogListProducts(t *testing.T) {
	var query atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		query.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "1", "name": "Linen Shirt", "category": "top", "image_url": "https://cdn/1.jpg", "is_active": true},
			{"id": "2", "name": "Old Shirt", "category": "Top", "is_active": false},
			{"id": "3", "name": "Silk Scarf", "category": "Jewelry"}
		]`))
	}, "")
	catalog := NewCatalogService(client)

	products, err := catalog.ListProducts(context.Background(), models.FilterBy(models.CategoryTop))
	require.NoError(t, err)
	assert.Equal(t, "category=Top", query.Load())
	require.Len(t, products, 2)
	assert.Equal(t, models.CategoryTop, products[0].Category)
	assert.True(t, products[0].HasImage())
	assert.Equal(t, "3", products[1].ID)
	assert.False(t, products[1].HasImage())

	_, err = catalog.ListProducts(context.Background(), models.AllCategories())
	require.NoError(t, err)
	assert.Equal(t, "", query.Load())
}

func TestCatalogListProductsServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}, "")

	_, err := NewCatalogService(client).ListProducts(context.Background(), models.AllCategories())
	require.ErrorIs(t, err, models.ErrServiceError)
	e := models.AsError("", err)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
	assert.Equal(t, "Internal Server Error", e.Message)
}

func TestTryOnProcessSendsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tryon/process", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "p1", r.FormValue("product_id"))
		file, header, err := r.FormFile("user_image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "user.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "jpeg-bytes-file:///me.jpg", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "r1", "result_image_url": "X", "product_name": "Jacket", "product_category": "Top", "processing_time": 1.5, "status": "completed", "created_at": "2024-05-01T12:00:00.123456"}`))
	}, "secret")

	result, err := NewTryOnService(client).Process(context.Background(), test.FakeImage("file:///me.jpg"), "p1")
	require.NoError(t, err)
	assert.Equal(t, "X", result.ResultImageURL)
	assert.Equal(t, "Jacket", result.ProductName)
	assert.Equal(t, "Top", result.ProductCategory)
	assert.Equal(t, 1.5, result.ProcessingDuration)
	assert.Equal(t, 1500*time.Millisecond, result.Duration())
	assert.Equal(t, "file:///me.jpg", result.OriginalImageURL)
	assert.Equal(t, "p1", result.ProductID)
	assert.Equal(t, 2024, result.CreatedAt.Year())
}

func TestTryOnProcessErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail string", http.StatusInternalServerError, `{"detail": "model unavailable"}`, "model unavailable"},
		{"detail list", http.StatusUnprocessableEntity, `{"detail": [{"msg": "field required"}, {"msg": "bad id"}]}`, "field required; bad id"},
		{"missing result", http.StatusOK, `{"product_name": "Jacket", "processing_time": 1}`, "malformed response: response has no result_image_url"},
		{"missing duration", http.StatusOK, `{"result_image_url": "X", "product_name": "Jacket"}`, "malformed response: response has no processing_time"},
		{"not completed", http.StatusOK, `{"result_image_url": "X", "product_name": "Jacket", "processing_time": 1, "status": "failed"}`, `malformed response: response status is "failed"`},
		{"not json", http.StatusOK, `<html>`, "malformed response body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, "secret")

			_, err := NewTryOnService(client).Process(context.Background(), test.FakeImage("file:///me.jpg"), "p1")
			require.ErrorIs(t, err, models.ErrServiceError)
			e := models.AsError("", err)
			assert.Equal(t, tc.status, e.Status)
			assert.Equal(t, tc.message, e.Message)
		})
	}
}

func TestTryOnProcessWithoutToken(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, "")

	_, err := NewTryOnService(client).Process(context.Background(), test.FakeImage("file:///me.jpg"), "p1")
	require.ErrorIs(t, err, models.ErrServiceError)
	assert.Equal(t, http.StatusUnauthorized, models.AsError("", err).Status)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTryOnProcessTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	client := NewAPIClient(server.URL, time.Second, NewStaticToken("secret"), zerolog.Nop())

	_, err := NewTryOnService(client).Process(context.Background(), test.FakeImage("file:///me.jpg"), "p1")
	require.ErrorIs(t, err, models.ErrServiceError)
	assert.Equal(t, 0, models.AsError("", err).Status)
}

func TestHistoryList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tryon/history", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("skip"))
		_, _ = w.Write([]byte(`{"items": [
			{"id": "b", "result_image_url": "https://r/b.png", "product_name": "Dress", "created_at": "2024-05-02T08:00:00"},
			{"id": "a", "result_image_url": "https://r/a.png", "product_name": "Jacket", "created_at": "2024-05-01T08:00:00Z"}
		], "total_count": 7}`))
	}, "secret")

	page, err := NewHistoryService(client).List(context.Background(), 10, -5)
	require.NoError(t, err)
	assert.Equal(t, 7, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "b", page.Items[0].ID)
	assert.Equal(t, 2, page.Items[0].CreatedAt.Day())
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))
}

func TestHistoryDelete(t *testing.T) {
	var method, path atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		path.Store(r.URL.Path)
		_, _ = w.Write([]byte(`{"message": "Try-on result deleted successfully"}`))
	}, "secret")

	require.NoError(t, NewHistoryService(client).Delete(context.Background(), "abc"))
	assert.Equal(t, http.MethodDelete, method.Load())
	assert.Equal(t, "/api/tryon/history/abc", path.Load())
}

func TestHistoryDeleteNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "Try-on result not found"}`))
	}, "secret")

	err := NewHistoryService(client).Delete(context.Background(), "abc")
	require.ErrorIs(t, err, models.ErrServiceError)
	assert.Equal(t, "Try-on result not found", models.AsError("", err).Message)
}

func TestStaticTokenSwap(t *testing.T) {
	tokens := NewStaticToken("one")
	tokens.Set("two")
	token, err := tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", token)
}
