package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"tryonapp/models"

	"github.com/golang-jwt/jwt/v4"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userID, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userID string, param interface{}) *http.Request {
	req := NewJSONRequest(method, target, param)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", GenerateUserToken(userID)))
	return req
}

func NewAuthRequest(method string, target string, userID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", GenerateUserToken(userID)))
	return req
}

// NewMultipartAuthRequest uploads content as the file field.
func NewMultipartAuthRequest(target, userID, field, fileName string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile(field, fileName)
	_, _ = part.Write(content)
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Add("Content-Type", writer.FormDataContentType())
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", GenerateUserToken(userID)))
	return req
}

func NewRefString(data string) *string {
	return &data
}

// PNGImage returns an encoded width x height PNG.
func PNGImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func FakeImage(uri string) models.CapturedImage {
	return models.CapturedImage{
		URI:         uri,
		ContentType: "image/jpeg",
		Source:      models.SourceGallery,
		Data:        []byte("jpeg-bytes-" + uri),
	}
}

func FakeProduct(id, name string, category models.Category) models.Product {
	return models.Product{
		ID:       id,
		Name:     name,
		Category: category,
		ImageURL: NewRefString("https://cdn.example.com/" + id + ".jpg"),
	}
}

func FakeProducts(category models.Category, n int) []models.Product {
	products := make([]models.Product, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", strings.ToLower(category.String()), i)
		products = append(products, FakeProduct(id, fmt.Sprintf("%s %d", category, i), category))
	}
	return products
}

func FakeResult(id string, productName string) models.TryOnResult {
	return models.TryOnResult{
		ID:                 id,
		ProductName:        productName,
		ProductCategory:    "Top",
		ResultImageURL:     "https://cdn.example.com/results/" + id + ".png",
		ProcessingDuration: 1.5,
		Status:             "completed",
		CreatedAt:          time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// CatalogMock serves fixed listings keyed by category filter key.
type CatalogMock struct {
	mu       sync.Mutex
	Products map[string][]models.Product
	Errs     map[string]error
	calls    int
}

func (m *CatalogMock) ListProducts(ctx context.Context, filter models.CategoryFilter) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.Errs[filter.Key()]; err != nil {
		return nil, err
	}
	return append([]models.Product(nil), m.Products[filter.Key()]...), nil
}

func (m *CatalogMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type ProcessOutcome struct {
	Result models.TryOnResult
	Err    error
}

// ProcessorMock returns Outcomes in call order, repeating the last one.
// When Gate is set each call blocks until a value is received from it,
// regardless of the context, so tests control when a response arrives.
type ProcessorMock struct {
	mu        sync.Mutex
	Outcomes  []ProcessOutcome
	Gate      chan struct{}
	Started   chan struct{}
	calls     int
	productID string
	image     models.CapturedImage
}

func (m *ProcessorMock) Process(ctx context.Context, img models.CapturedImage, productID string) (models.TryOnResult, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.productID = productID
	m.image = img
	m.mu.Unlock()

	if m.Started != nil {
		m.Started <- struct{}{}
	}
	if m.Gate != nil {
		<-m.Gate
	}
	if len(m.Outcomes) == 0 {
		return models.TryOnResult{}, fmt.Errorf("no outcome configured")
	}
	if idx >= len(m.Outcomes) {
		idx = len(m.Outcomes) - 1
	}
	return m.Outcomes[idx].Result, m.Outcomes[idx].Err
}

func (m *ProcessorMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *ProcessorMock) Last() (models.CapturedImage, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.image, m.productID
}

type HistoryMock struct {
	mu        sync.Mutex
	Page      models.HistoryPage
	ListErr   error
	DeleteErr error
	// Gate blocks List calls until a value is received, like ProcessorMock.
	Gate    chan struct{}
	calls   int
	limit   int
	deleted []string
}

func (m *HistoryMock) List(ctx context.Context, limit, offset int) (models.HistoryPage, error) {
	m.mu.Lock()
	m.calls++
	m.limit = limit
	m.mu.Unlock()
	if m.Gate != nil {
		<-m.Gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return models.HistoryPage{}, m.ListErr
	}
	page := m.Page
	page.Items = append([]models.HistoryEntry(nil), m.Page.Items...)
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
	}
	return page, nil
}

func (m *HistoryMock) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *HistoryMock) SetPage(page models.HistoryPage) {
	m.mu.Lock()
	m.Page = page
	m.mu.Unlock()
}

func (m *HistoryMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *HistoryMock) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// CaptureMock answers permission prompts with Granted and returns Image or
// Err from both pickers. With Block set, pickers wait for a value from it
// or for the context to end.
type CaptureMock struct {
	mu            sync.Mutex
	Granted       bool
	PermissionErr error
	Image         *models.CapturedImage
	Err           error
	Block         chan struct{}
	cameraCalls   int
	galleryCalls  int
	aspect        *models.AspectRatio
}

func (m *CaptureMock) RequestPermission(ctx context.Context, source models.CaptureSource) (bool, error) {
	return m.Granted, m.PermissionErr
}

func (m *CaptureMock) CaptureViaCamera(ctx context.Context) (*models.CapturedImage, error) {
	m.mu.Lock()
	m.cameraCalls++
	m.mu.Unlock()
	return m.pick(ctx)
}

func (m *CaptureMock) PickFromGallery(ctx context.Context, aspect *models.AspectRatio) (*models.CapturedImage, error) {
	m.mu.Lock()
	m.galleryCalls++
	m.aspect = aspect
	m.mu.Unlock()
	return m.pick(ctx)
}

func (m *CaptureMock) pick(ctx context.Context) (*models.CapturedImage, error) {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, models.NewError(models.KindCancelled, "capture.mock", "context done")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Image == nil {
		return nil, nil
	}
	img := *m.Image
	return &img, nil
}

func (m *CaptureMock) Calls() (camera, gallery int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cameraCalls, m.galleryCalls
}

func (m *CaptureMock) Aspect() *models.AspectRatio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aspect
}

type mockObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// AWSProviderMock is an in-memory bucket.
type AWSProviderMock struct {
	mu      sync.Mutex
	objects map[string]mockObject
	clock   time.Time
}

func NewAWSProviderMock() *AWSProviderMock {
	return &AWSProviderMock{
		objects: make(map[string]mockObject),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *AWSProviderMock) LatestObject(ctx context.Context, bucketName, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, bucketName+"/"+prefix) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return "", nil
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.objects[keys[i]].modified.After(m.objects[keys[j]].modified)
	})
	return strings.TrimPrefix(keys[0], bucketName+"/"), nil
}

func (m *AWSProviderMock) GetObject(ctx context.Context, bucketName, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	object, ok := m.objects[bucketName+"/"+key]
	if !ok {
		return nil, "", fmt.Errorf("no such key %s", key)
	}
	return object.data, object.contentType, nil
}

func (m *AWSProviderMock) PutObject(ctx context.Context, bucketName, key string, content []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	m.objects[bucketName+"/"+key] = mockObject{data: content, contentType: contentType, modified: m.clock}
	return nil
}

func (m *AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return fmt.Sprintf("https://r2.example.com/%s/%s?signed=1", bucketName, fileKey), nil
}

func (m *AWSProviderMock) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
