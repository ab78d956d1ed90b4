package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	for _, raw := range []string{"top", "TOP", " Top ", "tOp"} {
		c, err := ParseCategory(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, CategoryTop, c)
	}
	c, err := ParseCategory("jewelry")
	require.NoError(t, err)
	assert.Equal(t, CategoryJewelry, c)

	_, err = ParseCategory("shoes")
	assert.EqualError(t, err, `unknown category "shoes"`)
	assert.False(t, Category("").Valid())
	assert.True(t, Category("dress").Valid())
}

func TestParseCategoryFilter(t *testing.T) {
	for _, raw := range []string{"", "  ", "all", "All", "ALL"} {
		f, err := ParseCategoryFilter(raw)
		require.NoError(t, err)
		assert.True(t, f.IsAll())
		assert.Equal(t, "All", f.Key())
	}

	f, err := ParseCategoryFilter("bottom")
	require.NoError(t, err)
	assert.False(t, f.IsAll())
	assert.Equal(t, "Bottom", f.Key())

	_, err = ParseCategoryFilter("hats")
	assert.Error(t, err)
}

func TestCustomValidations(t *testing.T) {
	v := validator.New()
	require.NoError(t, v.RegisterValidation("category", ValidateCategoryFilter))
	require.NoError(t, v.RegisterValidation("platform", ValidatePlatform))

	type query struct {
		Category string `validate:"omitempty,category"`
		Platform string `validate:"omitempty,platform"`
	}
	assert.NoError(t, v.Struct(query{Category: "dress", Platform: "IOS"}))
	assert.NoError(t, v.Struct(query{}))
	assert.Error(t, v.Struct(query{Category: "hats"}))
	assert.Error(t, v.Struct(query{Platform: "symbian"}))
}

func TestParsePlatform(t *testing.T) {
	p, ok := ParsePlatform(" Android ")
	assert.True(t, ok)
	assert.Equal(t, PlatformAndroid, p)

	_, ok = ParsePlatform("")
	assert.False(t, ok)
}

func TestTimestampUnmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
	}{
		{`"2024-05-01T12:00:00.123456"`, time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)},
		{`"2024-05-01T12:00:00"`, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{`"2024-05-01T12:00:00+02:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{`"2024-05-01 12:00:00.5"`, time.Date(2024, 5, 1, 12, 0, 0, 500000000, time.UTC)},
	}
	for _, tc := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &ts), tc.raw)
		assert.True(t, tc.want.Equal(ts.Time), "%s parsed as %s", tc.raw, ts.Time)
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestTimestampMarshal(t *testing.T) {
	data, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = json.Marshal(Timestamp{time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T12:00:00Z"`, string(data))
}

func TestProductResponseToProduct(t *testing.T) {
	var resp ProductResponse
	require.NoError(t, json.Unmarshal([]byte(`{"id": "1", "name": "Ring", "category": "jewelry", "image_url": "", "is_active": false}`), &resp))
	assert.False(t, resp.Active())

	p := resp.ToProduct()
	assert.Equal(t, CategoryJewelry, p.Category)
	assert.False(t, p.HasImage())

	resp = ProductResponse{ID: "2", Category: "Outerwear"}
	assert.True(t, resp.Active())
	assert.Equal(t, Category("Outerwear"), resp.ToProduct().Category)
}

func TestTryOnResponseValidate(t *testing.T) {
	duration := 2.25
	resp := TryOnResponse{ID: "r1", ResultImageURL: "X", ProductName: "Jacket", ProcessingTime: &duration}
	require.NoError(t, resp.Validate())

	result := resp.ToResult()
	assert.Equal(t, 2250*time.Millisecond, result.Duration())
	assert.Equal(t, "r1", result.HistoryEntry().ID)

	resp.ProductName = ""
	assert.EqualError(t, resp.Validate(), "response has no product_name")
}

func TestErrorDetailMessage(t *testing.T) {
	cases := map[string]string{
		`{"detail": "model unavailable"}`:                          "model unavailable",
		`{"detail": [{"msg": "a"}, {"loc": ["x"]}, {"msg": "b"}]}`: "a; b",
		`{"detail": {"code": 7}}`:                                  `{"code": 7}`,
		`{}`:                                                       "",
	}
	for body, want := range cases {
		var detail ErrorDetail
		require.NoError(t, json.Unmarshal([]byte(body), &detail))
		assert.Equal(t, want, detail.Message(), body)
	}
}

func TestPrependHistory(t *testing.T) {
	entries := []HistoryEntry{{ID: "b"}, {ID: "a"}}

	out := PrependHistory(entries, HistoryEntry{ID: "c"}, 0)
	assert.Equal(t, []string{"c", "b", "a"}, historyIDs(out))

	out = PrependHistory(entries, HistoryEntry{ID: "a"}, 0)
	assert.Equal(t, []string{"a", "b"}, historyIDs(out))

	out = PrependHistory(entries, HistoryEntry{ID: "c"}, 2)
	assert.Equal(t, []string{"c", "b"}, historyIDs(out))
	assert.Equal(t, []string{"b", "a"}, historyIDs(entries))
}

func TestRemoveHistory(t *testing.T) {
	entries := []HistoryEntry{{ID: "b"}, {ID: "a"}}

	out, removed := RemoveHistory(entries, "b")
	assert.True(t, removed)
	assert.Equal(t, []string{"a"}, historyIDs(out))

	out, removed = RemoveHistory(entries, "z")
	assert.False(t, removed)
	assert.Equal(t, []string{"b", "a"}, historyIDs(out))
}

func historyIDs(entries []HistoryEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestSessionInvariants(t *testing.T) {
	img := &CapturedImage{URI: "file:///me.jpg"}
	product := &Product{ID: "p1"}
	result := &TryOnResult{ID: "r1"}

	assert.Equal(t, PhaseReadyToSubmit, PhaseFor(true, true))
	assert.Equal(t, PhaseIdle, PhaseFor(true, false))
	assert.Equal(t, PhaseIdle, PhaseFor(false, true))

	valid := []TryOnSession{
		{Phase: PhaseIdle},
		{Phase: PhaseIdle, CapturedImage: img},
		{Phase: PhaseReadyToSubmit, CapturedImage: img, SelectedProduct: product},
		{Phase: PhaseSubmitting, CapturedImage: img, SelectedProduct: product},
		{Phase: PhaseResultReady, CapturedImage: img, SelectedProduct: product, Result: result},
		{Phase: PhaseFailed, CapturedImage: img, SelectedProduct: product, LastError: NewError(KindServiceError, "", "boom")},
	}
	for _, s := range valid {
		assert.NoError(t, s.CheckInvariants(), s.Phase)
	}

	invalid := []TryOnSession{
		{Phase: PhaseIdle, CapturedImage: img, SelectedProduct: product},
		{Phase: PhaseReadyToSubmit, CapturedImage: img},
		{Phase: PhaseFailed, Result: result},
		{Phase: PhaseResultReady},
	}
	for _, s := range invalid {
		assert.Error(t, s.CheckInvariants(), s.Phase)
	}

}

func TestErrorTaxonomy(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewError(KindAlreadyInProgress, "tryon.submit", ""))
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	assert.NotErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, KindAlreadyInProgress, KindOf(err))
	assert.Equal(t, "submit: tryon.submit: already in progress", err.Error())

	cause := errors.New("dial tcp: refused")
	svc := ServiceError("catalog.list", 502, "bad gateway", cause)
	assert.Equal(t, "catalog.list: bad gateway (status 502)", svc.Error())
	assert.ErrorIs(t, svc, cause)
	assert.ErrorIs(t, svc, ErrServiceError)

	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("picker: %w", ErrCancelled)))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError("op", nil))

	original := NewError(KindInvalidState, "op", "nope")
	assert.Same(t, original, AsError("other", fmt.Errorf("wrapped: %w", original)))

	e := AsError("capture", fmt.Errorf("picker: %w", ErrPermissionDenied))
	assert.Equal(t, KindPermissionDenied, e.Kind)
	assert.Equal(t, "capture", e.Op)

	e = AsError("catalog", errors.New("boom"))
	assert.Equal(t, KindServiceError, e.Kind)
	assert.Equal(t, "boom", e.Message)
	assert.Equal(t, 0, e.Status)
}

func TestCaptureModels(t *testing.T) {
	source, err := ParseCaptureSource(" Camera ")
	require.NoError(t, err)
	assert.Equal(t, SourceCamera, source)
	_, err = ParseCaptureSource("scanner")
	assert.Error(t, err)

	assert.Error(t, CapturedImage{}.Validate())
	assert.Error(t, CapturedImage{URI: "file:///doc.pdf", ContentType: "application/pdf"}.Validate())
	assert.NoError(t, CapturedImage{Data: []byte{1}}.Validate())

	assert.Equal(t, "user.jpg", CapturedImage{}.UploadName())
	assert.Equal(t, "me.png", CapturedImage{FileName: "me.png"}.UploadName())

	assert.Equal(t, "3:4", DefaultGalleryAspect.String())
	assert.False(t, AspectRatio{Width: 0, Height: 4}.Valid())
}
