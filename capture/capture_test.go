package capture

import (
	"bytes"
	"context"
	"image"
	"testing"
	"time"

	"tryonapp/models"
	"tryonapp/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureResult struct {
	image *models.CapturedImage
	err   error
}

func startCapture(t *testing.T, ctx context.Context, inbox *Inbox, source models.CaptureSource, aspect *models.AspectRatio) <-chan captureResult {
	t.Helper()
	done := make(chan captureResult, 1)
	go func() {
		var r captureResult
		if source == models.SourceCamera {
			r.image, r.err = inbox.CaptureViaCamera(ctx)
		} else {
			r.image, r.err = inbox.PickFromGallery(ctx, aspect)
		}
		done <- r
	}()
	require.Eventually(t, func() bool {
		pending, ok := inbox.Pending()
		return ok && pending == source
	}, time.Second, 5*time.Millisecond)
	return done
}

func receive(t *testing.T, done <-chan captureResult) captureResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not return")
		return captureResult{}
	}
}

func TestInboxDeliverNormalizesGalleryPick(t *testing.T) {
	inbox := NewInbox()
	assert.False(t, inbox.Deliver(&models.CapturedImage{URI: "x"}))

	done := startCapture(t, context.Background(), inbox, models.SourceGallery, &models.DefaultGalleryAspect)
	require.True(t, inbox.Deliver(&models.CapturedImage{URI: "upload://1", FileName: "me.png", Data: test.PNGImage(300, 300)}))

	r := receive(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, models.SourceGallery, r.image.Source)
	assert.Equal(t, "image/jpeg", r.image.ContentType)
	assert.Equal(t, "me.jpg", r.image.FileName)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(r.image.Data))
	require.NoError(t, err)
	assert.Equal(t, 225, cfg.Width)

	_, ok := inbox.Pending()
	assert.False(t, ok)
}

func TestInboxCancel(t *testing.T) {
	inbox := NewInbox()
	done := startCapture(t, context.Background(), inbox, models.SourceCamera, nil)
	require.True(t, inbox.Cancel())

	r := receive(t, done)
	assert.ErrorIs(t, r.err, models.ErrCancelled)
	assert.False(t, inbox.Cancel())
}

func TestInboxContextEndsCapture(t *testing.T) {
	inbox := NewInbox()
	ctx, cancel := context.WithCancel(context.Background())
	done := startCapture(t, ctx, inbox, models.SourceCamera, nil)
	cancel()

	r := receive(t, done)
	assert.ErrorIs(t, r.err, models.ErrCancelled)
	require.Eventually(t, func() bool {
		_, ok := inbox.Pending()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInboxNewerCaptureSupersedes(t *testing.T) {
	inbox := NewInbox()
	first := startCapture(t, context.Background(), inbox, models.SourceCamera, nil)
	second := startCapture(t, context.Background(), inbox, models.SourceGallery, nil)

	assert.ErrorIs(t, receive(t, first).err, models.ErrCancelled)

	require.True(t, inbox.Deliver(&models.CapturedImage{URI: "upload://2", Data: test.PNGImage(10, 10)}))
	r := receive(t, second)
	require.NoError(t, r.err)
	assert.Equal(t, models.SourceGallery, r.image.Source)
}

func TestInboxRejectsNonImageUpload(t *testing.T) {
	inbox := NewInbox()
	done := startCapture(t, context.Background(), inbox, models.SourceCamera, nil)
	require.True(t, inbox.Deliver(&models.CapturedImage{URI: "upload://3", Data: []byte("plain text")}))

	r := receive(t, done)
	assert.ErrorContains(t, r.err, "unsupported file type")
}

func TestInboxPermission(t *testing.T) {
	inbox := NewInbox()
	granted, err := inbox.RequestPermission(context.Background(), models.SourceCamera)
	require.NoError(t, err)
	assert.True(t, granted)

	inbox.SetPermission(false)
	granted, _ = inbox.RequestPermission(context.Background(), models.SourceGallery)
	assert.False(t, granted)
}

func TestBucketGalleryPicksNewestObject(t *testing.T) {
	ctx := context.Background()
	storage := test.NewAWSProviderMock()
	gallery := &BucketGallery{Storage: storage, Bucket: "bucket", Prefix: "/tryon-images/", UserID: "u1"}

	granted, err := gallery.RequestPermission(ctx, models.SourceGallery)
	require.NoError(t, err)
	assert.True(t, granted)
	_, err = gallery.RequestPermission(ctx, models.SourceCamera)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = gallery.PickFromGallery(ctx, nil)
	assert.ErrorIs(t, err, models.ErrCancelled)

	require.NoError(t, storage.PutObject(ctx, "bucket", "tryon-images/u1/old.png", test.PNGImage(40, 40), "image/png"))
	require.NoError(t, storage.PutObject(ctx, "bucket", "tryon-images/u2/other.png", test.PNGImage(40, 40), "image/png"))
	require.NoError(t, storage.PutObject(ctx, "bucket", "tryon-images/u1/new.png", test.PNGImage(80, 40), "image/png"))

	img, err := gallery.PickFromGallery(ctx, &models.AspectRatio{Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, "new.jpg", img.FileName)
	assert.Equal(t, "https://r2.example.com/bucket/tryon-images/u1/new.png?signed=1", img.URI)
	assert.Equal(t, models.SourceGallery, img.Source)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestMuxRoutesBySource(t *testing.T) {
	ctx := context.Background()
	camera := &test.CaptureMock{Granted: true, Image: &models.CapturedImage{URI: "camera://1"}}
	mux := &Mux{Camera: camera}

	img, err := mux.CaptureViaCamera(ctx)
	require.NoError(t, err)
	assert.Equal(t, "camera://1", img.URI)

	_, err = mux.PickFromGallery(ctx, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = mux.RequestPermission(ctx, models.SourceGallery)
	assert.ErrorIs(t, err, ErrUnsupported)

	cameraCalls, galleryCalls := camera.Calls()
	assert.Equal(t, 1, cameraCalls)
	assert.Equal(t, 0, galleryCalls)
}
