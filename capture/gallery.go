package capture

import (
	"context"
	"fmt"
	"path"
	"strings"

	"tryonapp/models"
	"tryonapp/services"
)

// BucketGallery picks the user's most recent photo from the object store.
// It has no camera.
type BucketGallery struct {
	Storage services.AWSServiceProvider
	Bucket  string
	Prefix  string
	UserID  string
}

func (g *BucketGallery) folder() string {
	return strings.Trim(g.Prefix, "/") + "/" + g.UserID + "/"
}

func (g *BucketGallery) RequestPermission(ctx context.Context, source models.CaptureSource) (bool, error) {
	if source != models.SourceGallery {
		return false, ErrUnsupported
	}
	return g.Storage != nil && g.Bucket != "" && g.UserID != "", nil
}

func (g *BucketGallery) CaptureViaCamera(ctx context.Context) (*models.CapturedImage, error) {
	return nil, ErrUnsupported
}

// PickFromGallery reports a cancel when the user's folder is empty.
func (g *BucketGallery) PickFromGallery(ctx context.Context, aspect *models.AspectRatio) (*models.CapturedImage, error) {
	const op = "capture.gallery"
	key, err := g.Storage.LatestObject(ctx, g.Bucket, g.folder())
	if err != nil {
		return nil, fmt.Errorf("listing gallery: %w", err)
	}
	if key == "" {
		return nil, cancelled(op)
	}
	data, contentType, err := g.Storage.GetObject(ctx, g.Bucket, key)
	if err != nil {
		return nil, fmt.Errorf("reading gallery image: %w", err)
	}
	uri, err := g.Storage.GetPresignedR2FileReadURL(ctx, g.Bucket, key)
	if err != nil {
		return nil, fmt.Errorf("signing gallery image: %w", err)
	}
	return Normalize(&models.CapturedImage{
		URI:         uri,
		ContentType: contentType,
		FileName:    path.Base(key),
		Source:      models.SourceGallery,
		Data:        data,
	}, aspect)
}
