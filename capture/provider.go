// Package capture holds the image acquisition providers a try-on session
// draws from.
package capture

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"tryonapp/models"
	"tryonapp/services"
)

// ErrUnsupported is returned by providers that cannot serve a source.
var ErrUnsupported = errors.New("capture source not supported")

// Provider acquires a single image per call. A user cancel is reported as
// an error matching models.ErrCancelled.
type Provider interface {
	RequestPermission(ctx context.Context, source models.CaptureSource) (bool, error)
	CaptureViaCamera(ctx context.Context) (*models.CapturedImage, error)
	PickFromGallery(ctx context.Context, aspect *models.AspectRatio) (*models.CapturedImage, error)
}

func cancelled(op string) error {
	return models.NewError(models.KindCancelled, op, "capture cancelled")
}

// Normalize re-encodes raw image bytes and applies the crop for gallery picks.
func Normalize(img *models.CapturedImage, aspect *models.AspectRatio) (*models.CapturedImage, error) {
	if len(img.Data) == 0 {
		if err := img.Validate(); err != nil {
			return nil, err
		}
		return img, nil
	}
	data, contentType, err := services.NormalizeImage(img.Data, aspect)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Data = data
	out.ContentType = contentType
	if contentType == services.MimeJPEG && out.FileName != "" {
		out.FileName = strings.TrimSuffix(out.FileName, filepath.Ext(out.FileName)) + ".jpg"
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mux sends camera requests to one provider and gallery requests to another.
type Mux struct {
	Camera  Provider
	Gallery Provider
}

func (m *Mux) route(source models.CaptureSource) (Provider, error) {
	var p Provider
	switch source {
	case models.SourceCamera:
		p = m.Camera
	case models.SourceGallery:
		p = m.Gallery
	}
	if p == nil {
		return nil, ErrUnsupported
	}
	return p, nil
}

func (m *Mux) RequestPermission(ctx context.Context, source models.CaptureSource) (bool, error) {
	p, err := m.route(source)
	if err != nil {
		return false, err
	}
	return p.RequestPermission(ctx, source)
}

func (m *Mux) CaptureViaCamera(ctx context.Context) (*models.CapturedImage, error) {
	p, err := m.route(models.SourceCamera)
	if err != nil {
		return nil, err
	}
	return p.CaptureViaCamera(ctx)
}

func (m *Mux) PickFromGallery(ctx context.Context, aspect *models.AspectRatio) (*models.CapturedImage, error) {
	p, err := m.route(models.SourceGallery)
	if err != nil {
		return nil, err
	}
	return p.PickFromGallery(ctx, aspect)
}
