package models

import (
	"fmt"
	"strings"
)

type CaptureSource string

const (
	SourceCamera  CaptureSource = "camera"
	SourceGallery CaptureSource = "gallery"
)

func ParseCaptureSource(value string) (CaptureSource, error) {
	switch CaptureSource(strings.ToLower(strings.TrimSpace(value))) {
	case SourceCamera:
		return SourceCamera, nil
	case SourceGallery:
		return SourceGallery, nil
	}
	return "", fmt.Errorf("unknown capture source %q", value)
}

// AspectRatio is the crop requested from a gallery pick, e.g. 3:4.
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultGalleryAspect matches the portrait crop of the mobile picker.
var DefaultGalleryAspect = AspectRatio{Width: 3, Height: 4}

func (a AspectRatio) Valid() bool {
	return a.Width > 0 && a.Height > 0
}

func (a AspectRatio) String() string {
	return fmt.Sprintf("%d:%d", a.Width, a.Height)
}

// CapturedImage references image bytes held on the client. URI points at the
// local file (or remote object) the bytes came from; Data is set when the
// provider already holds the bytes in memory. It is replaced, never mutated.
type CapturedImage struct {
	URI         string        `json:"uri"`
	ContentType string        `json:"content_type"`
	FileName    string        `json:"file_name,omitempty"`
	Source      CaptureSource `json:"source,omitempty"`
	Data        []byte        `json:"-"`
}

func (img CapturedImage) Validate() error {
	if img.URI == "" && len(img.Data) == 0 {
		return fmt.Errorf("captured image has neither uri nor data")
	}
	if img.ContentType != "" && !strings.HasPrefix(img.ContentType, "image/") {
		return fmt.Errorf("captured image has non-image content type %q", img.ContentType)
	}
	return nil
}

// UploadName is the multipart file name sent to the processing backend.
func (img CapturedImage) UploadName() string {
	if img.FileName != "" {
		return img.FileName
	}
	return "user.jpg"
}
