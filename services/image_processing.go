package services

import (
	"bytes"
	"fmt"
	"image"
	"net/http"

	"tryonapp/models"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWebP = "image/webp"
	MimeHEIC = "image/heic"
)

// JPEGQuality matches the compression the storefront picker applies.
const JPEGQuality = 80

var allowedImageTypes = map[string]bool{
	MimeJPEG: true,
	MimePNG:  true,
	MimeWebP: true,
	MimeHEIC: true,
}

var heicBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "heim": true,
	"heis": true, "mif1": true, "msf1": true,
}

// SniffImageType reports the content type of data from its magic bytes.
func SniffImageType(data []byte) string {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" && heicBrands[string(data[8:12])] {
		return MimeHEIC
	}
	return http.DetectContentType(data)
}

// NormalizeImage checks that data is an accepted image type and, for
// formats that can be decoded here, center crops it to aspect (when given)
// and re-encodes it as JPEG. HEIC is passed through untouched.
func NormalizeImage(data []byte, aspect *models.AspectRatio) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image")
	}
	mimeType := SniffImageType(data)
	if !allowedImageTypes[mimeType] {
		return nil, "", fmt.Errorf("unsupported file type: %s", mimeType)
	}
	if mimeType == MimeHEIC {
		return data, mimeType, nil
	}

	// camera photos carry their rotation in EXIF
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if aspect != nil && aspect.Valid() {
		img = CropToAspect(img, *aspect)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, "", fmt.Errorf("failed to encode image to jpeg: %w", err)
	}
	return buf.Bytes(), MimeJPEG, nil
}

// CropToAspect returns the largest centered region of img with the given
// width:height ratio.
func CropToAspect(img image.Image, aspect models.AspectRatio) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return img
	}

	cropWidth, cropHeight := width, height
	if width*aspect.Height > height*aspect.Width {
		cropWidth = height * aspect.Width / aspect.Height
	} else {
		cropHeight = width * aspect.Height / aspect.Width
	}
	if cropWidth == width && cropHeight == height {
		return img
	}
	return imaging.CropCenter(img, cropWidth, cropHeight)
}
