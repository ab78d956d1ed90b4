package services

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"tryonapp/models"
)

type TryOnServiceProvider interface {
	Process(ctx context.Context, image models.CapturedImage, productID string) (models.TryOnResult, error)
}

type TryOnService struct {
	Client *APIClient
}

func NewTryOnService(client *APIClient) *TryOnService {
	return &TryOnService{Client: client}
}

// Process uploads the image and product id as multipart form data. A 2xx
// body that lacks the result reference, duration or product name, or whose
// status is not "completed", is treated as a failed call.
func (s *TryOnService) Process(ctx context.Context, image models.CapturedImage, productID string) (models.TryOnResult, error) {
	const op = "tryon.process"
	if len(image.Data) == 0 {
		return models.TryOnResult{}, models.NewError(models.KindInvalidState, op, "captured image has no data")
	}
	if productID == "" {
		return models.TryOnResult{}, models.NewError(models.KindInvalidState, op, "no product selected")
	}
	// fail before encoding the image when there is no token
	if _, err := s.Client.token(ctx, op, authRequired); err != nil {
		return models.TryOnResult{}, err
	}

	body, contentType, err := encodeTryOnForm(image, productID)
	if err != nil {
		return models.TryOnResult{}, models.ServiceError(op, 0, "failed to encode upload", err)
	}
	req, err := s.Client.newRequest(ctx, op, authRequired, http.MethodPost, "/api/tryon/process", nil, body)
	if err != nil {
		return models.TryOnResult{}, err
	}
	req.Header.Set("Content-Type", contentType)

	var resp models.TryOnResponse
	if err := s.Client.do(req, op, &resp); err != nil {
		return models.TryOnResult{}, err
	}
	if err := resp.Validate(); err != nil {
		return models.TryOnResult{}, models.ServiceError(op, http.StatusOK, "malformed response: "+err.Error(), err)
	}
	result := resp.ToResult()
	if result.OriginalImageURL == "" {
		result.OriginalImageURL = image.URI
	}
	if result.ProductID == "" {
		result.ProductID = productID
	}
	return result, nil
}

func encodeTryOnForm(image models.CapturedImage, productID string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := image.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="user_image"; filename=%q`, image.UploadName()))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("product_id", productID); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
