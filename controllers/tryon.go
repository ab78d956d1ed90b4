package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"tryonapp/capture"
	"tryonapp/models"
	"tryonapp/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxUploadSize = 20 << 20

type CaptureIn struct {
	Source string `json:"source" validate:"required,capture_source"`
}

type SelectProductIn struct {
	ProductID string `json:"product_id" validate:"required,max=200"`
}

type PushTokenIn struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"omitempty,platform"`
}

type CatalogQuery struct {
	Category string `query:"category" validate:"omitempty,category"`
}

type HistoryQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

type CatalogOut struct {
	Category string           `json:"category"`
	Products []models.Product `json:"products"`
}

type HistoryOut struct {
	Items      []models.HistoryEntry `json:"items"`
	TotalCount int                   `json:"total_count"`
}

type TryOnController struct {
	PushTokens *services.PushTokenStore
	Logger     zerolog.Logger
}

func (controller *TryOnController) TryOnRoutes(g *echo.Group) {
	g.GET("/session", controller.GetSession)
	g.POST("/session/capture", controller.StartCapture)
	g.POST("/session/capture/upload", controller.UploadImage)
	g.DELETE("/session/capture", controller.CancelCapture)
	g.POST("/session/product", controller.SelectProduct)
	g.POST("/session/submit", controller.Submit)
	g.POST("/session/reset", controller.Reset)
	g.POST("/session/push-token", controller.RegisterPushToken)
	g.GET("/catalog", controller.LoadCatalog)
	g.GET("/history", controller.LoadHistory)
	g.DELETE("/history/:id", controller.DeleteHistory)
}

func (controller *TryOnController) GetSession(c echo.Context) error {
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	return c.JSON(http.StatusOK, session.Controller.Snapshot())
}

// StartCapture opens the capture in the background; the device answers with
// an upload or a cancel.
func (controller *TryOnController) StartCapture(c echo.Context) error {
	var req CaptureIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return errorJSON(c, err)
	}
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	source, _ := models.ParseCaptureSource(req.Source)

	if session.Controller.Snapshot().Phase == models.PhaseSubmitting {
		return errorJSON(c, models.NewError(models.KindInvalidState, "tryon.select_capture_source", "inputs are locked while submitting"))
	}
	if session.Inbox != nil {
		if _, pending := session.Inbox.Pending(); pending {
			return errorJSON(c, models.NewError(models.KindAlreadyInProgress, "tryon.select_capture_source", "a capture is already in progress"))
		}
	}

	logger := controller.Logger.With().Str("user_id", session.UserID).Str("source", string(source)).Logger()
	go func() {
		if err := session.Controller.SelectCaptureSource(context.Background(), source); err != nil {
			logger.Info().Err(err).Msg("capture ended without an image")
		}
	}()
	return c.JSON(http.StatusAccepted, session.Controller.Snapshot())
}

// UploadImage answers a pending capture with the uploaded file, or replaces
// the captured image directly when nothing is pending.
func (controller *TryOnController) UploadImage(c echo.Context) error {
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "image file is required"})
	}
	if file.Size > maxUploadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "image is too large"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read image"})
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read image"})
	}

	img := &models.CapturedImage{
		URI:         fmt.Sprintf("upload://%s/%s", session.UserID, uuid.NewString()),
		ContentType: file.Header.Get(echo.HeaderContentType),
		FileName:    file.Filename,
		Data:        data,
	}
	if session.Inbox != nil && session.Inbox.Deliver(img) {
		return c.JSON(http.StatusAccepted, session.Controller.Snapshot())
	}

	img.Source = models.SourceGallery
	normalized, err := capture.Normalize(img, nil)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := session.Controller.OnImageCaptured(*normalized); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, session.Controller.Snapshot())
}

func (controller *TryOnController) CancelCapture(c echo.Context) error {
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if session.Inbox == nil || !session.Inbox.Cancel() {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no capture is pending"})
	}
	return c.JSON(http.StatusOK, session.Controller.Snapshot())
}

func (controller *TryOnController) SelectProduct(c echo.Context) error {
	var req SelectProductIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return errorJSON(c, err)
	}
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if _, err := session.Controller.SelectProductByID(req.ProductID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, session.Controller.Snapshot())
}

func (controller *TryOnController) Submit(c echo.Context) error {
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if err := session.Controller.Submit(); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusAccepted, session.Controller.Snapshot())
}

func (controller *TryOnController) Reset(c echo.Context) error {
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	session.Controller.Reset()
	return c.JSON(http.StatusOK, session.Controller.Snapshot())
}

func (controller *TryOnController) RegisterPushToken(c echo.Context) error {
	var req PushTokenIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return errorJSON(c, err)
	}
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if controller.PushTokens == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "push notifications are disabled"})
	}
	platform, _ := models.ParsePlatform(req.Platform)
	controller.PushTokens.Register(session.UserID, req.Token, string(platform))
	return c.JSON(http.StatusOK, models.MessageResponse{Message: "Push token registered"})
}

func (controller *TryOnController) LoadCatalog(c echo.Context) error {
	var req CatalogQuery
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query"})
	}
	if err := c.Validate(req); err != nil {
		return errorJSON(c, err)
	}
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	filter, _ := models.ParseCategoryFilter(req.Category)
	if err := session.Controller.LoadCatalog(c.Request().Context(), filter); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, CatalogOut{
		Category: session.Controller.Category().Key(),
		Products: session.Controller.Products(),
	})
}

func (controller *TryOnController) LoadHistory(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a number"})
		}
		limit = parsed
	}
	if err := c.Validate(HistoryQuery{Limit: limit}); err != nil {
		return errorJSON(c, err)
	}
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if limit == 0 {
		limit = session.Controller.HistoryLimit()
	}
	if err := session.Controller.LoadHistory(c.Request().Context(), limit); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, HistoryOut{
		Items:      session.Controller.History(),
		TotalCount: session.Controller.HistoryTotal(),
	})
}

func (controller *TryOnController) DeleteHistory(c echo.Context) error {
	session, ok := currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if err := session.Controller.DeleteHistoryEntry(c.Request().Context(), c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, models.MessageResponse{Message: "Try-on result deleted successfully"})
}
