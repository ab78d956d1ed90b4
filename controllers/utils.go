package controllers

import (
	"errors"
	"net/http"

	"tryonapp/models"
	"tryonapp/tryon"

	"github.com/labstack/echo/v4"
)

// ErrorStatus maps a controller error to the HTTP status the gateway
// answers with.
func ErrorStatus(err error) int {
	if errors.Is(err, tryon.ErrUnknownProduct) {
		return http.StatusNotFound
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	switch models.KindOf(err) {
	case models.KindInvalidState, models.KindAlreadyInProgress, models.KindStaleResponse:
		return http.StatusConflict
	case models.KindPermissionDenied:
		return http.StatusForbidden
	case models.KindCancelled:
		return http.StatusGone
	case models.KindServiceError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	message := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if text, ok := httpErr.Message.(string); ok {
			message = text
		}
	}
	return c.JSON(ErrorStatus(err), map[string]string{"error": message})
}

func currentSession(c echo.Context) (*tryon.Session, bool) {
	session, ok := c.Get("currentSession").(*tryon.Session)
	return session, ok && session != nil
}
