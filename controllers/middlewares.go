package controllers

import (
	"tryonapp/tryon"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// UserSessionMiddleware resolves the token subject to the user's try-on
// session and keeps the raw token for calls to the backend.
func UserSessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		registry, ok := c.Get("__registry").(*tryon.Registry)
		if !ok {
			return echo.ErrInternalServerError
		}
		userRaw := c.Get("user")
		if userRaw == nil {
			return echo.ErrUnauthorized
		}
		user, ok := userRaw.(*jwt.Token)
		if !ok {
			return echo.ErrUnauthorized
		}
		claims, ok := user.Claims.(jwt.MapClaims)
		if !ok {
			return echo.ErrUnauthorized
		}
		userID, _ := claims["sub"].(string)
		if userID == "" {
			log.Warn().Msg("token without subject")
			return echo.ErrUnauthorized
		}

		session, err := registry.Get(userID, user.Raw)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to open session")
			return echo.ErrInternalServerError
		}
		c.Set("currentUser", userID)
		c.Set("currentSession", session)
		return next(c)
	}
}
