package controllers

import (
	"net/http"

	"tryonapp/models"
	"tryonapp/services"
	"tryonapp/tryon"

	"github.com/go-playground/validator"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func ValidateCaptureSource(fl validator.FieldLevel) bool {
	_, err := models.ParseCaptureSource(fl.Field().String())
	return err == nil
}

func SetupServer(
	registry *tryon.Registry,
	pushTokens *services.PushTokenStore,
	jwtSecret string,
	logger zerolog.Logger,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	v := validator.New()
	v.RegisterValidation("category", models.ValidateCategoryFilter)
	v.RegisterValidation("capture_source", ValidateCaptureSource)
	v.RegisterValidation("platform", models.ValidatePlatform)
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__registry", registry)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, models.MessageResponse{Message: "ok"})
	})

	tryOnGroup := e.Group("/tryon", echojwt.JWT([]byte(jwtSecret)), UserSessionMiddleware)
	controller := TryOnController{PushTokens: pushTokens, Logger: logger}
	controller.TryOnRoutes(tryOnGroup)

	return e
}
