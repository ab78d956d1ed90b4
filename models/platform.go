package models

import (
	"strings"

	"github.com/go-playground/validator"
)

// Platform is the device family a push token was issued for.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func ParsePlatform(value string) (Platform, bool) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(value))); p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return p, true
	}
	return "", false
}

func ValidatePlatform(fl validator.FieldLevel) bool {
	_, ok := ParsePlatform(fl.Field().String())
	return ok
}
