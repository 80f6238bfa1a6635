package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths are reachable without a bearer token.
var publicPaths = map[string]bool{
	"/api/health":     true,
	"/api/test":       true,
	"/api/auth/login": true,
}

// UploadsPrefix is where uploaded photos are served. Browsers load them via
// <img> tags, which cannot carry an Authorization header.
const UploadsPrefix = "/uploads/"

// AuthSkipper reports whether the request bypasses authentication. CORS
// preflights are always let through.
func AuthSkipper(c echo.Context) bool {
	if c.Request().Method == "OPTIONS" {
		return true
	}
	return IsPublicPath(c.Request().URL.Path)
}

// IsPublicPath reports whether path is served without authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, UploadsPrefix)
}
