package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication and tenant resolution.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// PublicSkipper matches on the registered route, so it also works as the
// Skipper of echo and tenant middleware.
func PublicSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
