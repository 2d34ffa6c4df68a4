package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
)

const contextKey = "echora_claims"

// Middleware parses the Authorization: Bearer <token> header, verifies
// it, and stores the resulting Claims in the echo context for
// downstream handlers to read via FromContext.
func Middleware(issuer *Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return apperror.Authenticationf("Missing authorization header")
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return apperror.Authenticationf("Invalid authorization header format")
			}
			claims, err := issuer.Verify(token)
			if err != nil {
				return apperror.Authenticationf("Invalid token")
			}
			c.Set(contextKey, claims)
			return next(c)
		}
	}
}

// FromContext returns the Claims attached by Middleware. It panics if
// called on a route not protected by Middleware, signalling a routing
// bug rather than a runtime condition to recover from.
func FromContext(c echo.Context) *Claims {
	return c.Get(contextKey).(*Claims)
}
