package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	apperrors "github.com/scstanton20/tago-analysis-worker/internal/errors"
)

const identityContextKey = "identity"

// requireAuth reads the externally-issued identity cookie and resolves
// the full identity. Requests without a valid cookie get 401.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := s.cookies.Get(c.Request(), identityCookieName)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		}
		userID, _ := cookie.Values["user_id"].(string)
		if userID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		}

		identity, err := s.resolver.Resolve(c.Request().Context(), userID)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unknown user"})
		}

		c.Set(identityContextKey, identity)
		return next(c)
	}
}

// requireAdmin guards the user-management operations.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := currentIdentity(c)
		if !identity.IsAdmin() {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "admin access required"})
		}
		return next(c)
	}
}

func currentIdentity(c echo.Context) domain.Identity {
	identity, _ := c.Get(identityContextKey).(domain.Identity)
	return identity
}

// writeError maps a structured error to its HTTP response. Raw internal
// causes never reach the caller.
func writeError(c echo.Context, err error) error {
	structured := apperrors.AsStructuredError(err)
	return c.JSON(structured.HTTPStatus(), structured.ToResponse())
}
