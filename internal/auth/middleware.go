package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.roastlive/internal/model"
)

const contextUserID = "user_id"

type Verifier interface {
	Verify(token string) (model.UserID, error)
}

// TokenFrom reads a bearer token from the Authorization header, falling back
// to the token query parameter used by websocket clients.
func TokenFrom(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.QueryParam("token")
}

func Middleware(verifier Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := TokenFrom(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(contextUserID, userID)
			return next(c)
		}
	}
}

// UserID returns the user authenticated by Middleware.
func UserID(c echo.Context) model.UserID {
	userID, _ := c.Get(contextUserID).(model.UserID)
	return userID
}
