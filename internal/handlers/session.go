package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.roastlive/internal/model"
)

func CreateSession(authenticator Authenticator, issuer TokenIssuer, settings SettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.CreateSessionParams{}
		if err := bindBody(c, params); err != nil {
			return err
		}
		if err := model.Validate(params); err != nil {
			return httpError(err)
		}

		ctx := c.Request().Context()
		if err := authenticator.Authenticate(ctx, params.UserID, params.Password); err != nil {
			return httpError(err)
		}
		session, err := issuer.Issue(params.UserID)
		if err != nil {
			return err
		}
		if _, created, err := settings.InitializeSettings(ctx, params.UserID); err != nil {
			log.Warnf("initializing settings for %s: %+v", params.UserID, err)
		} else if created {
			log.Infof("created settings for %s", params.UserID)
		}
		return c.JSON(http.StatusOK, session)
	}
}

func KeySet(issuer TokenIssuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		keySet, err := issuer.KeySet()
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, keySet)
	}
}
