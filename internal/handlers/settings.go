package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.roastlive/internal/auth"
	"uk.co.dudmesh.roastlive/internal/model"
)

func settingsOwner(c echo.Context) (model.UserID, error) {
	userID := model.UserID(c.Param("userId"))
	if userID != auth.UserID(c) {
		return "", httpError(model.ErrorForbidden)
	}
	return userID, nil
}

// GetSettings is open to every signed in user, since viewers read the slow
// mode of the stream host.
func GetSettings(store SettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		settings, err := store.GetSettings(c.Request().Context(), model.UserID(c.Param("userId")))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, settings)
	}
}

func InitializeSettings(store SettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := settingsOwner(c)
		if err != nil {
			return err
		}
		settings, created, err := store.InitializeSettings(c.Request().Context(), userID)
		if err != nil {
			return httpError(err)
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		return c.JSON(status, settings)
	}
}

func UpdateSettings(store SettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := settingsOwner(c)
		if err != nil {
			return err
		}
		patch := &model.SettingsPatch{}
		if err := bindBody(c, patch); err != nil {
			return err
		}
		settings, err := store.UpdateSettings(c.Request().Context(), userID, patch)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, settings)
	}
}
