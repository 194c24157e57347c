package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.roastlive/internal/model"
)

type moderateMessageParams struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type moderateProfileParams struct {
	Username string `json:"username" validate:"required,max=64"`
	Bio      string `json:"bio" validate:"max=1000"`
}

func ModerateMessage(scorer Scorer) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &moderateMessageParams{}
		if err := bindBody(c, params); err != nil {
			return err
		}
		if err := model.Validate(params); err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, scorer.Score(params.Message))
	}
}

func ModerateProfile(scorer Scorer) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &moderateProfileParams{}
		if err := bindBody(c, params); err != nil {
			return err
		}
		if err := model.Validate(params); err != nil {
			return httpError(err)
		}
		text := strings.TrimSpace(params.Username + " " + params.Bio)
		return c.JSON(http.StatusOK, scorer.Score(text))
	}
}
