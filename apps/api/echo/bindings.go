package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/fivesaside/touchline/core"
)

var orderingParam = "ordering"

// bindOrdering reads "?ordering=field,-other", keeping only allowed fields.
func bindOrdering(ctx echo.Context, allowed []string) []core.DBOrdering {
	return core.ParseOrderings(ctx.QueryParam(orderingParam), allowed...)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}

	StatusResponse struct {
		MatchID string `json:"match_id"`
		UserID  string `json:"user_id"`
		Status  string `json:"status"`
	}
)
