package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/fivesaside/touchline/core/user"
)

// adminMiddleware lets through admins holding any of roles (any admin when roles is empty).
func adminMiddleware(svc user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsAdmin() {
				return errHTTPForbidden
			}
			if len(roles) == 0 {
				return next(ctx)
			}
			for _, role := range roles {
				if usr.RoleStartsWith(role) {
					return next(ctx)
				}
			}
			return errHTTPForbidden
		}
	}
}

// captainOrAdminMiddleware lets through admins and captains of any team.
// Handlers still check which teams a captain may manage.
func captainOrAdminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if usr.IsAdmin() || usr.IsCaptain() {
				return next(ctx)
			}
			return errHTTPForbidden
		}
	}
}
