package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/user"
)

var errMatchNotFoundInCtx = errors.New("match object not found in echo.Context")

type matchAPI struct {
	svc      match.Service
	attSvc   attendance.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerMatchAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *matchAPI) {
	mg := g.Group("/matches", jwt)
	mg.GET("", api.query)
	mg.POST("", api.create, captainOrAdminMiddleware(api.usrSvc))

	dg := mg.Group("/:id", api.matchMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, api.canManageMiddleware)
	dg.DELETE("", api.destroy, api.canManageMiddleware)
	dg.GET("/qr.png", api.qrCode)

	// attendance
	dg.GET("/attendance", api.attendanceList)
	dg.GET("/attendance/summary", api.attendanceSummary)
	dg.GET("/attendance/export.xlsx", api.attendanceExport, api.canManageMiddleware)
	dg.GET("/attendance/:user_id", api.attendanceStatus)
	dg.PUT("/attendance/:user_id", api.setAttendance)
}

func (api *matchAPI) query(ctx echo.Context) error {
	filter := new(match.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return core.NewValidationError(errors.New("invalid filter, dates must be RFC 3339"))
	}
	matches, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, match.OrderingFields))
	if err != nil {
		return errors.Wrap(err, "querying matches")
	}
	if matches == nil {
		matches = []match.Match{}
	}
	return ctx.JSON(http.StatusOK, matches)
}

func (api *matchAPI) create(ctx echo.Context) error {
	var data match.NewMatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMatch")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if !ctxUsr.CanManage(data.HomeTeamID, data.AwayTeamID) {
		return errHTTPForbidden
	}

	m, err := api.svc.Create(rctx, data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "creating match")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *matchAPI) retrieve(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *matchAPI) update(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}

	var data match.UpdateMatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMatch")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, m, api.validate, api.svc); err != nil {
		return err
	}

	// a captain cannot hand the fixture over to teams they do not manage
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if data.HomeTeamID != m.HomeTeamID && !ctxUsr.CanManage(data.HomeTeamID) {
		return errHTTPForbidden
	}

	m, err = api.svc.Update(rctx, m, data)
	if err != nil {
		return errors.Wrap(err, "updating match")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *matchAPI) destroy(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), m.ID); err != nil {
		return errors.Wrap(err, "deleting match")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *matchAPI) qrCode(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	size, _ := strconv.Atoi(ctx.QueryParam("size"))
	if size > 1024 {
		size = 1024
	}
	png, err := api.svc.ShareQR(m, size)
	if err != nil {
		return err
	}
	return ctx.Blob(http.StatusOK, "image/png", png)
}

// matchMiddleware loads the match of the ":id" path param into the context.
func (api *matchAPI) matchMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		m, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == match.ErrNotFound {
				return errHTTPNotFound
			}
			return errors.Wrap(err, "finding match by ID")
		}
		ctx.Set("object", m)
		return next(ctx)
	}
}

// canManageMiddleware lets through admins and captains of either side of the context match.
func (api *matchAPI) canManageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		m, ok := ctx.Get("object").(match.Match)
		if !ok {
			return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
		}
		usr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return err
		}
		if usr.CanManage(m.TeamIDs()...) {
			return next(ctx)
		}
		return errHTTPForbidden
	}
}
