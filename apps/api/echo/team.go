package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/team"
	"github.com/fivesaside/touchline/core/user"
)

var errTeamNotFoundInCtx = errors.New("team object not found in echo.Context")

// maxCrestSize bounds crest uploads.
const maxCrestSize = 2 << 20

type teamAPI struct {
	svc      team.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerTeamAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *teamAPI) {
	tg := g.Group("/teams", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create, adminMiddleware(api.usrSvc))

	dg := tg.Group("/:id", api.teamMiddleware)
	dg.GET("", api.retrieve)
	dg.GET("/members", api.members)
	dg.PUT("", api.update, api.canManageMiddleware)
	dg.PUT("/crest", api.setCrest, api.canManageMiddleware)
	dg.DELETE("", api.destroy, adminMiddleware(api.usrSvc))
}

func (api *teamAPI) query(ctx echo.Context) error {
	filter := new(team.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []team.Team{})
	}
	teams, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, team.OrderingFields))
	if err != nil {
		return errors.Wrap(err, "querying teams")
	}
	if teams == nil {
		teams = []team.Team{}
	}
	return ctx.JSON(http.StatusOK, teams)
}

func (api *teamAPI) create(ctx echo.Context) error {
	var data team.NewTeam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeam")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}
	if err := api.checkCaptain(ctx, data.CaptainID); err != nil {
		return err
	}

	tm, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating team")
	}
	return ctx.JSON(http.StatusCreated, tm)
}

func (api *teamAPI) retrieve(ctx echo.Context) error {
	tm, ok := ctx.Get("object").(team.Team)
	if !ok {
		return errors.Wrap(errTeamNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, tm)
}

func (api *teamAPI) members(ctx echo.Context) error {
	tm, ok := ctx.Get("object").(team.Team)
	if !ok {
		return errors.Wrap(errTeamNotFoundInCtx, "retrieving object from context")
	}
	members, err := api.svc.Members(ctx.Request().Context(), tm.ID)
	if err != nil {
		return errors.Wrap(err, "listing team members")
	}
	if members == nil {
		members = []user.User{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *teamAPI) update(ctx echo.Context) error {
	tm, ok := ctx.Get("object").(team.Team)
	if !ok {
		return errors.Wrap(errTeamNotFoundInCtx, "retrieving object from context")
	}

	var data team.UpdateTeam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeam")
	}
	if data.CaptainID != nil {
		// only admins appoint captains
		ctxUsr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return err
		}
		if !ctxUsr.IsAdmin() {
			return errHTTPForbidden
		}
		if err = api.checkCaptain(ctx, core.CleanString(*data.CaptainID)); err != nil {
			return err
		}
	}

	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, tm, api.validate, api.svc); err != nil {
		return err
	}
	tm, err := api.svc.Update(rctx, tm, data)
	if err != nil {
		return errors.Wrap(err, "updating team")
	}
	return ctx.JSON(http.StatusOK, tm)
}

func (api *teamAPI) setCrest(ctx echo.Context) error {
	tm, ok := ctx.Get("object").(team.Team)
	if !ok {
		return errors.Wrap(errTeamNotFoundInCtx, "retrieving object from context")
	}

	fh, err := ctx.FormFile("crest")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "crest", Error: "this field is required"})
	}
	if fh.Size > maxCrestSize {
		return core.NewValidationError(nil, core.FieldError{Field: "crest", Error: "file is too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening crest")
	}
	defer func() { _ = f.Close() }()

	tm, err = api.svc.SetCrest(ctx.Request().Context(), tm, f, fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tm)
}

func (api *teamAPI) destroy(ctx echo.Context) error {
	tm, ok := ctx.Get("object").(team.Team)
	if !ok {
		return errors.Wrap(errTeamNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), tm.ID); err != nil {
		return errors.Wrap(err, "deleting team")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// checkCaptain reports an unknown captain as a captain_id field error.
func (api *teamAPI) checkCaptain(ctx echo.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if _, err := api.usrSvc.GetByID(ctx.Request().Context(), userID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "captain_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

// teamMiddleware loads the team of the ":id" path param into the context.
func (api *teamAPI) teamMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		tm, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == team.ErrNotFound {
				return errHTTPNotFound
			}
			return errors.Wrap(err, "finding team by ID")
		}
		ctx.Set("object", tm)
		return next(ctx)
	}
}

// canManageMiddleware lets through admins and the captain of the context team.
func (api *teamAPI) canManageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		tm, ok := ctx.Get("object").(team.Team)
		if !ok {
			return errors.Wrap(errTeamNotFoundInCtx, "retrieving object from context")
		}
		usr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return err
		}
		if usr.CanManage(tm.ID) || (tm.CaptainID != "" && tm.CaptainID == usr.ID) {
			return next(ctx)
		}
		return errHTTPForbidden
	}
}
