package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/user"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (api *matchAPI) attendanceList(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	list, err := api.attSvc.List(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "listing attendance")
	}
	if list == nil {
		list = attendance.List{}
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *matchAPI) attendanceSummary(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	counts, err := api.attSvc.Summary(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *matchAPI) attendanceExport(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	var buf bytes.Buffer
	if err := api.attSvc.ExportXLSX(ctx.Request().Context(), m.ID, &buf); err != nil {
		return errors.Wrap(err, "exporting attendance")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "attendance-"+m.ID+".xlsx"))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (api *matchAPI) attendanceStatus(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	usr, err := api.attendanceUser(ctx, m, false)
	if err != nil {
		return err
	}
	st, err := api.attSvc.Status(ctx.Request().Context(), m.ID, usr.ID)
	if err != nil {
		return errors.Wrap(err, "reading attendance status")
	}
	return ctx.JSON(http.StatusOK, StatusResponse{MatchID: m.ID, UserID: usr.ID, Status: string(st)})
}

func (api *matchAPI) setAttendance(ctx echo.Context) error {
	m, ok := ctx.Get("object").(match.Match)
	if !ok {
		return errors.Wrap(errMatchNotFoundInCtx, "retrieving object from context")
	}
	usr, err := api.attendanceUser(ctx, m, true)
	if err != nil {
		return err
	}

	var data attendance.SetStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStatus")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.attSvc.Set(ctx.Request().Context(), m.ID, usr.ID, attendance.Status(data.Status))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

// attendanceUser resolves the ":user_id" path param, "me" being the token user.
// Players only see and declare their own status. Captains of either side and admins may read anyone's.
func (api *matchAPI) attendanceUser(ctx echo.Context, m match.Match, write bool) (user.User, error) {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return user.User{}, err
	}
	id := ctx.Param("user_id")
	if id == "me" || id == ctxUsr.ID {
		return ctxUsr, nil
	}
	if write || !ctxUsr.CanManage(m.TeamIDs()...) {
		return user.User{}, errHTTPForbidden
	}

	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errHTTPNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}
