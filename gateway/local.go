package gateway

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/user"
)

// LocalGateway serves the synchronizer from an in-process attendance service.
type LocalGateway struct {
	svc attendance.Service
}

var _ Gateway = (*LocalGateway)(nil) // interface compliance check

func NewLocalGateway(svc attendance.Service) *LocalGateway {
	return &LocalGateway{svc: svc}
}

func (g *LocalGateway) ReadAttendanceStatus(ctx context.Context, matchID, userID string) (attendance.Status, error) {
	st, err := g.svc.Status(ctx, matchID, userID)
	if err != nil {
		return "", classify("read attendance status", err)
	}
	return st, nil
}

func (g *LocalGateway) ReadAttendanceList(ctx context.Context, matchID string) (attendance.List, error) {
	list, err := g.svc.List(ctx, matchID)
	if err != nil {
		return nil, classify("read attendance list", err)
	}
	return list, nil
}

func (g *LocalGateway) WriteAttendanceStatus(ctx context.Context, matchID, userID string, status attendance.Status) error {
	if _, err := g.svc.Set(ctx, matchID, userID, status); err != nil {
		return classify("write attendance status", err)
	}
	return nil
}

// classify maps service errors the way the API maps them to status codes.
func classify(op string, err error) error {
	cause := errors.Cause(err)
	switch cause {
	case match.ErrNotFound, user.ErrNotFound:
		return &RejectionError{Op: op, StatusCode: http.StatusNotFound, Message: cause.Error()}
	case core.ErrForbidden:
		return &RejectionError{Op: op, StatusCode: http.StatusForbidden, Message: cause.Error()}
	}
	if core.IsValidationError(err) {
		return &RejectionError{Op: op, StatusCode: http.StatusBadRequest, Message: cause.Error()}
	}
	return &TransportError{Op: op, Err: err}
}
