// Package gateway reads and writes attendance against the source of truth.
package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core/attendance"
)

// Gateway is the remote data gateway used by the attendance synchronizer.
// Every failure is either a *TransportError or a *RejectionError.
type Gateway interface {
	ReadAttendanceStatus(ctx context.Context, matchID, userID string) (attendance.Status, error)
	ReadAttendanceList(ctx context.Context, matchID string) (attendance.List, error)
	WriteAttendanceStatus(ctx context.Context, matchID, userID string, status attendance.Status) error
}

// TransportError means the request did not get an answer: network failure, timeout or server error.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError means the server refused the request. Message is the server's, verbatim.
type RejectionError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return e.Message
}

func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

func IsRejection(err error) bool {
	var rErr *RejectionError
	return errors.As(err, &rErr)
}
