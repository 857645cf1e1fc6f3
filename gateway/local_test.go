package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/testutil"
)

func TestLocalGateway(t *testing.T) {
	ctx := context.Background()
	repos := testutil.MemRepos(t)
	svcs := testutil.NewServices(t, repos)
	riv := testutil.CreateTeam(t, repos.Team, "Riverside Rovers", "RIV")
	usr := testutil.CreateUser(t, repos.User, "Ada Obi", "ada", "ada@example.com", "", nil, true, riv.ID)
	m := testutil.CreateMatch(t, repos.Match, riv.ID, "", time.Now().Add(24*time.Hour))

	gw := NewLocalGateway(svcs.Attendance)

	st, err := gw.ReadAttendanceStatus(ctx, m.ID, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.Maybe, st)

	require.NoError(t, gw.WriteAttendanceStatus(ctx, m.ID, usr.ID, attendance.Attending))
	list, err := gw.ReadAttendanceList(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, attendance.Attending, list[0].Status)
	assert.Equal(t, riv.ID, list[0].TeamID)

	tests := []struct {
		name     string
		call     func() error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "unknown match",
			call:     func() error { _, err := gw.ReadAttendanceList(ctx, "missing"); return err },
			wantCode: http.StatusNotFound,
			wantMsg:  "match not found",
		},
		{
			name:     "unknown user",
			call:     func() error { return gw.WriteAttendanceStatus(ctx, m.ID, "missing", attendance.Absent) },
			wantCode: http.StatusNotFound,
			wantMsg:  "user not found",
		},
		{
			name:     "invalid status",
			call:     func() error { return gw.WriteAttendanceStatus(ctx, m.ID, usr.ID, "late") },
			wantCode: http.StatusBadRequest,
			wantMsg:  attendance.ErrInvalidStatus.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.True(t, IsRejection(err), "got %v", err)
			var rErr *RejectionError
			require.True(t, errors.As(err, &rErr))
			assert.Equal(t, tt.wantCode, rErr.StatusCode)
			assert.Equal(t, tt.wantMsg, rErr.Error())
		})
	}
}

func TestClassify(t *testing.T) {
	assert.True(t, IsTransport(classify("op", errors.New("connection reset"))))
	assert.True(t, IsRejection(classify("op", core.ErrForbidden)))
	assert.True(t, IsRejection(classify("op", core.NewValidationError(nil, core.FieldError{Field: "status", Error: "required"}))))
}
