package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivesaside/touchline/core/attendance"
)

func TestHTTPGateway(t *testing.T) {
	var gotAuth, gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/matches/m1/attendance", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(attendance.List{{UserID: "u1", MatchID: "m1", TeamID: "t1", Status: attendance.Maybe}})
	})
	mux.HandleFunc("/v1/matches/m1/attendance/u1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"status":"absent"}`))
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"user_id":"u1","match_id":"m1","status":"attending"}`))
		}
	})
	mux.HandleFunc("/v1/matches/gone/attendance/u1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"match not found"}`))
	})
	mux.HandleFunc("/v1/matches/m1/attendance/u2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"status must be one of: attending, absent, maybe"}`))
	})
	mux.HandleFunc("/v1/matches/boom/attendance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	gw := NewHTTPGateway(srv.URL+"/", "tok", nil)

	list, err := gw.ReadAttendanceList(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, attendance.List{{UserID: "u1", MatchID: "m1", TeamID: "t1", Status: attendance.Maybe}}, list)

	st, err := gw.ReadAttendanceStatus(ctx, "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Absent, st)

	require.NoError(t, gw.WriteAttendanceStatus(ctx, "m1", "u1", attendance.Attending))
	assert.JSONEq(t, `{"status":"attending"}`, gotBody)

	err = gw.WriteAttendanceStatus(ctx, "gone", "u1", attendance.Attending)
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Equal(t, "match not found", err.Error())

	err = gw.WriteAttendanceStatus(ctx, "m1", "u2", attendance.Attending)
	assert.True(t, IsRejection(err))
	assert.Equal(t, "status: status must be one of: attending, absent, maybe", err.Error())

	_, err = gw.ReadAttendanceList(ctx, "boom")
	assert.True(t, IsTransport(err))
	assert.False(t, IsRejection(err))
}

func TestHTTPGateway_TransportErrors(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	gw := NewHTTPGateway(slow.URL, "", &http.Client{Timeout: 20 * time.Millisecond})
	_, err := gw.ReadAttendanceList(context.Background(), "m1")
	assert.True(t, IsTransport(err))

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	gw = NewHTTPGateway(closed.URL, "", nil)
	err = gw.WriteAttendanceStatus(context.Background(), "m1", "u1", attendance.Maybe)
	assert.True(t, IsTransport(err))
}
