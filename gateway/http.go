package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core/attendance"
)

// HTTPGateway talks to the touchline API with a bearer token.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Gateway = (*HTTPGateway)(nil) // interface compliance check

// NewHTTPGateway returns a gateway for the API at baseURL. A nil client gets a 10s timeout.
func NewHTTPGateway(baseURL, token string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGateway{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, client: client}
}

func (g *HTTPGateway) attendancePath(matchID string, userID ...string) string {
	p := "/v1/matches/" + url.PathEscape(matchID) + "/attendance"
	if len(userID) > 0 {
		p += "/" + url.PathEscape(userID[0])
	}
	return p
}

func (g *HTTPGateway) ReadAttendanceStatus(ctx context.Context, matchID, userID string) (attendance.Status, error) {
	var res struct {
		Status attendance.Status `json:"status"`
	}
	if err := g.do(ctx, "read attendance status", http.MethodGet, g.attendancePath(matchID, userID), nil, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}

func (g *HTTPGateway) ReadAttendanceList(ctx context.Context, matchID string) (attendance.List, error) {
	var list attendance.List
	if err := g.do(ctx, "read attendance list", http.MethodGet, g.attendancePath(matchID), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (g *HTTPGateway) WriteAttendanceStatus(ctx context.Context, matchID, userID string, status attendance.Status) error {
	body := attendance.SetStatus{Status: string(status)}
	return g.do(ctx, "write attendance status", http.MethodPut, g.attendancePath(matchID, userID), body, nil)
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &TransportError{Op: op, Err: errors.Wrap(err, "encoding request")}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: errors.Wrap(err, "building request")}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: errors.Wrap(err, "reading response")}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return &TransportError{Op: op, Err: fmt.Errorf("server error: %s", errorMessage(resp.StatusCode, raw))}
	case resp.StatusCode >= http.StatusBadRequest:
		return &RejectionError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	if out != nil && len(raw) > 0 {
		if err = json.Unmarshal(raw, out); err != nil {
			return &TransportError{Op: op, Err: errors.Wrap(err, "decoding response")}
		}
	}
	return nil
}

// errorMessage extracts the message of an API error body:
// {"error": "..."}, {"message": "..."} or a {field: error} map.
func errorMessage(code int, raw []byte) string {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj) > 0 {
		for _, k := range []string{"error", "message"} {
			if msg, ok := obj[k].(string); ok && len(obj) == 1 {
				return msg
			}
		}
		fields := make([]string, 0, len(obj))
		for fld, msg := range obj {
			fields = append(fields, fmt.Sprintf("%s: %v", fld, msg))
		}
		sort.Strings(fields)
		return strings.Join(fields, "; ")
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return msg
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return http.StatusText(code)
}
