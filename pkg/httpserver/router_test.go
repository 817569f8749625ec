package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []notifications.Message
}

func (s *recordingSender) Send(_ context.Context, msg notifications.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func newManager(t *testing.T, sender notifications.ChannelSender) *notifications.Manager {
	t.Helper()
	orch, err := notifications.NewOrchestrator(
		notifications.NewMemoryStorage(),
		notifications.NewMemoryDigestQueue(),
		notifications.WithSender(notifications.ChannelEmail, sender),
	)
	require.NoError(t, err)
	m, err := notifications.NewManager(notifications.NewRouter(nil, notifications.NewMemoryHistory()), orch)
	require.NoError(t, err)
	return m
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	failing := httpserver.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("down") }}
	ok := httpserver.Check{Name: "postgres", Fn: func(context.Context) error { return nil }}

	h := httpserver.NewRouter(newManager(t, &recordingSender{}), httpserver.WithReadinessChecks(ok))
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"postgres":"ok"}}`, rec.Body.String())

	h = httpserver.NewRouter(newManager(t, &recordingSender{}), httpserver.WithReadinessChecks(ok, failing))
	rec = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not_ready","checks":{"postgres":"ok","redis":"down"}}`, rec.Body.String())
}

func TestRouter_RouteAndList(t *testing.T) {
	sender := &recordingSender{}
	h := httpserver.NewRouter(newManager(t, sender))

	body := `{"user_id":"u1","template":"welcome","priority":"high","recipients":{"email":"u1@example.com"}}`
	rec := do(t, h, http.MethodPost, "/v1/notifications", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Status   string `json:"status"`
		Mode     string `json:"mode"`
		Channels []struct {
			NotificationID string `json:"notification_id"`
			Channel        string `json:"channel"`
			Status         string `json:"status"`
		} `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "immediate", res.Mode)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, "email", res.Channels[0].Channel)
	assert.Equal(t, "sent", res.Channels[0].Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "u1@example.com", sender.sent[0].Recipient)

	rec = do(t, h, http.MethodGet, "/v1/users/u1/notifications?status=sent&channel=email&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []notifications.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, res.Channels[0].NotificationID, list[0].ID)

	rec = do(t, h, http.MethodGet, "/v1/users/u1/notifications/"+list[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got notifications.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, notifications.StatusSent, got.Status)

	rec = do(t, h, http.MethodGet, "/v1/users/u2/notifications", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/users/u1/notifications/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_BadRequests(t *testing.T) {
	h := httpserver.NewRouter(newManager(t, &recordingSender{}))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"malformed json", http.MethodPost, "/v1/notifications", `{`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/notifications", `{"user_id":"u1","template":"x","extra":1}`, http.StatusBadRequest},
		{"invalid request is rejected", http.MethodPost, "/v1/notifications", `{"template":"welcome"}`, http.StatusUnprocessableEntity},
		{"unknown status", http.MethodGet, "/v1/users/u1/notifications?status=lost", "", http.StatusBadRequest},
		{"unknown channel", http.MethodGet, "/v1/users/u1/notifications?channel=fax", "", http.StatusBadRequest},
		{"bad since", http.MethodGet, "/v1/users/u1/notifications?since=yesterday", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/v1/users/u1/notifications?limit=0", "", http.StatusBadRequest},
		{"bad offset", http.MethodGet, "/v1/users/u1/notifications?offset=-1", "", http.StatusBadRequest},
		{"events not mounted", http.MethodPost, "/v1/events", `{}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/notifications", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

type fakePublisher struct {
	got []events.Event
	err error
}

func (p *fakePublisher) EnqueueEvent(_ context.Context, e events.Event) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if _, err := events.Translate(e); err != nil {
		return "", err
	}
	p.got = append(p.got, e)
	return "task-1", nil
}

func TestRouter_Events(t *testing.T) {
	pub := &fakePublisher{}
	h := httpserver.NewRouter(newManager(t, &recordingSender{}), httpserver.WithEventPublisher(pub))

	rec := do(t, h, http.MethodPost, "/v1/events", `{"name":"match.found","user_id":"u1","data":{"skill":"Go"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"task_id":"task-1"}`, rec.Body.String())
	require.Len(t, pub.got, 1)
	assert.Equal(t, "Go", pub.got[0].Data["skill"])

	rec = do(t, h, http.MethodPost, "/v1/events", `{"name":"nope","user_id":"u1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	pub.err = errors.New("redis down")
	rec = do(t, h, http.MethodPost, "/v1/events", `{"name":"match.found","user_id":"u1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
