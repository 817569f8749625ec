package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 1 << 20
)

type handlers struct {
	svc       NotificationService
	publisher EventPublisher
	logger    *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type channelResponse struct {
	NotificationID string `json:"notification_id,omitempty"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	Error          string `json:"error,omitempty"`
}

type resultResponse struct {
	Status        string            `json:"status"`
	Mode          string            `json:"mode,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	ScheduledFor  *time.Time        `json:"scheduled_for,omitempty"`
	DigestEntryID string            `json:"digest_entry_id,omitempty"`
	Channels      []channelResponse `json:"channels,omitempty"`
}

func newResultResponse(res notifications.Result) resultResponse {
	out := resultResponse{
		Status:        res.Status.String(),
		Reason:        res.Reason,
		ScheduledFor:  res.ScheduledFor,
		DigestEntryID: res.DigestEntryID,
	}
	if res.Mode != 0 {
		out.Mode = res.Mode.String()
	}
	for _, c := range res.Channels {
		cr := channelResponse{
			NotificationID: c.NotificationID,
			Channel:        c.Channel.String(),
			Status:         string(c.Status),
			Attempts:       c.Attempts,
		}
		if c.Err != nil {
			cr.Error = c.Err.Error()
		}
		out.Channels = append(out.Channels, cr)
	}
	return out
}

// routeNotification routes one request synchronously. Rejected requests
// answer 422; persistence failures 500.
func (h *handlers) routeNotification(w http.ResponseWriter, r *http.Request) {
	var req notifications.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.svc.RouteAndDispatch(r.Context(), req)
	if err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelError, "Routing request failed",
			logger.UserID(req.UserID),
			logger.Template(req.Template),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, errors.New("failed to dispatch notification"))
		return
	}

	status := http.StatusOK
	if res.Status == notifications.ResultRejected {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, newResultResponse(res))
}

func (h *handlers) publishEvent(w http.ResponseWriter, r *http.Request) {
	var e events.Event
	if err := decodeJSON(w, r, &e); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	taskID, err := h.publisher.EnqueueEvent(r.Context(), e)
	switch {
	case errors.Is(err, events.ErrUnknownEvent), errors.Is(err, events.ErrInvalidEvent):
		writeError(w, http.StatusUnprocessableEntity, err)
	case err != nil:
		h.logger.LogAttrs(r.Context(), slog.LevelError, "Failed to enqueue event",
			logger.EventType(e.Name),
			logger.UserID(e.UserID),
			logger.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, errors.New("failed to enqueue event"))
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
	}
}

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	list, err := h.svc.List(r.Context(), chi.URLParam(r, "userID"), opts)
	if err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelError, "Failed to list notifications", logger.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("failed to list notifications"))
		return
	}
	if list == nil {
		list = []notifications.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "notificationID"))
	if errors.Is(err, notifications.ErrNotificationNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelError, "Failed to get notification", logger.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("failed to get notification"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// parseListOptions reads status, channel and type (comma separated), since
// (RFC 3339), limit and offset.
func parseListOptions(r *http.Request) (notifications.ListOptions, error) {
	q := r.URL.Query()
	opts := notifications.ListOptions{Limit: defaultListLimit, Types: splitList(q.Get("type"))}

	for _, s := range splitList(q.Get("status")) {
		st := notifications.Status(s)
		switch st {
		case notifications.StatusPending, notifications.StatusSent, notifications.StatusFailed,
			notifications.StatusDigested, notifications.StatusCancelled:
			opts.Statuses = append(opts.Statuses, st)
		default:
			return opts, errors.New("unknown status " + strconv.Quote(s))
		}
	}
	for _, s := range splitList(q.Get("channel")) {
		ch, err := notifications.ParseChannel(s)
		if err != nil {
			return opts, err
		}
		opts.Channels = append(opts.Channels, ch)
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New("since must be an RFC 3339 timestamp")
		}
		opts.Since = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, errors.New("limit must be a positive integer")
		}
		opts.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
