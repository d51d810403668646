package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/randalmurphal/grouphub/pkg/grouphub/bus"
	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/pagination"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	q, err := pagination.ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.store.ListWebhooksPage(r.Context(), chi.URLParam(r, "groupID"), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := page.SetGuides(r.URL.Path, q.Params()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var hook store.Webhook
	if err := decodeBody(w, r, &hook); err != nil {
		s.writeError(w, r, err)
		return
	}
	hook.GroupID = chi.URLParam(r, "groupID")

	created, err := s.store.CreateWebhook(r.Context(), hook)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteWebhook(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listNotifiers(w http.ResponseWriter, r *http.Request) {
	notifiers, err := s.store.ListNotifiers(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifiers)
}

func (s *Server) createNotifier(w http.ResponseWriter, r *http.Request) {
	var n store.Notifier
	if err := decodeBody(w, r, &n); err != nil {
		s.writeError(w, r, err)
		return
	}
	n.GroupID = chi.URLParam(r, "groupID")

	created, err := s.store.CreateNotifier(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deleteNotifier(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteNotifier(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type testEventRequest struct {
	Message string `json:"message"`
}

// testEvent dispatches test_message to the group. Fan-out is queued on a
// request-scoped TaskQueue and runs once the response has been written.
func (s *Server) testEvent(w http.ResponseWriter, r *http.Request) {
	var req testEventRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	queue := bus.NewTaskQueue()
	d := s.newBus(queue)
	groupID := chi.URLParam(r, "groupID")

	if err := d.Dispatch(r.Context(), IntegrationID, groupID, event.TypeTestMessage, nil, req.Message); err != nil {
		s.writeError(w, r, err)
		return
	}
	queue.Close()

	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queue.Len()})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// The client may hang up once it has the response.
	ctx := context.WithoutCancel(r.Context())
	if err := queue.Run(ctx); err != nil {
		s.logger.Warn("background tasks interrupted",
			slog.String("group_id", groupID),
			slog.String("error", err.Error()))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return gherrors.Invalid("body", "%v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case gherrors.IsInvalid(err):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bus.ErrQueueFull), errors.Is(err, bus.ErrExecutorClosed), errors.Is(err, store.ErrStoreClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}
