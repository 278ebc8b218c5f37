package handler

import (
	"context"
	"net/http"

	"github.com/ayo6706/interbank-transfers/internal/api/middleware"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/notify"
	"go.uber.org/zap"
)

const subscriberBuffer = 32

// CustomerLookup finds the user an event stream belongs to.
type CustomerLookup interface {
	Customer(ctx context.Context, userID string) (models.User, error)
}

// EventsHandler streams the caller's transfer completions as server-sent
// events.
type EventsHandler struct {
	hub   *notify.Hub
	users CustomerLookup
}

func NewEventsHandler(hub *notify.Hub, users CustomerLookup) *EventsHandler {
	return &EventsHandler{hub: hub, users: users}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Customer(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, r, http.StatusInternalServerError, "events/streaming-unsupported", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(notify.FrameConnected); err != nil {
		return
	}
	flusher.Flush()

	sub := notify.NewStreamSubscriber(subscriberBuffer)
	handle := h.hub.Register(sub, func(e notify.Event) bool {
		return e.Involves(user.IBAN, user.Phone)
	})
	defer h.hub.Unregister(handle)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			if _, err := w.Write(frame); err != nil {
				zap.L().Debug("event stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
