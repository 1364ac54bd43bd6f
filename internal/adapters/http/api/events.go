package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/aggregator/internal/domain/model"
)

// EventsDependencies lists stored records.
type EventsDependencies interface {
	Events(ctx context.Context, topic string) ([]model.Record, error)
}

// EventsHandler handles event listing requests.
type EventsHandler struct {
	deps EventsDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventsDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleGetEvents handles GET /events[?topic=t]. Without a topic every record
// is returned ordered by topic then timestamp.
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_events"

	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	recs, err := h.deps.Events(r.Context(), topic)
	if err != nil {
		writeDependencyError(w, op, err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: recs})
}
