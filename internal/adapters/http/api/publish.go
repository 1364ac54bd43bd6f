package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/aggregator/internal/domain/ingest"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
)

const defaultMaxBodyBytes = 10 << 20

// PublishDependencies admits validated events.
type PublishDependencies interface {
	Publish(ctx context.Context, events []model.Event) (ingest.Result, error)
}

// PublishHandler handles publish requests.
type PublishHandler struct {
	deps         PublishDependencies
	maxBodyBytes int64
	logger       logger.Logger
}

// PublishOption applies a configuration option to the PublishHandler.
type PublishOption func(*PublishHandler)

// WithMaxBodyBytes caps the accepted request body size.
func WithMaxBodyBytes(n int64) PublishOption {
	return func(h *PublishHandler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithLogger sets a custom logger for the publish handler.
func WithLogger(l logger.Logger) PublishOption {
	return func(h *PublishHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewPublishHandler creates a new publish handler.
func NewPublishHandler(deps PublishDependencies, opts ...PublishOption) *PublishHandler {
	h := &PublishHandler{
		deps:         deps,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// eventRequest mirrors the OpenAPI schema for one published event. The
// timestamp is kept as text so that a bad value is a validation failure
// instead of a decode failure.
type eventRequest struct {
	Topic     string          `json:"topic"`
	EventID   string          `json:"event_id"`
	Timestamp string          `json:"timestamp"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

func (e eventRequest) toEvent() (model.Event, error) { //nolint:gocritic // hugeParam
	ev := model.Event{
		Topic:   e.Topic,
		EventID: e.EventID,
		Source:  e.Source,
	}

	if ts := strings.TrimSpace(e.Timestamp); ts != "" {
		parsed, err := model.ParseTimestamp(ts)
		if err != nil {
			return model.Event{}, err
		}
		ev.Timestamp = parsed
	}

	payload, err := model.DecodePayload(e.Payload)
	if err != nil {
		return model.Event{}, err
	}
	ev.Payload = payload

	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// HandlePublish handles POST /publish. The body is one event object or an
// array of them. If any event is invalid the whole request is rejected.
func (h *PublishHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	const op = "api.publish"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", NewKind(op, ErrTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	reqs, err := decodeEvents(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	events := make([]model.Event, 0, len(reqs))
	var problems []string
	for i, req := range reqs {
		ev, err := req.toEvent()
		if err != nil {
			problems = append(problems, fmt.Sprintf("event[%d]: %s", i, err.Error()))
			continue
		}
		events = append(events, ev)
	}
	if len(problems) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed",
			WrapKind(op, ErrValidation, errors.New(strings.Join(problems, "; "))))
		return
	}

	res, err := h.deps.Publish(r.Context(), events)
	if err != nil {
		writeDependencyError(w, op, err)
		return
	}
	if res.Failed > 0 {
		h.logger.Warn(r.Context(), "publish had failures",
			logger.Int("accepted", res.Accepted),
			logger.Int("duplicates", res.Duplicates),
			logger.Int("failed", res.Failed),
		)
	}
	writeJSON(w, http.StatusOK, publishResponse(res))
}

// decodeEvents accepts a single object or an array.
func decodeEvents(body []byte) ([]eventRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	if trimmed[0] == '[' {
		var reqs []eventRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
		return reqs, nil
	}

	var req eventRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return []eventRequest{req}, nil
}
