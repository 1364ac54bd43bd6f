// Package sink forwards accepted events to downstream systems after they
// have been deduplicated.
package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/olivere/elastic"

	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
	"github.com/okian/aggregator/pkg/metrics"
)

const (
	defaultIndex   = "events"
	defaultTimeout = 5 * time.Second
	elasticName    = "elasticsearch"
)

// ErrMissingURL is returned when no Elasticsearch URL is configured.
var ErrMissingURL = errors.New("elasticsearch url is required")

// document is the indexed form of an event.
type document struct {
	Topic     string         `json:"topic"`
	EventID   string         `json:"event_id"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// Elastic indexes each delivered event as one document. The document id is
// derived from the event key, so a redelivery overwrites instead of duplicating.
type Elastic struct {
	client  *elastic.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

// NewElastic creates a sink writing to the Elasticsearch cluster at url.
func NewElastic(url string, opts ...Option) (*Elastic, error) {
	if url == "" {
		return nil, ErrMissingURL
	}

	s := &Elastic{
		index:   defaultIndex,
		timeout: defaultTimeout,
		logger:  logger.Get().Named("sink"),
	}
	for _, opt := range opts {
		opt(s)
	}

	client, err := elastic.NewClient(
		elastic.SetURL(url),
		elastic.SetHttpClient(&http.Client{Timeout: s.timeout}),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create elastic client: %w", err)
	}
	s.client = client

	return s, nil
}

// Deliver indexes e. Errors are returned to the caller for retry.
func (s *Elastic) Deliver(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: matches worker.Sink
	doc := document{
		Topic:     e.Topic,
		EventID:   e.EventID,
		Timestamp: model.CanonicalTimestamp(e.Timestamp),
		Source:    e.Source,
		Payload:   e.Payload,
	}

	res, err := s.client.Index().
		Index(s.index).
		Type("_doc").
		Id(DocumentID(e.Topic, e.EventID)).
		BodyJson(doc).
		Do(ctx)
	if err != nil {
		metrics.RecordSinkDelivery(elasticName, "error")
		return fmt.Errorf("index event %s/%s: %w", e.Topic, e.EventID, err)
	}

	metrics.RecordSinkDelivery(elasticName, "ok")
	s.logger.Debug(ctx, "event indexed",
		logger.String("index", res.Index),
		logger.String("id", res.Id),
		logger.String("result", res.Result),
	)
	return nil
}

// DocumentID builds the document id for an event key.
func DocumentID(topic, eventID string) string {
	return topic + ":" + eventID
}
