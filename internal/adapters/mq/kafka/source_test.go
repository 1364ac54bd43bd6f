package kafka_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/aggregator/internal/adapters/mq/kafka"
	"github.com/okian/aggregator/internal/domain/ingest"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// fakeReader serves a fixed list of messages and then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafkago.Message
	fetchErrs int
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafkago.Message{}, errors.New("broker unavailable")
	}
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]model.Event
}

func (p *capturePublisher) Publish(_ context.Context, events []model.Event) ingest.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, events)
	return ingest.Result{Accepted: len(events)}
}

func (p *capturePublisher) Batches() [][]model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]model.Event(nil), p.batches...)
}

func runUntilCommitted(t *testing.T, src *kafka.Source, r *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(r.Committed()) < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop after cancel")
	}
}

func TestSource(t *testing.T) {
	convey.Convey("Given a Kafka source over a fake reader", t, func() {
		pub := &capturePublisher{}

		convey.Convey("When a message holds a single event and another holds an array", func() {
			r := &fakeReader{messages: []kafkago.Message{
				{Offset: 1, Value: []byte(`{"topic":"a","event_id":"1","timestamp":"2024-01-01T00:00:00Z","source":"k","payload":{}}`)},
				{Offset: 2, Value: []byte(`[{"topic":"a","event_id":"2","timestamp":"2024-01-01T00:00:01Z","source":"k"},{"topic":"b","event_id":"3","timestamp":"2024-01-01T00:00:02Z","source":"k"}]`)},
			}}
			src := kafka.NewSource(kafka.Config{}, pub, kafka.WithReader(r))
			runUntilCommitted(t, src, r, 2)

			convey.Convey("Then both should be published and committed in order", func() {
				batches := pub.Batches()
				convey.So(len(batches), convey.ShouldEqual, 2)
				convey.So(len(batches[0]), convey.ShouldEqual, 1)
				convey.So(batches[0][0].EventID, convey.ShouldEqual, "1")
				convey.So(len(batches[1]), convey.ShouldEqual, 2)
				convey.So(batches[1][1].Topic, convey.ShouldEqual, "b")
				convey.So(r.Committed(), convey.ShouldResemble, []int64{1, 2})
			})
		})

		convey.Convey("When a message is malformed", func() {
			r := &fakeReader{messages: []kafkago.Message{
				{Offset: 7, Value: []byte(`not json`)},
				{Offset: 8, Value: []byte(`{"topic":"a","event_id":"9","timestamp":"2024-01-01T00:00:00Z","source":"k"}`)},
			}}
			src := kafka.NewSource(kafka.Config{}, pub, kafka.WithReader(r))
			runUntilCommitted(t, src, r, 2)

			convey.Convey("Then it should be committed and skipped", func() {
				convey.So(r.Committed(), convey.ShouldResemble, []int64{7, 8})
				batches := pub.Batches()
				convey.So(len(batches), convey.ShouldEqual, 1)
				convey.So(batches[0][0].EventID, convey.ShouldEqual, "9")
			})
		})

		convey.Convey("When fetching fails transiently", func() {
			r := &fakeReader{
				fetchErrs: 2,
				messages: []kafkago.Message{
					{Offset: 3, Value: []byte(`{"topic":"a","event_id":"1","timestamp":"2024-01-01T00:00:00Z","source":"k"}`)},
				},
			}
			src := kafka.NewSource(kafka.Config{}, pub, kafka.WithReader(r), kafka.WithRetryDelay(time.Millisecond))
			runUntilCommitted(t, src, r, 1)

			convey.Convey("Then the source should recover", func() {
				convey.So(r.Committed(), convey.ShouldResemble, []int64{3})
				convey.So(len(pub.Batches()), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the source is closed", func() {
			r := &fakeReader{}
			src := kafka.NewSource(kafka.Config{}, pub, kafka.WithReader(r))
			convey.So(src.Close(), convey.ShouldBeNil)
			convey.So(r.closed, convey.ShouldBeTrue)
		})
	})
}

func TestDecode(t *testing.T) {
	convey.Convey("Given raw message values", t, func() {
		convey.Convey("An object decodes to one event", func() {
			events, err := kafka.Decode([]byte(`  {"topic":"a","event_id":"1"}`))
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(events), convey.ShouldEqual, 1)
		})

		convey.Convey("An empty array decodes to no events", func() {
			events, err := kafka.Decode([]byte(`[]`))
			convey.So(err, convey.ShouldBeNil)
			convey.So(events, convey.ShouldBeEmpty)
		})

		convey.Convey("Naive timestamps and large integers survive decoding", func() {
			events, err := kafka.Decode([]byte(`{"topic":"a","event_id":"1","timestamp":"2025-10-20T00:00:00","source":"k","payload":{"id":12345678901234567890}}`))
			convey.So(err, convey.ShouldBeNil)
			convey.So(events[0].Timestamp.Equal(time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)

			rec, err := events[0].ToRecord()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(rec.Payload), convey.ShouldEqual, `{"id":12345678901234567890}`)
		})

		convey.Convey("Blank and broken values are rejected", func() {
			_, err := kafka.Decode([]byte("   "))
			convey.So(errors.Is(err, kafka.ErrMalformedMessage), convey.ShouldBeTrue)

			_, err = kafka.Decode([]byte(`{"topic":`))
			convey.So(errors.Is(err, kafka.ErrMalformedMessage), convey.ShouldBeTrue)

			_, err = kafka.Decode([]byte(`"string"`))
			convey.So(errors.Is(err, kafka.ErrMalformedMessage), convey.ShouldBeTrue)

			_, err = kafka.Decode([]byte(`{"topic":"a","event_id":"1","timestamp":"soon","source":"k"}`))
			convey.So(errors.Is(err, kafka.ErrMalformedMessage), convey.ShouldBeTrue)
		})
	})
}
