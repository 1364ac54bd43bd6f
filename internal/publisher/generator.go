package publisher

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Event is the wire form of a published event.
type Event struct {
	Topic     string         `json:"topic"`
	EventID   string         `json:"event_id"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// Expectation is what a cycle should do to the aggregator's counters.
type Expectation struct {
	Received   int
	Unique     int
	Duplicates int
}

// Generator builds event sets. Each Generate call uses a fresh run id so ids
// never collide with earlier cycles.
type Generator struct {
	producerID string
	rnd        *rand.Rand
	now        func() time.Time
}

// NewGenerator creates a generator. A nil rnd uses a randomly seeded source.
func NewGenerator(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		producerID: uuid.NewString(),
		rnd:        rnd,
		now:        time.Now,
	}
}

// Generate returns total events of which floor(total*(1-dupRate)) carry
// distinct ids; the rest repeat ids drawn from those. The result is shuffled.
func (g *Generator) Generate(total int, dupRate float64, topic, source string) ([]Event, Expectation) {
	unique := int(float64(total) * (1 - dupRate))
	if unique < 1 {
		unique = 1
	}
	if unique > total {
		unique = total
	}
	runID := uuid.NewString()[:8]

	events := make([]Event, 0, total)
	for i := 0; i < unique; i++ {
		events = append(events, g.event(runID, i, topic, source))
	}
	for i := unique; i < total; i++ {
		events = append(events, g.event(runID, g.rnd.IntN(unique), topic, source))
	}
	g.rnd.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

	return events, Expectation{Received: total, Unique: unique, Duplicates: total - unique}
}

func (g *Generator) event(runID string, index int, topic, source string) Event {
	return Event{
		Topic:     topic,
		EventID:   fmt.Sprintf("evt-%s-%d", runID, index),
		Timestamp: g.now().UTC().Format(time.RFC3339Nano),
		Source:    source,
		Payload: map[string]any{
			"index":       index,
			"producer_id": g.producerID,
			"data":        fmt.Sprintf("sample-data-%d", index),
		},
	}
}

// Batches splits events into consecutive slices of at most size.
func Batches(events []Event, size int) [][]Event {
	if size <= 0 {
		size = len(events)
	}
	out := make([][]Event, 0, (len(events)+size-1)/max(size, 1))
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		out = append(out, events[start:end])
	}
	return out
}
