// Package dedupetest holds the behavioral suite every dedupe.Store backend must pass.
package dedupetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/model"
)

// Factory returns a fresh, empty store. It is called once per leaf scenario.
type Factory func(t *testing.T) dedupe.Store

// Record builds a record with a canonical timestamp offset from a fixed base.
func Record(topic, eventID string, offset time.Duration) model.Record {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Record{
		Topic:     topic,
		EventID:   eventID,
		Timestamp: model.CanonicalTimestamp(base.Add(offset)),
		Source:    "dedupetest",
		Payload:   json.RawMessage(fmt.Sprintf(`{"id":%q}`, eventID)),
	}
}

// Run executes the store contract against stores produced by newStore.
func Run(t *testing.T, name string, newStore Factory) {
	ctx := context.Background()

	Convey("Given an empty "+name+" store", t, func() {
		store := newStore(t)
		Reset(func() { _ = store.Close() })

		Convey("Then it should report nothing stored", func() {
			n, err := store.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)

			topics, err := store.Topics(ctx)
			So(err, ShouldBeNil)
			So(topics, ShouldBeEmpty)

			recs, err := store.ListByTopic(ctx, "")
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})

		Convey("When a new record is added", func() {
			added, err := store.AddIfNew(ctx, Record("orders", "e1", 0))
			So(err, ShouldBeNil)
			So(added, ShouldBeTrue)

			Convey("Then it should exist and be counted", func() {
				ok, err := store.Exists(ctx, "orders", "e1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)

				ok, err = store.Exists(ctx, "orders", "e2")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)

				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("And the same key is added again", func() {
				dup := Record("orders", "e1", time.Hour)
				dup.Source = "someone-else"
				added, err := store.AddIfNew(ctx, dup)

				Convey("Then it should be rejected and the first record kept", func() {
					So(err, ShouldBeNil)
					So(added, ShouldBeFalse)

					recs, err := store.ListByTopic(ctx, "orders")
					So(err, ShouldBeNil)
					So(len(recs), ShouldEqual, 1)
					So(recs[0].Source, ShouldEqual, "dedupetest")
					So(recs[0].Timestamp, ShouldEqual, Record("orders", "e1", 0).Timestamp)
				})
			})

			Convey("And the same event id is added under another topic", func() {
				added, err := store.AddIfNew(ctx, Record("payments", "e1", 0))

				Convey("Then it should be a distinct key", func() {
					So(err, ShouldBeNil)
					So(added, ShouldBeTrue)

					topics, err := store.Topics(ctx)
					So(err, ShouldBeNil)
					So(topics, ShouldResemble, []string{"orders", "payments"})
				})
			})
		})

		Convey("When records are added out of order", func() {
			inserts := []model.Record{
				Record("b", "b-late", 3*time.Second),
				Record("a", "a-2", 2*time.Second),
				Record("b", "b-early", time.Second),
				Record("a", "a-1", time.Second),
				Record("a", "a-tie-z", 5*time.Second),
				Record("a", "a-tie-y", 5*time.Second),
			}
			for _, rec := range inserts {
				added, err := store.AddIfNew(ctx, rec)
				So(err, ShouldBeNil)
				So(added, ShouldBeTrue)
			}

			Convey("Then a topic listing should be ordered by timestamp then id", func() {
				recs, err := store.ListByTopic(ctx, "a")
				So(err, ShouldBeNil)
				So(eventIDs(recs), ShouldResemble, []string{"a-1", "a-2", "a-tie-y", "a-tie-z"})
			})

			Convey("Then the full listing should be ordered by topic first", func() {
				recs, err := store.ListByTopic(ctx, "")
				So(err, ShouldBeNil)
				So(eventIDs(recs), ShouldResemble, []string{"a-1", "a-2", "a-tie-y", "a-tie-z", "b-early", "b-late"})
			})

			Convey("Then an unknown topic should list nothing", func() {
				recs, err := store.ListByTopic(ctx, "zzz")
				So(err, ShouldBeNil)
				So(recs, ShouldBeEmpty)
			})

			Convey("Then the payload should come back as the stored document", func() {
				recs, err := store.ListByTopic(ctx, "b")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 2)
				var p map[string]string
				So(json.Unmarshal(recs[0].Payload, &p), ShouldBeNil)
				So(p["id"], ShouldEqual, "b-early")
				So(recs[0].Source, ShouldEqual, "dedupetest")
			})
		})

		Convey("When many goroutines race on the same key", func() {
			const racers = 32
			var (
				wg      sync.WaitGroup
				winners atomic.Int64
				errs    atomic.Int64
			)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					added, err := store.AddIfNew(ctx, Record("race", "same", 0))
					if err != nil {
						errs.Add(1)
						return
					}
					if added {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one should win", func() {
				So(errs.Load(), ShouldEqual, 0)
				So(winners.Load(), ShouldEqual, 1)
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When many goroutines insert distinct keys", func() {
			const writers = 8
			const perWriter = 25
			var (
				wg      sync.WaitGroup
				winners atomic.Int64
				errs    atomic.Int64
			)
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						id := fmt.Sprintf("w%d-%d", w, i)
						added, err := store.AddIfNew(ctx, Record("bulk", id, time.Duration(i)*time.Millisecond))
						if err != nil {
							errs.Add(1)
							continue
						}
						if added {
							winners.Add(1)
						}
					}
				}(w)
			}
			wg.Wait()

			Convey("Then every insert should succeed", func() {
				So(errs.Load(), ShouldEqual, 0)
				So(winners.Load(), ShouldEqual, writers*perWriter)
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, writers*perWriter)
			})
		})
	})
}

func eventIDs(recs []model.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.EventID
	}
	return out
}
