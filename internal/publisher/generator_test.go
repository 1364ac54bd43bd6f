package publisher_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/aggregator/internal/publisher"
)

func TestGenerator_Generate(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		gen := publisher.NewGenerator(rand.New(rand.NewPCG(1, 2)))

		Convey("When generating 1000 events with a 20% duplicate rate", func() {
			events, expect := gen.Generate(1000, 0.2, "demo", "test")

			Convey("Then 800 distinct ids should appear among 1000 events", func() {
				So(len(events), ShouldEqual, 1000)
				So(expect, ShouldResemble, publisher.Expectation{Received: 1000, Unique: 800, Duplicates: 200})

				ids := map[string]int{}
				for _, e := range events {
					ids[e.EventID]++
					So(e.Topic, ShouldEqual, "demo")
					So(e.Source, ShouldEqual, "test")
					So(e.Timestamp, ShouldNotBeEmpty)
					So(e.Payload["producer_id"], ShouldNotBeEmpty)
				}
				So(len(ids), ShouldEqual, 800)
			})
		})

		Convey("When generating twice", func() {
			first, _ := gen.Generate(10, 0, "demo", "test")
			second, _ := gen.Generate(10, 0, "demo", "test")

			Convey("Then the runs should not share ids", func() {
				seen := map[string]bool{}
				for _, e := range first {
					seen[e.EventID] = true
				}
				for _, e := range second {
					So(seen[e.EventID], ShouldBeFalse)
				}
			})
		})

		Convey("When the duplicate rate would leave no unique event", func() {
			events, expect := gen.Generate(3, 0.99, "demo", "test")

			Convey("Then one unique id should still be produced", func() {
				So(len(events), ShouldEqual, 3)
				So(expect.Unique, ShouldEqual, 1)
				So(expect.Duplicates, ShouldEqual, 2)
				for _, e := range events {
					So(e.EventID, ShouldEqual, events[0].EventID)
					So(strings.HasPrefix(e.EventID, "evt-"), ShouldBeTrue)
				}
			})
		})
	})
}

func TestBatches(t *testing.T) {
	Convey("Given seven events", t, func() {
		events := make([]publisher.Event, 7)

		Convey("Then batches of three should be 3, 3 and 1", func() {
			batches := publisher.Batches(events, 3)
			So(len(batches), ShouldEqual, 3)
			So(len(batches[0]), ShouldEqual, 3)
			So(len(batches[1]), ShouldEqual, 3)
			So(len(batches[2]), ShouldEqual, 1)
		})

		Convey("Then a batch larger than the input should hold everything", func() {
			batches := publisher.Batches(events, 100)
			So(len(batches), ShouldEqual, 1)
			So(len(batches[0]), ShouldEqual, 7)
		})
	})

	Convey("Given no events", t, func() {
		So(publisher.Batches(nil, 10), ShouldBeEmpty)
	})
}
