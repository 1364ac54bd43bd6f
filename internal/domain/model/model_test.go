package model_test

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	model "github.com/okian/aggregator/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func validEvent() model.Event {
	return model.Event{
		Topic:     "orders",
		EventID:   "evt-1",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:    "checkout",
		Payload:   map[string]any{"amount": 10},
	}
}

func TestEventValidate(t *testing.T) {
	convey.Convey("Given an Event", t, func() {
		convey.Convey("When all required fields are present", func() {
			convey.So(validEvent().Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the payload is nil", func() {
			e := validEvent()
			e.Payload = nil

			convey.Convey("Then it should still be valid", func() {
				convey.So(e.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When required fields are blank", func() {
			e := validEvent()
			e.Topic = "  "
			e.EventID = ""
			e.Source = "\t"
			e.Timestamp = time.Time{}
			err := e.Validate()

			convey.Convey("Then every problem should be reported", func() {
				convey.So(errors.Is(err, model.ErrInvalidEvent), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "topic is required")
				convey.So(err.Error(), convey.ShouldContainSubstring, "event_id is required")
				convey.So(err.Error(), convey.ShouldContainSubstring, "source is required")
				convey.So(err.Error(), convey.ShouldContainSubstring, "timestamp is required")
			})
		})
	})
}

func TestCanonicalTimestamp(t *testing.T) {
	convey.Convey("Given timestamps in different zones", t, func() {
		zone := time.FixedZone("UTC+2", 2*60*60)
		local := time.Date(2024, 5, 1, 14, 0, 0, 5, zone)

		convey.Convey("When rendered canonically", func() {
			s := model.CanonicalTimestamp(local)

			convey.Convey("Then it should be UTC with fixed-width nanoseconds", func() {
				convey.So(s, convey.ShouldEqual, "2024-05-01T12:00:00.000000005Z")
			})
		})

		convey.Convey("When sorting canonical strings", func() {
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			times := []time.Time{
				base.Add(time.Second),
				base.Add(500 * time.Millisecond),
				base,
				base.Add(time.Nanosecond),
			}
			strs := make([]string, len(times))
			for i, ts := range times {
				strs[i] = model.CanonicalTimestamp(ts)
			}
			sort.Strings(strs)

			convey.Convey("Then lexical order should equal chronological order", func() {
				convey.So(strs[0], convey.ShouldEqual, model.CanonicalTimestamp(base))
				convey.So(strs[1], convey.ShouldEqual, model.CanonicalTimestamp(base.Add(time.Nanosecond)))
				convey.So(strs[2], convey.ShouldEqual, model.CanonicalTimestamp(base.Add(500*time.Millisecond)))
				convey.So(strs[3], convey.ShouldEqual, model.CanonicalTimestamp(base.Add(time.Second)))
			})
		})
	})
}

func TestToRecord(t *testing.T) {
	convey.Convey("Given a valid event", t, func() {
		convey.Convey("When converting to a record", func() {
			rec, err := validEvent().ToRecord()

			convey.Convey("Then the payload should be the JSON document", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.Key(), convey.ShouldResemble, model.Key{Topic: "orders", EventID: "evt-1"})
				convey.So(rec.Timestamp, convey.ShouldEqual, "2024-05-01T12:00:00.000000000Z")
				var p map[string]any
				convey.So(json.Unmarshal(rec.Payload, &p), convey.ShouldBeNil)
				convey.So(p["amount"], convey.ShouldEqual, float64(10))
			})
		})

		convey.Convey("When the payload is nil", func() {
			e := validEvent()
			e.Payload = nil
			rec, err := e.ToRecord()

			convey.Convey("Then an empty object should be stored", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(rec.Payload), convey.ShouldEqual, "{}")
			})
		})

		convey.Convey("When the payload cannot be serialized", func() {
			e := validEvent()
			e.Payload = map[string]any{"bad": math.NaN()}
			_, err := e.ToRecord()

			convey.Convey("Then a payload encoding error should be returned", func() {
				convey.So(errors.Is(err, model.ErrPayloadEncoding), convey.ShouldBeTrue)
			})
		})
	})
}

func TestKeyString(t *testing.T) {
	convey.Convey("Given an event key", t, func() {
		convey.So(validEvent().Key().String(), convey.ShouldEqual, "orders/evt-1")
	})
}

func TestParseTimestamp(t *testing.T) {
	convey.Convey("Given producer timestamps", t, func() {
		convey.Convey("RFC 3339 with an offset keeps its instant", func() {
			ts, err := model.ParseTimestamp("2024-05-01T14:00:00+02:00")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ts.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("A value without offset is read as UTC", func() {
			ts, err := model.ParseTimestamp("2025-10-20T00:00:00.123456")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ts.Equal(time.Date(2025, 10, 20, 0, 0, 0, 123456000, time.UTC)), convey.ShouldBeTrue)
			convey.So(model.CanonicalTimestamp(ts), convey.ShouldEqual, "2025-10-20T00:00:00.123456000Z")
		})

		convey.Convey("Anything else is invalid", func() {
			_, err := model.ParseTimestamp("2025-10-20")
			convey.So(errors.Is(err, model.ErrInvalidEvent), convey.ShouldBeTrue)
		})
	})
}

func TestEventUnmarshalJSON(t *testing.T) {
	convey.Convey("Given an event document with large integers", t, func() {
		raw := `{"topic":"t","event_id":"1","timestamp":"2025-10-20T00:00:00","source":"s",` +
			`"payload":{"n":9007199254740993,"nested":{"id":12345678901234567890},"list":[1,2.5]}}`

		var e model.Event
		err := json.Unmarshal([]byte(raw), &e)

		convey.Convey("Then the payload should re-encode with the same digits", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(e.Validate(), convey.ShouldBeNil)
			rec, err := e.ToRecord()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(rec.Payload), convey.ShouldEqual,
				`{"list":[1,2.5],"n":9007199254740993,"nested":{"id":12345678901234567890}}`)
		})
	})

	convey.Convey("Given payloads that are not objects", t, func() {
		for _, raw := range []string{`[1]`, `"x"`, `{"a":1} {"b":2}`} {
			_, err := model.DecodePayload([]byte(raw))
			convey.So(errors.Is(err, model.ErrInvalidEvent), convey.ShouldBeTrue)
		}
		p, err := model.DecodePayload([]byte("null"))
		convey.So(err, convey.ShouldBeNil)
		convey.So(p, convey.ShouldBeNil)
	})
}
