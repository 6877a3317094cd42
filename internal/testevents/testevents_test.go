package testevents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/okian/pulse/internal/domain/aggregator"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.RawEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.RawEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func TestGenerator(t *testing.T) {
	convey.Convey("Given a generator", t, func() {
		gen := NewGenerator([]string{"ada", "bo", "ada", ""})
		mapper := aggregator.DefaultMapper()

		convey.Convey("Then duplicate and empty entities are dropped", func() {
			convey.So(gen.entities, convey.ShouldResemble, []string{"ada", "bo"})
		})

		convey.Convey("When generating many events", func() {
			ids := make(map[string]struct{})
			for i := 0; i < 500; i++ {
				e := gen.Next()
				ids[e.ID] = struct{}{}

				de, ok := mapper.Map(e)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(de.SourceID, convey.ShouldBeIn, "ada", "bo")
				for _, r := range de.RelatedIDs {
					convey.So(r, convey.ShouldNotEqual, de.SourceID)
				}
			}

			convey.Convey("Then every event maps and IDs are unique", func() {
				convey.So(len(ids), convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When no entities are given", func() {
			convey.So(NewGenerator(nil).entities, convey.ShouldResemble, DefaultEntities())
		})

		convey.Convey("When there is a single entity", func() {
			single := NewGenerator([]string{"solo"})
			for i := 0; i < 100; i++ {
				_, hasRelated := single.Next().Payload["related"]
				convey.So(hasRelated, convey.ShouldBeFalse)
			}
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a publisher", t, func() {
		pub := &recordingPublisher{}

		convey.Convey("When running with a count", func() {
			stats := Run(context.Background(), pub, Config{Interval: time.Millisecond, Count: 5})

			convey.Convey("Then exactly count events are published", func() {
				convey.So(stats.EventsGenerated, convey.ShouldEqual, 5)
				convey.So(stats.EventsPublished, convey.ShouldEqual, 5)
				convey.So(pub.events, convey.ShouldHaveLength, 5)
			})
		})

		convey.Convey("When the publisher rejects events", func() {
			pub.err = ErrRejected
			stats := Run(context.Background(), pub, Config{Interval: time.Millisecond, Count: 3})

			convey.Convey("Then rejections are counted", func() {
				convey.So(stats.EventsRejected, convey.ShouldEqual, 3)
				convey.So(stats.EventsPublished, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			stats := Run(ctx, pub, Config{Interval: time.Hour})

			convey.Convey("Then the run stops without publishing", func() {
				convey.So(stats.EventsGenerated, convey.ShouldEqual, 0)
			})
		})
	})
}

func TestHTTPPublisher(t *testing.T) {
	convey.Convey("Given a fake service", t, func() {
		var (
			mu       sync.Mutex
			received []eventBody
			status   = http.StatusAccepted
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz":
				w.WriteHeader(http.StatusOK)
			case "/events":
				var body eventBody
				_ = json.NewDecoder(r.Body).Decode(&body)
				mu.Lock()
				received = append(received, body)
				code := status
				mu.Unlock()
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"code":"backpressure"}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		pub := NewHTTPPublisher(srv.URL+"/", time.Second)
		ctx := context.Background()

		convey.Convey("Then the health check passes", func() {
			convey.So(pub.CheckHealth(ctx), convey.ShouldBeNil)
		})

		convey.Convey("When an event is accepted", func() {
			err := pub.Publish(ctx, model.RawEvent{ID: "e1", Type: "message.created", Payload: map[string]any{"source": "ada"}})

			convey.Convey("Then the body carries the event", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(received, convey.ShouldHaveLength, 1)
				convey.So(received[0].ID, convey.ShouldEqual, "e1")
				convey.So(received[0].Payload["source"], convey.ShouldEqual, "ada")
			})
		})

		convey.Convey("When the service pushes back", func() {
			mu.Lock()
			status = http.StatusTooManyRequests
			mu.Unlock()
			err := pub.Publish(ctx, model.RawEvent{ID: "e2", Type: "message.created"})

			convey.Convey("Then the event is rejected", func() {
				convey.So(errors.Is(err, ErrRejected), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "429")
			})
		})
	})
}
