package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/pulse/internal/adapters/http/api"
	"github.com/okian/pulse/internal/adapters/mq/queue"
	"github.com/okian/pulse/internal/adapters/scheduler"
	service "github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/player"
	"github.com/okian/pulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDependencies struct {
	mu          sync.Mutex
	published   []model.RawEvent
	publishErr  error
	snapshot    model.Snapshot
	snapshotErr error
	player      *player.Player
}

func (m *mockDependencies) Publish(_ context.Context, e model.RawEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, e)
	return nil
}

func (m *mockDependencies) Snapshot() (model.Snapshot, error) {
	return m.snapshot, m.snapshotErr
}

func (m *mockDependencies) Player() *player.Player { return m.player }

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newTestPlayer() *player.Player {
	scenes := []model.SceneDescriptor{
		{ID: "s-intro", Type: model.SceneIntro, Title: "Intro", Duration: 4,
			Captions: []model.Caption{{Start: 0, Duration: 2, Text: "welcome"}}},
		{ID: "s-debate", Type: model.SceneDebate, Title: "Debate", Duration: 6},
	}
	p, err := player.New(scenes, scheduler.NewManual(time.Time{}), player.WithLogger(logger.Nop()))
	if err != nil {
		panic(err)
	}
	return p
}

func newMux(deps *mockDependencies, stats *mockStatsProvider) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, stats).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{player: newTestPlayer()}
		mux := newMux(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})

		Convey("Then health serves prometheus metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then stats reject other methods", func() {
			w := do(mux, http.MethodPost, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then unknown routes are not found", func() {
			w := do(mux, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given the events endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, &mockStatsProvider{})

		Convey("When a valid event is posted", func() {
			w := do(mux, http.MethodPost, "/events",
				`{"id":"e1","type":"message.created","payload":{"source":"ada","related":["bo"]}}`)

			Convey("Then it is accepted and published", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"id":"e1"`)
				So(deps.published, ShouldHaveLength, 1)
				So(deps.published[0].Type, ShouldEqual, "message.created")
				So(deps.published[0].Payload["source"], ShouldEqual, "ada")
			})
		})

		Convey("When an event without id is posted", func() {
			w := do(mux, http.MethodPost, "/events", `{"type":"agent.thinking","payload":{"source":"bo"}}`)

			Convey("Then an id is generated", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.published, ShouldHaveLength, 1)
				So(deps.published[0].ID, ShouldNotBeEmpty)
			})
		})

		Convey("When the body is malformed or incomplete", func() {
			bad := do(mux, http.MethodPost, "/events", `{not json`)
			missing := do(mux, http.MethodPost, "/events", `{"id":"e1"}`)

			Convey("Then the request is rejected", func() {
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
				So(missing.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(missing)["message"], ShouldContainSubstring, "missing type")
				So(deps.published, ShouldBeEmpty)
			})
		})

		Convey("When the method is not POST", func() {
			w := do(mux, http.MethodGet, "/events", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When publishing fails", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{fmt.Errorf("publish: %w", queue.ErrFull), http.StatusTooManyRequests, "backpressure"},
				{fmt.Errorf("publish: %w", queue.ErrClosed), http.StatusServiceUnavailable, "unavailable"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
				{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
			}
			for _, tc := range cases {
				Convey("Then "+tc.err.Error()+" maps to "+tc.code, func() {
					deps.publishErr = tc.err
					w := do(mux, http.MethodPost, "/events", `{"id":"e1","type":"message.created"}`)
					So(w.Code, ShouldEqual, tc.status)
					So(decodeError(w)["code"], ShouldEqual, tc.code)
				})
			}
		})
	})
}

func TestSnapshotHandler(t *testing.T) {
	Convey("Given the snapshot endpoint", t, func() {
		deps := &mockDependencies{snapshot: model.Snapshot{
			Activity: map[string]model.EntityActivityState{"ada": {EntityID: "ada", Intensity: 0.4}},
			Pairs:    []model.PairTensionState{{EntityA: "ada", EntityB: "bo", Vibrating: true, Intensity: 0.5}},
		}}
		mux := newMux(deps, &mockStatsProvider{})

		Convey("When the service is running", func() {
			w := do(mux, http.MethodGet, "/snapshot", "")

			Convey("Then the snapshot is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var snap model.Snapshot
				So(json.Unmarshal(w.Body.Bytes(), &snap), ShouldBeNil)
				So(snap.Activity["ada"].Intensity, ShouldEqual, 0.4)
				So(snap.Pairs, ShouldHaveLength, 1)
			})
		})

		Convey("When the service is not started", func() {
			deps.snapshotErr = service.ErrNotStarted
			w := do(mux, http.MethodGet, "/snapshot", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestPlayerHandler(t *testing.T) {
	Convey("Given the player endpoint", t, func() {
		deps := &mockDependencies{player: newTestPlayer()}
		mux := newMux(deps, &mockStatsProvider{})

		state := func(w *httptest.ResponseRecorder) model.PlayerState {
			var resp struct {
				State model.PlayerState      `json:"state"`
				Scene *model.SceneDescriptor `json:"scene"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			return resp.State
		}

		Convey("When reading the state", func() {
			w := do(mux, http.MethodGet, "/player", "")

			Convey("Then the idle state and current scene are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(state(w).Status, ShouldEqual, model.StatusIdle)
				So(state(w).ActiveCaption, ShouldEqual, "welcome")
				So(w.Body.String(), ShouldContainSubstring, `"id":"s-intro"`)
			})
		})

		Convey("When controlling playback", func() {
			started := do(mux, http.MethodPost, "/player", `{"action":"start"}`)
			paused := do(mux, http.MethodPost, "/player", `{"action":"pause"}`)
			resumed := do(mux, http.MethodPost, "/player", `{"action":"resume"}`)

			Convey("Then each action is applied", func() {
				So(state(started).Status, ShouldEqual, model.StatusPlaying)
				So(state(paused).Status, ShouldEqual, model.StatusPaused)
				So(state(resumed).Status, ShouldEqual, model.StatusPlaying)
			})
		})

		Convey("When seeking", func() {
			byScene := do(mux, http.MethodPost, "/player", `{"action":"seek","scene":1}`)
			byTime := do(mux, http.MethodPost, "/player", `{"action":"seek","seconds":5}`)
			outOfRange := do(mux, http.MethodPost, "/player", `{"action":"seek","seconds":99}`)

			Convey("Then positions follow the player rules", func() {
				So(state(byScene).SceneIndex, ShouldEqual, 1)
				So(state(byScene).TotalElapsed, ShouldEqual, 4)
				So(state(byTime).SceneElapsed, ShouldEqual, 1)
				So(outOfRange.Code, ShouldEqual, http.StatusOK)
				So(state(outOfRange).TotalElapsed, ShouldEqual, 5)
			})

			Convey("And reset returns to the start", func() {
				w := do(mux, http.MethodPost, "/player", `{"action":"reset"}`)
				So(state(w).Status, ShouldEqual, model.StatusIdle)
				So(state(w).TotalElapsed, ShouldEqual, 0)
			})
		})

		Convey("When the request is invalid", func() {
			cases := []string{
				`{not json`,
				`{}`,
				`{"action":"rewind"}`,
				`{"action":"seek"}`,
				`{"action":"seek","scene":1,"seconds":2}`,
			}
			for _, body := range cases {
				Convey("Then "+body+" is rejected", func() {
					w := do(mux, http.MethodPost, "/player", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				})
			}
		})

		Convey("When the method is not supported", func() {
			w := do(mux, http.MethodDelete, "/player", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When no player is running", func() {
			deps.player = nil
			w := do(mux, http.MethodGet, "/player", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
