package weather

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/meshcore-dev/meshbridge/internal/bridge"
	"github.com/meshcore-dev/meshbridge/internal/config"
	"github.com/meshcore-dev/meshbridge/internal/mesh"
)

type fakeQueue struct {
	mu     sync.Mutex
	ready  bool
	frames [][]byte
}

func (q *fakeQueue) Ready() bool { return q.ready }

func (q *fakeQueue) Enqueue(frame []byte, source bridge.Source) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if source != nil {
		panic("weather reports must have no originator")
	}
	q.frames = append(q.frames, frame)
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stateServer(t *testing.T, token string, states map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			if got := r.Header.Get("Authorization"); got != "Bearer "+token {
				t.Errorf("unexpected authorization header %q", got)
			}
		}
		entity := r.URL.Path[len("/api/states/"):]
		body, ok := states[entity]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
}

func TestProducerTickQueuesReport(t *testing.T) {
	srv := stateServer(t, "secret", map[string]string{
		"sensor.temp": `{"state":"21.5","attributes":{"unit_of_measurement":"°C"}}`,
		"sensor.hum":  `{"state":"55","attributes":{"unit_of_measurement":"%"}}`,
	})
	defer srv.Close()

	queue := &fakeQueue{ready: true}
	cfg := config.WeatherConfig{
		Enabled:  true,
		BaseURL:  srv.URL,
		Token:    "secret",
		Interval: time.Minute,
		Channel:  3,
		Entities: map[string]string{
			"temperature": "sensor.temp",
			"humidity":    "sensor.hum",
		},
	}
	p := NewProducer(cfg, testLogger(), queue)
	p.now = func() time.Time { return time.Unix(0x01020304, 0) }

	p.tick(context.Background())

	if queue.count() != 1 {
		t.Fatalf("expected one queued report, got %d", queue.count())
	}

	frame := queue.frames[0]
	if frame[0] != mesh.DirToRadio {
		t.Fatalf("expected outgoing direction, got 0x%02X", frame[0])
	}
	payload := frame[3:]
	if payload[0] != mesh.CmdSendChannelTxtMsg {
		t.Fatalf("expected channel text command, got 0x%02X", payload[0])
	}
	if payload[1] != 0x00 {
		t.Fatalf("expected txt_type 0, got %d", payload[1])
	}
	if payload[2] != 3 {
		t.Fatalf("expected channel 3, got %d", payload[2])
	}
	if ts := binary.LittleEndian.Uint32(payload[3:7]); ts != 0x01020304 {
		t.Fatalf("expected timestamp 0x01020304, got 0x%08X", ts)
	}
	if text := string(payload[7:]); text != "WX: 21.5°C 55%" {
		t.Fatalf("unexpected report text %q", text)
	}
}

func TestProducerSkipsWhenNotReady(t *testing.T) {
	queue := &fakeQueue{ready: false}
	cfg := config.WeatherConfig{
		BaseURL:  "http://127.0.0.1:1",
		Interval: time.Minute,
		Entities: map[string]string{"temperature": "sensor.temp"},
	}
	p := NewProducer(cfg, testLogger(), queue)

	p.tick(context.Background())

	if queue.count() != 0 {
		t.Fatalf("expected no report while not ready, got %d", queue.count())
	}
}

func TestProducerIgnoresUnavailableEntities(t *testing.T) {
	srv := stateServer(t, "", map[string]string{
		"sensor.temp": `{"state":"unavailable","attributes":{"unit_of_measurement":"°C"}}`,
		"sensor.hum":  `{"state":"unknown","attributes":{"unit_of_measurement":"%"}}`,
	})
	defer srv.Close()

	queue := &fakeQueue{ready: true}
	cfg := config.WeatherConfig{
		BaseURL:  srv.URL,
		Interval: time.Minute,
		Entities: map[string]string{
			"temperature": "sensor.temp",
			"humidity":    "sensor.hum",
		},
	}
	p := NewProducer(cfg, testLogger(), queue)

	p.tick(context.Background())

	if queue.count() != 0 {
		t.Fatalf("expected no report with no usable readings, got %d", queue.count())
	}
}

func TestProducerSurvivesFetchFailures(t *testing.T) {
	srv := stateServer(t, "", map[string]string{
		"sensor.temp": `{"state":"21.5","attributes":{"unit_of_measurement":"°C"}}`,
	})
	defer srv.Close()

	queue := &fakeQueue{ready: true}
	cfg := config.WeatherConfig{
		BaseURL:  srv.URL,
		Interval: time.Minute,
		Entities: map[string]string{
			"temperature": "sensor.temp",
			"humidity":    "sensor.missing",
		},
	}
	p := NewProducer(cfg, testLogger(), queue)

	p.tick(context.Background())

	if queue.count() != 1 {
		t.Fatalf("expected report from remaining reading, got %d", queue.count())
	}
	if text := string(queue.frames[0][10:]); text != "WX: 21.5°C" {
		t.Fatalf("unexpected report text %q", text)
	}
}
