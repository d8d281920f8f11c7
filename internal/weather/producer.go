// Package weather polls an external sensor state source and periodically
// broadcasts a channel text report through the command queue.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/meshcore-dev/meshbridge/internal/bridge"
	"github.com/meshcore-dev/meshbridge/internal/config"
	"github.com/meshcore-dev/meshbridge/internal/mesh"
)

const fetchTimeout = 10 * time.Second

// Queue is the bridge surface the producer needs: readiness and command
// intake. Reports are submitted with a nil source so responses broadcast.
type Queue interface {
	Ready() bool
	Enqueue(frame []byte, source bridge.Source)
}

// Reading is one sensor value with its display unit.
type Reading struct {
	State string
	Unit  string
}

type entityState struct {
	State      string `json:"state"`
	Attributes struct {
		Unit string `json:"unit_of_measurement"`
	} `json:"attributes"`
}

// Producer periodically fetches the configured entities and enqueues a
// formatted report. It is an internal client of the queue.
type Producer struct {
	logger *slog.Logger
	cfg    config.WeatherConfig
	queue  Queue
	client *http.Client
	now    func() time.Time
}

func NewProducer(cfg config.WeatherConfig, logger *slog.Logger, queue Queue) *Producer {
	return &Producer{
		logger: logger,
		cfg:    cfg,
		queue:  queue,
		client: &http.Client{Timeout: fetchTimeout},
		now:    time.Now,
	}
}

// Run ticks immediately, then on the configured interval, until ctx is
// cancelled.
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("weather producer started",
		"interval", p.cfg.Interval, "channel", p.cfg.Channel, "entities", len(p.cfg.Entities))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Producer) tick(ctx context.Context) {
	if !p.queue.Ready() {
		p.logger.Debug("bridge not ready, skipping weather report")
		return
	}

	readings := p.fetchAll(ctx)
	report := FormatReport(readings)
	if report == "" {
		p.logger.Warn("no weather readings available, skipping report")
		return
	}

	payload := mesh.BuildChannelText(byte(p.cfg.Channel), uint32(p.now().Unix()), report)
	frame, err := mesh.BuildOutgoing(payload)
	if err != nil {
		p.logger.Error("build weather report frame failed", "error", err)
		return
	}

	p.queue.Enqueue(frame, nil)
	p.logger.Info("weather report queued", "channel", p.cfg.Channel, "report", report)
}

// fetchAll queries every configured entity concurrently and returns the
// usable readings keyed by sensor key.
func (p *Producer) fetchAll(ctx context.Context) map[string]Reading {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		readings = make(map[string]Reading)
	)

	for key, entity := range p.cfg.Entities {
		wg.Add(1)
		go func(key, entity string) {
			defer wg.Done()

			reading, err := p.fetch(ctx, entity)
			if err != nil {
				p.logger.Warn("fetch weather entity failed", "key", key, "entity", entity, "error", err)
				return
			}
			if reading.State == "unavailable" || reading.State == "unknown" {
				p.logger.Debug("weather entity has no value", "key", key, "entity", entity)
				return
			}

			mu.Lock()
			readings[key] = reading
			mu.Unlock()
		}(key, entity)
	}
	wg.Wait()

	return readings
}

func (p *Producer) fetch(ctx context.Context, entity string) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/states/%s", p.cfg.BaseURL, entity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Reading{}, fmt.Errorf("build request: %w", err)
	}
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Reading{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Reading{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var state entityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return Reading{}, fmt.Errorf("decode state: %w", err)
	}

	return Reading{State: state.State, Unit: state.Attributes.Unit}, nil
}
