package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Manager owns the app logger configuration.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewManager() *Manager {
	m := &Manager{}
	m.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	return m
}

// Configure installs a handler at the requested level. When debug is set the
// level is forced to debug regardless of the configured string.
func (m *Manager) Configure(rawLevel string, debug bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	level, err := parseLevel(rawLevel)
	if err != nil {
		return err
	}
	if debug {
		level = slog.LevelDebug
	}

	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	m.logger = slog.New(h)
	slog.SetDefault(m.logger)

	return nil
}

func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logger.With("component", component)
}

func parseLevel(raw string) (slog.Leveler, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("unsupported log level: %q", raw)
	}
}
