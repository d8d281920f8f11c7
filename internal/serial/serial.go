// Package serial owns the radio device: it opens the configured port,
// feeds inbound bytes through a per-session frame accumulator, and reopens
// the device with a fixed backoff whenever the link drops.
package serial

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/meshcore-dev/meshbridge/internal/mesh"
)

const (
	reopenDelay = 5 * time.Second
	readTimeout = 300 * time.Millisecond
	readBufSize = 1024
)

var ErrNotConnected = errors.New("serial port is not open")

// Handler receives the session lifecycle and every complete FromRadio frame.
type Handler interface {
	// SessionStarted is invoked after a successful open, before any frame.
	SessionStarted()
	// SessionEnded is invoked after the port is closed; the bridge resets
	// its state here.
	SessionEnded(err error)
	// HandleFrame receives one complete FromRadio payload in wire order.
	HandleFrame(payload []byte)
}

// Transport is the exclusive owner of the serial device.
type Transport struct {
	portName string
	baudRate int
	logger   *slog.Logger
	handler  Handler

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewTransport(portName string, baudRate int, logger *slog.Logger, handler Handler) *Transport {
	return &Transport{
		portName: portName,
		baudRate: baudRate,
		logger:   logger,
		handler:  handler,
	}
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Write delivers raw bytes to the device verbatim.
func (t *Transport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	written := 0
	for written < len(data) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Write(data[written:])
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}

// Run opens the device and pumps frames until ctx is cancelled. On open
// failure or link loss it waits a fixed delay and retries indefinitely.
func (t *Transport) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		port, err := serial.Open(t.portName, &serial.Mode{BaudRate: t.baudRate})
		if err != nil {
			t.logger.Error("open serial port failed", "port", t.portName, "error", err)
			if !sleepWithContext(ctx, reopenDelay) {
				return
			}
			continue
		}
		if err := port.SetReadTimeout(readTimeout); err != nil {
			t.logger.Error("set serial read timeout failed", "error", err)
			_ = port.Close()
			if !sleepWithContext(ctx, reopenDelay) {
				return
			}
			continue
		}

		t.mu.Lock()
		t.port = port
		t.mu.Unlock()
		t.logger.Info("serial port open", "port", t.portName, "baud", t.baudRate)
		t.handler.SessionStarted()

		readErr := t.readLoop(ctx, port)

		t.mu.Lock()
		t.port = nil
		t.mu.Unlock()
		_ = port.Close()
		t.handler.SessionEnded(readErr)

		if ctx.Err() != nil {
			return
		}
		t.logger.Warn("serial link lost, reopening", "delay", reopenDelay, "error", readErr)
		if !sleepWithContext(ctx, reopenDelay) {
			return
		}
	}
}

// Close releases the port outside Run, for shutdown.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *Transport) readLoop(ctx context.Context, port serial.Port) error {
	var acc mesh.Accumulator
	buf := make([]byte, readBufSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			// Read timeout tick; loop to re-check ctx.
			continue
		}

		acc.Feed(buf[:n])
		for {
			frame, ok := acc.Next()
			if !ok {
				break
			}
			if frame.Direction != mesh.DirFromRadio {
				continue
			}
			t.handler.HandleFrame(frame.Payload)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
