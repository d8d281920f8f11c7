// Package bridge contains the heart of the multiplexer: the single-slot
// command queue that arbitrates every client's access to the one radio, the
// per-session startup sequencer, and the dispatcher that routes solicited
// responses back to their originator while fanning pushes out to everyone.
package bridge

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meshcore-dev/meshbridge/internal/bus"
	"github.com/meshcore-dev/meshbridge/internal/events"
	"github.com/meshcore-dev/meshbridge/internal/mesh"
	"github.com/meshcore-dev/meshbridge/internal/replay"
)

const (
	startupSettleDelay = 500 * time.Millisecond
	startupTimeout     = 5 * time.Second
	writeTimeout       = 5 * time.Second
	appName            = "MeshBridge"
)

// Source identifies the client a command originated from. A nil Source marks
// internally-generated commands whose responses broadcast to everyone.
type Source interface {
	ID() string
	Send(frame []byte) error
}

// Broadcaster delivers a raw frame to every connected client.
type Broadcaster interface {
	Broadcast(frame []byte)
}

// FrameWriter is the radio-side write half the queue drains into.
type FrameWriter interface {
	Write(ctx context.Context, data []byte) error
	Connected() bool
}

// command is one queued wire frame with its originator. It lives from
// enqueue until a terminal response, a timeout, or a transport reset.
type command struct {
	frame  []byte
	source Source
}

type startupHook struct {
	code byte
	ch   chan []byte
}

// Bridge owns the queue state. Invariants: at most one in-flight command;
// no timer without an in-flight command; client commands never enter
// in-flight before startup completes.
type Bridge struct {
	logger   *slog.Logger
	bus      bus.MessageBus
	writer   FrameWriter
	clients  Broadcaster
	buffer   *replay.Buffer
	timeout  time.Duration
	portName string

	mu              sync.Mutex
	session         uint64
	startupComplete bool
	inFlight        *command
	timer           *time.Timer
	waiters         []*command
	hook            *startupHook
	identity        *events.DeviceIdentity
}

func New(
	logger *slog.Logger,
	b bus.MessageBus,
	clients Broadcaster,
	buffer *replay.Buffer,
	timeout time.Duration,
	portName string,
) *Bridge {
	return &Bridge{
		logger:   logger,
		bus:      b,
		clients:  clients,
		buffer:   buffer,
		timeout:  timeout,
		portName: portName,
	}
}

// SetWriter attaches the radio-side write half. The bridge and the serial
// transport reference each other, so the writer arrives after construction
// and before the transport starts.
func (b *Bridge) SetWriter(w FrameWriter) {
	b.mu.Lock()
	b.writer = w
	b.mu.Unlock()
}

// Ready reports whether client commands can currently reach the radio.
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	complete := b.startupComplete
	writer := b.writer
	b.mu.Unlock()

	return complete && writer != nil && writer.Connected()
}

// Identity returns the cached device identity for the current serial
// session, if the handshake succeeded.
func (b *Bridge) Identity() (events.DeviceIdentity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity == nil {
		return events.DeviceIdentity{}, false
	}
	return *b.identity, true
}

// Enqueue appends a complete wire frame to the queue. The frame is written
// to the serial device verbatim once it reaches the head of the queue.
func (b *Bridge) Enqueue(frame []byte, source Source) {
	b.mu.Lock()
	b.waiters = append(b.waiters, &command{frame: frame, source: source})
	b.mu.Unlock()

	b.drain()
}

// drain moves the head waiter into the in-flight slot and writes it to the
// serial device. The serial write happens outside the critical section.
func (b *Bridge) drain() {
	b.mu.Lock()
	if !b.startupComplete || b.inFlight != nil || len(b.waiters) == 0 ||
		b.writer == nil || !b.writer.Connected() {
		b.mu.Unlock()
		return
	}

	cmd := b.waiters[0]
	b.waiters = b.waiters[1:]
	b.inFlight = cmd
	session := b.session
	writer := b.writer
	b.timer = time.AfterFunc(b.timeout, func() {
		b.onTimeout(cmd, session)
	})
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err := writer.Write(ctx, cmd.frame)
	cancel()
	if err != nil {
		b.logger.Warn("command write failed", "source", sourceID(cmd.source), "error", err)
		b.resolveTerminal()
		return
	}

	b.bus.Publish(events.TopicRawFrameOut, events.RawFrame{
		Hex: strings.ToUpper(hex.EncodeToString(cmd.frame)),
		Len: len(cmd.frame),
	})
}

// resolveTerminal clears the in-flight slot and advances the queue on a
// fresh goroutine so the serial reader never performs re-entrant writes.
func (b *Bridge) resolveTerminal() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.inFlight = nil
	b.mu.Unlock()

	go b.drain()
}

// extendTimeout resets only the in-flight deadline. Invoked when a
// streaming response code is observed.
func (b *Bridge) extendTimeout() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Reset(b.timeout)
	}
	b.mu.Unlock()
}

// onTimeout drops the in-flight command and advances the queue. The
// originating client learns about the loss by the absence of a reply.
func (b *Bridge) onTimeout(cmd *command, session uint64) {
	b.mu.Lock()
	if b.session != session || b.inFlight != cmd {
		b.mu.Unlock()
		return
	}
	b.inFlight = nil
	b.timer = nil
	b.mu.Unlock()

	b.logger.Warn("command timed out", "source", sourceID(cmd.source), "timeout", b.timeout)
	b.drain()
}

// HandleFrame classifies one FromRadio payload and routes it. Called from
// the serial reader goroutine only, so frames are processed in wire order.
func (b *Bridge) HandleFrame(payload []byte) {
	if len(payload) == 0 {
		return
	}
	code := payload[0]

	b.mu.Lock()
	if b.hook != nil && b.hook.code == code {
		hook := b.hook
		b.hook = nil
		b.mu.Unlock()
		hook.ch <- payload
		return
	}
	b.mu.Unlock()

	raw, err := mesh.Build(mesh.DirFromRadio, payload)
	if err != nil {
		b.logger.Warn("rebuild inbound frame failed", "error", err)
		return
	}
	b.bus.Publish(events.TopicRawFrameIn, events.RawFrame{
		Hex: strings.ToUpper(hex.EncodeToString(raw)),
		Len: len(raw),
	})

	if mesh.IsPush(code) {
		b.buffer.Add(raw)
		b.clients.Broadcast(raw)
		b.bus.Publish(events.TopicPush, mesh.DecodePush(payload))
		return
	}

	b.mu.Lock()
	var src Source
	if b.inFlight != nil {
		src = b.inFlight.source
	}
	b.mu.Unlock()

	// Deliver the response before the queue can write the next command.
	if src != nil {
		if err := src.Send(raw); err != nil {
			b.logger.Warn("response delivery failed", "source", src.ID(), "error", err)
		}
	} else {
		b.clients.Broadcast(raw)
	}

	if mesh.IsStreaming(code) {
		b.extendTimeout()
	} else {
		b.resolveTerminal()
	}
}

// SessionStarted launches the startup sequencer for a fresh serial session.
func (b *Bridge) SessionStarted() {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()

	b.publishConnStatus(events.ConnectionStateConnected, nil)
	go b.runStartup(session)
}

// SessionEnded resets all queue state after the serial link dropped.
// Client sockets stay connected; their commands accumulate until the next
// successful startup.
func (b *Bridge) SessionEnded(err error) {
	b.mu.Lock()
	b.session++
	b.startupComplete = false
	b.hook = nil
	b.inFlight = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	dropped := len(b.waiters)
	b.waiters = nil
	b.identity = nil
	b.mu.Unlock()

	if dropped > 0 {
		b.logger.Warn("serial reset dropped queued commands", "count", dropped)
	}
	b.publishConnStatus(events.ConnectionStateReconnecting, err)
}

// runStartup performs the AppStart handshake: settle, send, intercept the
// first SelfInfo reply. It bypasses the gated queue; no client write can
// race it because startupComplete is still false.
func (b *Bridge) runStartup(session uint64) {
	time.Sleep(startupSettleDelay)

	hook := &startupHook{code: mesh.RespSelfInfo, ch: make(chan []byte, 1)}
	b.mu.Lock()
	if b.session != session {
		b.mu.Unlock()
		return
	}
	b.hook = hook
	writer := b.writer
	b.mu.Unlock()

	frame, err := mesh.BuildOutgoing(mesh.BuildAppStart(appName))
	if err != nil {
		b.logger.Error("build app start failed", "error", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = writer.Write(ctx, frame)
		cancel()
		if err != nil {
			b.logger.Warn("app start write failed", "error", err)
		}
	}

	var identity *events.DeviceIdentity
	select {
	case resp := <-hook.ch:
		info, err := mesh.DecodeSelfInfo(resp)
		if err != nil {
			b.logger.Warn("decode self info failed", "error", err)
		} else {
			identity = &events.DeviceIdentity{PublicKey: info.PublicKey, Name: info.Name}
		}
	case <-time.After(startupTimeout):
		b.logger.Warn("startup handshake timed out", "timeout", startupTimeout)
	}

	b.mu.Lock()
	if b.session != session {
		b.mu.Unlock()
		return
	}
	b.hook = nil
	b.startupComplete = true
	b.identity = identity
	waiting := len(b.waiters)
	b.mu.Unlock()

	if identity != nil {
		b.logger.Info("device identity cached", "name", identity.Name, "public_key", identity.PublicKey)
		b.bus.Publish(events.TopicDeviceIdentity, *identity)
	}
	b.logger.Info("startup complete", "queued_commands", waiting)
	b.drain()
}

func (b *Bridge) publishConnStatus(state events.ConnectionState, err error) {
	status := events.ConnStatus{
		State:     state,
		Port:      b.portName,
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Err = err.Error()
	}
	b.bus.Publish(events.TopicConnStatus, status)
}

func sourceID(s Source) string {
	if s == nil {
		return "internal"
	}
	return s.ID()
}
