package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshcore-dev/meshbridge/internal/replay"
)

const (
	wsWriteTimeout = 5 * time.Second
	replayDelay    = 3 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// WSServer exposes the companion protocol to browsers. Each inbound binary
// message is one complete wire frame; each outbound message is one complete
// response or push frame.
type WSServer struct {
	logger   *slog.Logger
	registry *Registry
	submit   Submitter
	buffer   *replay.Buffer
	server   *http.Server
}

func NewWSServer(port int, logger *slog.Logger, registry *Registry, submit Submitter, buffer *replay.Buffer) *WSServer {
	s := &WSServer{
		logger:   logger,
		registry: registry,
		submit:   submit,
		buffer:   buffer,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Run serves until ctx is cancelled.
func (s *WSServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("websocket endpoint listening", "addr", s.server.Addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, id: conn.RemoteAddr().String()}
	s.registry.Add(client)
	defer func() {
		s.registry.Remove(client)
		_ = client.Close()
	}()

	replayed := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "id", client.id, "error", err)
			}
			return
		}
		if len(data) == 0 {
			continue
		}

		if !replayed {
			replayed = true
			s.scheduleReplay(client)
		}
		s.submit.Enqueue(data, client)
	}
}

// scheduleReplay delivers the buffered push history once per connection,
// shortly after the client's first command so the remote app has had time
// to initialize.
func (s *WSServer) scheduleReplay(client *wsClient) {
	time.AfterFunc(replayDelay, func() {
		if !s.registry.Contains(client) {
			return
		}
		entries := s.buffer.Snapshot()
		for _, e := range entries {
			if err := client.Send(e.Frame); err != nil {
				s.logger.Debug("replay aborted", "id", client.id, "error", err)
				return
			}
		}
		if len(entries) > 0 {
			s.logger.Info("push history replayed", "id", client.id, "frames", len(entries))
		}
	})
}

type wsClient struct {
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex
}

func (c *wsClient) ID() string   { return c.id }
func (c *wsClient) Kind() string { return "ws" }

func (c *wsClient) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}
