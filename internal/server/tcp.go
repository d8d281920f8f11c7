package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/meshcore-dev/meshbridge/internal/mesh"
)

const (
	tcpWriteTimeout = 5 * time.Second
	tcpReadBufSize  = 4096
)

// TCPServer exposes the companion protocol as a raw byte stream with the
// same framing as the serial link. Each connection owns an independent
// frame accumulator.
type TCPServer struct {
	logger   *slog.Logger
	registry *Registry
	submit   Submitter
	addr     string
}

func NewTCPServer(port int, logger *slog.Logger, registry *Registry, submit Submitter) *TCPServer {
	return &TCPServer{
		logger:   logger,
		registry: registry,
		submit:   submit,
		addr:     fmt.Sprintf(":%d", port),
	}
}

// Run accepts connections until ctx is cancelled.
func (s *TCPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcp listen %s: %w", s.addr, err)
	}
	s.logger.Info("tcp endpoint listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("tcp accept failed", "error", err)
			continue
		}

		if existing := s.registry.CountKind("tcp"); existing >= 1 {
			// Their command streams share the single queue and will
			// interleave at command granularity.
			s.logger.Warn("multiple tcp clients connected", "count", existing+1)
		}

		client := &tcpClient{conn: conn, id: conn.RemoteAddr().String()}
		s.registry.Add(client)
		go s.serveConn(ctx, client)
	}
}

func (s *TCPServer) serveConn(ctx context.Context, client *tcpClient) {
	defer func() {
		s.registry.Remove(client)
		_ = client.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = client.Close()
	}()

	var acc mesh.Accumulator
	buf := make([]byte, tcpReadBufSize)

	for {
		n, err := client.conn.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("tcp read ended", "id", client.id, "error", err)
			}
			return
		}

		acc.Feed(buf[:n])
		for {
			frame, ok := acc.Next()
			if !ok {
				break
			}
			rebuilt, err := mesh.Build(frame.Direction, frame.Payload)
			if err != nil {
				s.logger.Warn("rebuild tcp frame failed", "id", client.id, "error", err)
				continue
			}
			s.submit.Enqueue(rebuilt, client)
		}
	}
}

type tcpClient struct {
	conn net.Conn
	id   string

	writeMu sync.Mutex
}

func (c *tcpClient) ID() string   { return c.id }
func (c *tcpClient) Kind() string { return "tcp" }

func (c *tcpClient) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout)); err != nil {
		return err
	}
	written := 0
	for written < len(frame) {
		n, err := c.conn.Write(frame[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func (c *tcpClient) Close() error {
	return c.conn.Close()
}
