// Package app wires the bridge components together and owns their
// lifecycle: startup order, background loops, and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meshcore-dev/meshbridge/internal/bridge"
	"github.com/meshcore-dev/meshbridge/internal/bus"
	"github.com/meshcore-dev/meshbridge/internal/config"
	"github.com/meshcore-dev/meshbridge/internal/logging"
	"github.com/meshcore-dev/meshbridge/internal/replay"
	"github.com/meshcore-dev/meshbridge/internal/serial"
	"github.com/meshcore-dev/meshbridge/internal/server"
	"github.com/meshcore-dev/meshbridge/internal/weather"
)

// Runtime holds every long-lived component of the bridge.
type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Config     config.Config
	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	Buffer     *replay.Buffer
	Registry   *server.Registry
	Bridge     *bridge.Bridge
	Serial     *serial.Transport

	wsServer  *server.WSServer
	tcpServer *server.TCPServer
	weather   *weather.Producer

	errCh     chan error
	closeOnce sync.Once
}

// Initialize resolves configuration, constructs every component, and starts
// the background loops. The returned runtime is live until Close.
func Initialize(parent context.Context) (*Runtime, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.LogLevel, cfg.Debug); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:        ctx,
		cancel:     cancel,
		Config:     cfg,
		LogManager: logMgr,
		errCh:      make(chan error, 4),
	}

	slog.Info("starting meshbridge runtime",
		"serial_port", cfg.SerialPort, "ws_port", cfg.WSPort, "tcp_port", cfg.TCPPort)

	rt.Bus = bus.New(logMgr.Logger("bus"))

	rt.Buffer = replay.NewBuffer(cfg.PushBufferFile, cfg.PushBufferSize, logMgr.Logger("replay"))
	rt.Buffer.Load()

	rt.Registry = server.NewRegistry(logMgr.Logger("clients"))

	rt.Bridge = bridge.New(
		logMgr.Logger("bridge"),
		rt.Bus,
		rt.Registry,
		rt.Buffer,
		cfg.CommandTimeout,
		cfg.SerialPort,
	)
	rt.Serial = serial.NewTransport(cfg.SerialPort, cfg.SerialBaud, logMgr.Logger("serial"), rt.Bridge)
	rt.Bridge.SetWriter(rt.Serial)

	rt.wsServer = server.NewWSServer(cfg.WSPort, logMgr.Logger("ws"), rt.Registry, rt.Bridge, rt.Buffer)
	rt.tcpServer = server.NewTCPServer(cfg.TCPPort, logMgr.Logger("tcp"), rt.Registry, rt.Bridge)

	if cfg.Weather.Enabled {
		if err := cfg.Weather.Validate(); err != nil {
			slog.Warn("weather producer disabled", "error", err)
		} else {
			rt.weather = weather.NewProducer(cfg.Weather, logMgr.Logger("weather"), rt.Bridge)
		}
	}

	rt.start()

	return rt, nil
}

func (r *Runtime) start() {
	go r.Serial.Run(r.Ctx)

	go func() {
		if err := r.wsServer.Run(r.Ctx); err != nil {
			r.errCh <- fmt.Errorf("websocket server: %w", err)
		}
	}()
	go func() {
		if err := r.tcpServer.Run(r.Ctx); err != nil {
			r.errCh <- fmt.Errorf("tcp server: %w", err)
		}
	}()
	if r.weather != nil {
		go func() {
			if err := r.weather.Run(r.Ctx); err != nil {
				r.errCh <- fmt.Errorf("weather producer: %w", err)
			}
		}()
	}
}

// Wait blocks until the context ends or a component fails fatally.
func (r *Runtime) Wait() error {
	select {
	case <-r.Ctx.Done():
		return nil
	case err := <-r.errCh:
		return err
	}
}

// Close tears everything down in dependency order: stop loops, disconnect
// clients, close the radio, flush the push buffer.
func (r *Runtime) Close() error {
	var flushErr error
	r.closeOnce.Do(func() {
		r.cancel()
		r.Registry.CloseAll()
		_ = r.Serial.Close()
		if err := r.Buffer.Flush(); err != nil {
			slog.Warn("flush push buffer on shutdown", "error", err)
			flushErr = err
		}
		r.Bus.Close()
		slog.Info("meshbridge runtime stopped")
	})

	return flushErr
}
