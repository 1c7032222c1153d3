package perfcounter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vitaliisemenov/agentcore/internal/agent/config"
	"github.com/vitaliisemenov/agentcore/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is a local operator tool; it is not meant to be embedded
	// cross-origin. Origins are not checked, and the listener binds whatever
	// Addr is configured (nothing here restricts it to loopback).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSubscriber adapts a websocket connection to the bus's subscriber
// interface.
type wsSubscriber struct {
	subID  string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *wsSubscriber) id() string              { return s.subID }
func (s *wsSubscriber) context() context.Context { return s.ctx }

func (s *wsSubscriber) send(u update) error {
	return s.conn.WriteJSON(struct {
		Sequence int64              `json:"sequence"`
		Samples  map[string]float64 `json:"samples"`
	}{Sequence: u.sequence, Samples: u.samples})
}

func (s *wsSubscriber) close() {
	s.cancel()
	_ = s.conn.Close()
}

// dashboard owns the HTTP listener exposing the performance-counter sink's
// local live view: a JSON snapshot endpoint and a websocket stream of
// counter updates as they arrive.
type dashboard struct {
	logger       *slog.Logger
	sink         *Sink
	bus          *bus
	configSnapFn func() *config.Document
	server       *http.Server
}

func newDashboard(addr string, sink *Sink, b *bus, configSnapFn func() *config.Document, baseLogger *slog.Logger) *dashboard {
	d := &dashboard{logger: baseLogger.With("component", "perfcounter_dashboard"), sink: sink, bus: b, configSnapFn: configSnapFn}

	router := mux.NewRouter()
	router.Use(logger.LoggingMiddleware(d.logger))
	router.HandleFunc("/healthz", d.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/metrics", d.handleSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/api/config", d.handleConfig).Methods(http.MethodGet)
	router.HandleFunc("/ws", d.handleWebsocket).Methods(http.MethodGet)

	d.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return d
}

func (d *dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleConfig serves the redacted effective configuration document, for
// operators who need to confirm what the agent actually loaded without
// shelling in to read the YAML file. Unavailable (404) until the manager
// has completed its first Start, or if no snapshot function was wired in.
func (d *dashboard) handleConfig(w http.ResponseWriter, r *http.Request) {
	if d.configSnapFn == nil {
		http.NotFound(w, r)
		return
	}
	doc := d.configSnapFn()
	if doc == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logger.FromContext(r.Context(), d.logger).Warn("config snapshot encode failed", "error", err)
	}
}

func (d *dashboard) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.sink.Snapshot()); err != nil {
		logger.FromContext(r.Context(), d.logger).Warn("snapshot encode failed", "error", err)
	}
}

func (d *dashboard) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.FromContext(r.Context(), d.logger).Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sub := &wsSubscriber{subID: uuid.NewString(), conn: conn, ctx: ctx, cancel: cancel}
	d.bus.subscribe(sub)

	go d.drainClient(sub)
}

// drainClient reads (and discards) incoming frames so the connection's
// control frames (ping/close) are handled, until the client disconnects.
func (d *dashboard) drainClient(sub *wsSubscriber) {
	defer func() {
		d.bus.unsubscribe(sub)
		sub.close()
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (d *dashboard) start() error {
	if d.server.Addr == "" {
		return nil
	}
	go func() {
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Warn("dashboard server stopped", "error", err)
		}
	}()
	return nil
}

func (d *dashboard) stop(ctx context.Context) error {
	if d.server.Addr == "" {
		return nil
	}
	return d.server.Shutdown(ctx)
}
