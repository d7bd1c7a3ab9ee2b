// Package server exposes the call transport: a websocket endpoint that runs
// the voice pipeline for each connection, plus health and metrics routes.
//
// Each accepted websocket is one phone call. The server owns the transport
// concerns (framing, codec negotiation, VAD gating, STT streaming) and hands
// every final utterance to a per-call [engine.VoiceEngine]; the engine owns
// the dialog and speech-out pipeline.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rnmehta/dinevox/internal/dialog"
	"github.com/rnmehta/dinevox/internal/engine"
	"github.com/rnmehta/dinevox/internal/health"
	"github.com/rnmehta/dinevox/internal/observe"
	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/provider/vad"
	"github.com/rnmehta/dinevox/pkg/types"
)

// shutdownTimeout bounds the graceful HTTP shutdown after ctx is cancelled.
const shutdownTimeout = 10 * time.Second

// EngineFactory creates the voice engine for one call. The server calls it
// once per accepted connection and closes the engine when the call ends.
type EngineFactory func(callID string) (engine.VoiceEngine, error)

// Config holds the dependencies of a [Server]. NewEngine is required;
// everything else is optional.
type Config struct {
	// ListenAddr is the address for ListenAndServe, e.g. ":8080".
	ListenAddr string

	// NewEngine creates the per-call voice engine.
	NewEngine EngineFactory

	// STT transcribes inbound call audio. Without it the server accepts
	// text-mode calls only.
	STT stt.Provider

	// VAD gates which audio frames reach the STT session. Without it every
	// frame is forwarded.
	VAD vad.Engine

	// Keywords are vocabulary hints (dish names) passed to each STT session.
	Keywords []types.KeywordBoost

	// OnTurn is invoked for every completed turn of every call. Optional.
	OnTurn func(types.CallTurn)

	// Metrics receives call and turn instrumentation. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Checkers are evaluated by the /readyz endpoint.
	Checkers []health.Checker

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// Server serves the websocket call endpoint and the HTTP operational routes.
type Server struct {
	cfg     Config
	metrics *observe.Metrics
	handler http.Handler
	httpSrv *http.Server
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.NewEngine == nil {
		return nil, errors.New("server: engine factory is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Server{cfg: cfg, metrics: cfg.Metrics}

	inner := http.NewServeMux()
	health.New(cfg.Checkers...).Register(inner)
	inner.Handle("GET /metrics", promhttp.Handler())

	// The call route bypasses the HTTP middleware: the hijacked websocket
	// connection has no status code to record and must not be wrapped.
	outer := http.NewServeMux()
	outer.HandleFunc("GET /v1/call", s.handleCall)
	outer.Handle("/", observe.Middleware(s.metrics)(inner))
	s.handler = outer

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           outer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the full route table. Useful for tests and for mounting
// the server under an existing listener.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully. Connection
// contexts derive from ctx, so active calls are cancelled on shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv.BaseContext = func(_ net.Listener) context.Context { return ctx }

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleCall upgrades the connection and runs the call session to completion.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		callID = fmt.Sprintf("call-%d", time.Now().UnixNano())
	}

	eng, err := s.cfg.NewEngine(callID)
	if err != nil {
		slog.Error("engine setup failed", "call_id", callID, "err", err)
		conn.Close(websocket.StatusInternalError, "engine unavailable")
		return
	}

	s.metrics.ActiveCalls.Add(r.Context(), 1)
	defer s.metrics.ActiveCalls.Add(context.Background(), -1)

	sess := &callSession{
		server:     s,
		conn:       conn,
		callID:     callID,
		engine:     eng,
		dialog:     dialog.NewSession(),
		utterances: make(chan string, 8),
	}
	sess.run(r.Context())
}
