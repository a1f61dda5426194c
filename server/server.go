// Package server exposes the capture lifecycle over HTTP so an external
// driver (a browser extension, a CDP proxy) can push sessions, events and
// response bodies.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pb33f/harhar"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pb33f/logtracker/capture"
	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
)

const maxEventBytes = 32 << 20

type Server struct {
	Router  *chi.Mux
	addr    string
	tracker *capture.Tracker
	mailbox *Mailbox
	logger  *slog.Logger
	http    *http.Server
}

// New wires the routes. The tracker's engine is expected to fetch bodies
// from mailbox.
func New(addr string, tracker *capture.Tracker, mailbox *Mailbox, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "logtracker")
	})

	s := &Server{
		Router:  r,
		addr:    addr,
		tracker: tracker,
		mailbox: mailbox,
		logger:  logger,
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/{id}", s.startSession)
		r.Delete("/{id}", s.endSession)
		r.Post("/{id}/events", s.postEvent)
		r.Post("/{id}/bodies/{requestId}", s.postBody)
	})
	r.Get("/stats", s.stats)

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", slog.String("addr", s.addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and ends every live session so their
// reports still reach the sinks. Sessions drain concurrently until ctx is
// done; after that their reports are built from what has arrived.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		errs = append(errs, s.http.Shutdown(ctx))
	}
	errs = append(errs, s.tracker.Close(ctx))
	return errors.Join(errs...)
}

type eventRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type bodyRequest struct {
	Body          string `json:"body"`
	Base64Encoded bool   `json:"base64Encoded"`
	Error         string `json:"error,omitempty"`
}

type sessionSummary struct {
	SessionID string      `json:"sessionId"`
	StartedAt time.Time   `json:"startedAt"`
	EndedAt   time.Time   `json:"endedAt"`
	Records   int         `json:"records"`
	Entries   int         `json:"entries"`
	Console   int         `json:"console"`
	Problems  []string    `json:"problems,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	HAR       *harhar.HAR `json:"har"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	id := motor.SessionID(chi.URLParam(r, "id"))

	// recording outlives the request, so it must not inherit its cancellation
	err := s.tracker.OnSessionStart(context.WithoutCancel(r.Context()), id)
	switch {
	case errors.Is(err, motor.ErrSessionExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"sessionId": string(id)})
	}
}

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	id := motor.SessionID(chi.URLParam(r, "id"))
	if _, ok := s.tracker.Engine().Store().Get(id); !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	var ev eventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid event: " + err.Error()})
		return
	}

	err := s.tracker.HandleMessage(id, ev.Method, ev.Params)
	switch {
	case err == nil, errors.Is(err, normalize.ErrUnsupportedEvent):
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, motor.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
}

func (s *Server) postBody(w http.ResponseWriter, r *http.Request) {
	id := motor.SessionID(chi.URLParam(r, "id"))
	requestID := normalize.RequestID(chi.URLParam(r, "requestId"))
	if _, ok := s.tracker.Engine().Store().Get(id); !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	var body bodyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}

	s.mailbox.Deliver(id, requestID, normalize.Body{Data: body.Body, Base64Encoded: body.Base64Encoded}, body.Error)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := motor.SessionID(chi.URLParam(r, "id"))

	// a client hanging up mid-drain must not cut the report short
	result, err := s.tracker.OnSessionEnd(context.WithoutCancel(r.Context()), id)
	s.mailbox.Forget(id)
	if result == nil {
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	summary := sessionSummary{
		SessionID: string(result.SessionID),
		StartedAt: result.StartedAt,
		EndedAt:   result.EndedAt,
		Records:   result.Records,
		Entries:   len(result.HAR.Log.Entries),
		Console:   result.Messages,
		HAR:       result.HAR,
	}
	for _, p := range result.Problems {
		summary.Problems = append(summary.Problems, p.Error())
	}
	if err != nil {
		summary.Warnings = append(summary.Warnings, err.Error())
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.tracker.Engine().Store().IDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": out})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Engine().Stats())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
