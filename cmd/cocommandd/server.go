package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cocommand/cocommand/internal/eventbus"
	"github.com/cocommand/cocommand/internal/session"
	"github.com/cocommand/cocommand/pkg/models"
)

// daemon holds every long-lived dependency cmd/cocommandd wires together,
// and the one HTTP server the desktop UI's command bar talks to.
type daemon struct {
	registry   *session.Registry
	bus        *eventbus.Bus
	httpServer *http.Server
	listener   net.Listener
}

// listenAndServe starts the HTTP API on addr: /healthz, /metrics, and the
// session control surface under /v1/sessions/. It returns once the
// listener is bound; serving continues on a background goroutine.
func (d *daemon) listenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", d.handleHealthz)
	mux.HandleFunc("/v1/sessions/", d.handleSession)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	d.listener = listener
	d.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(errWriter, "http server error:", err)
		}
	}()
	return nil
}

// stop gracefully shuts down the HTTP server and every session actor.
func (d *daemon) stop(ctx context.Context) error {
	var httpErr error
	if d.httpServer != nil {
		httpErr = d.httpServer.Shutdown(ctx)
	}
	d.registry.Close()
	return httpErr
}

func (d *daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleSession routes the three session endpoints this daemon exposes:
//
//	POST /v1/sessions/{id}/messages  -> submit a user message, start a run
//	POST /v1/sessions/{id}/cancel    -> cancel the session's active run
//	GET  /v1/sessions/{id}/events    -> subscribe to the event bus over SSE
func (d *daemon) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID, action := parts[0], parts[1]

	switch {
	case action == "messages" && r.Method == http.MethodPost:
		d.handlePostMessage(w, r, sessionID)
	case action == "cancel" && r.Method == http.MethodPost:
		d.handleCancel(w, r, sessionID)
	case action == "events" && r.Method == http.MethodGet:
		d.handleEvents(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

type postMessageRequest struct {
	Text string `json:"text"`
}

func (d *daemon) handlePostMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	handle := d.registry.GetOrCreate(sessionID)
	accepted, err := handle.SendUserMessage(r.Context(), []models.MessagePart{
		{Type: models.PartText, Text: &models.TextPart{Text: req.Text}},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"run_id": accepted.RunID, "accepted_at": accepted.AcceptedAt})
}

type cancelRequest struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason"`
}

func (d *daemon) handleCancel(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	handle := d.registry.GetOrCreate(sessionID)
	handle.Cancel(req.RunID, req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams this session's events as Server-Sent Events, the
// simplest transport a command-bar UI can consume without a dedicated
// client library.
func (d *daemon) handleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := d.bus.Subscribe(sessionID, 0)
	defer sub.Close()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
