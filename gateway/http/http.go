package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/health"
	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/service"
)

const clientHeader = "X-Client-Id"

// getOrGenerateRequestID extracts the request id from headers or creates
// one, so log lines of a request can be correlated.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Gateway serves the REST API.
type Gateway struct {
	server  *http.Server
	service *service.ConversationService
	monitor *health.Monitor
	metrics http.Handler
	logger  *slog.Logger
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetricsHandler mounts a metrics endpoint at /metrics.
func WithMetricsHandler(h http.Handler) GatewayOption {
	return func(g *Gateway) {
		g.metrics = h
	}
}

// WithHealthMonitor mounts health endpoints at /healthz and /readyz.
func WithHealthMonitor(m *health.Monitor) GatewayOption {
	return func(g *Gateway) {
		g.monitor = m
	}
}

// NewGateway creates the gateway listening on addr.
func NewGateway(addr string, svc *service.ConversationService, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		service: svc,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler builds the route table. Exposed separately so tests can mount
// it on httptest servers.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /conversation/{id}/message", g.handleAppendMessage)
	mux.HandleFunc("GET /conversation/{id}", g.handleGetConversation)
	mux.HandleFunc("GET /conversation/{id}/analysis", g.handleGetAnalysis)
	mux.HandleFunc("PUT /conversation/{id}/message/{mid}/votes", g.handleVotes)
	mux.HandleFunc("PUT /conversation/{id}/status", g.handleStatus)
	mux.HandleFunc("PUT /conversation/{id}/field", g.handleField)
	mux.HandleFunc("DELETE /conversation/{id}/message/{mid}", g.handleDeleteMessage)

	if g.monitor != nil {
		mux.HandleFunc("GET /healthz", g.handleHealthz)
		mux.HandleFunc("GET /readyz", g.handleReadyz)
	}
	if g.metrics != nil {
		mux.Handle("GET /metrics", g.metrics)
	}
	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP gateway listening", "addr", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.WrapFatal(err, "Gateway", "Start", "listen")
	case <-ctx.Done():
		return nil
	}
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func clientID(r *http.Request) string {
	if c := r.Header.Get(clientHeader); c != "" {
		return c
	}
	return "default"
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			g.logger.Warn("response encoding failed", "error", err)
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP statuses.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsConcurrentModification(err):
		status = http.StatusConflict
	case stderrors.Is(err, errors.ErrNotOwner):
		status = http.StatusForbidden
	case stderrors.Is(err, errors.ErrQueueFull):
		status = http.StatusServiceUnavailable
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	}

	if status >= 500 {
		g.logger.Error("request failed",
			"request_id", getOrGenerateRequestID(r),
			"path", r.URL.Path,
			"error", err)
	}
	g.writeJSON(w, status, errorBody{Error: err.Error()})
}

// appendResponse is the body for message appends.
type appendResponse struct {
	Conversation *model.Conversation `json:"conversation"`
	Analysis     *model.Analysis     `json:"analysis,omitempty"`
}

func (g *Gateway) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid message body: " + err.Error()})
		return
	}

	callbackURI := r.URL.Query().Get("callback")
	result, err := g.service.AppendMessage(r.Context(), clientID(r), r.PathValue("id"), msg, callbackURI)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	if result.Async {
		g.writeJSON(w, http.StatusAccepted, appendResponse{Conversation: result.Conversation})
		return
	}
	g.writeJSON(w, http.StatusOK, appendResponse{
		Conversation: result.Conversation,
		Analysis:     result.Analysis,
	})
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := g.service.GetConversation(r.Context(), clientID(r), r.PathValue("id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conv)
}

func (g *Gateway) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := g.service.GetAnalysis(r.Context(), clientID(r), r.PathValue("id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, analysis)
}

func (g *Gateway) handleVotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid votes body: " + err.Error()})
		return
	}

	conv, err := g.service.AdjustVotes(r.Context(), clientID(r), r.PathValue("id"), r.PathValue("mid"), body.Delta)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conv)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid status body: " + err.Error()})
		return
	}

	conv, err := g.service.UpdateStatus(r.Context(), clientID(r), r.PathValue("id"), body.Status)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conv)
}

func (g *Gateway) handleField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid field body: " + err.Error()})
		return
	}
	if s, ok := body.Value.([]any); ok {
		// JSON arrays arrive as []any; the store wants []string
		strs := make([]string, 0, len(s))
		for _, v := range s {
			if str, ok := v.(string); ok {
				strs = append(strs, str)
			}
		}
		body.Value = strs
	}

	conv, err := g.service.UpdateField(r.Context(), clientID(r), r.PathValue("id"), body.Field, body.Value)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conv)
}

func (g *Gateway) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	conv, err := g.service.DeleteMessage(r.Context(), clientID(r), r.PathValue("id"), r.PathValue("mid"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conv)
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.monitor.Liveness())
}

func (g *Gateway) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	snapshot := g.monitor.Readiness()
	status := http.StatusOK
	if !snapshot.Ready {
		status = http.StatusServiceUnavailable
	}
	g.writeJSON(w, status, snapshot)
}
