// Package api exposes the chat and banking services over HTTP.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/chat"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the HTTP handler.
type Options struct {
	Logger         logging.Logger
	Metrics        metrics.Recorder
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
}

// Handlers serves the chat session and banking endpoints.
type Handlers struct {
	chat   *chat.Service
	bank   *banking.Service
	logger logging.Logger
}

// NewRouter wires every route onto a ServeMux and wraps it with request
// logging, metrics and CORS.
func NewRouter(svc *chat.Service, optFns ...func(o *Options)) http.Handler {
	opts := Options{Gatherer: prometheus.DefaultGatherer}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)
	h := &Handlers{chat: svc, bank: svc.Banking(), logger: logger}

	const sessions = "/tenant/{tenantId}/user/{userId}/sessions"
	const session = sessions + "/{sessionId}"

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET "+sessions+"/{$}", h.handleListSessions)
	mux.HandleFunc("POST "+sessions+"/{$}", h.handleCreateSession)
	mux.HandleFunc("GET "+session+"/messages", h.handleListMessages)
	mux.HandleFunc("POST "+session+"/message/{messageId}/rate", h.handleRate)
	mux.HandleFunc("GET "+session+"/completiondetails/{debugLogId}", h.handleDebugLog)
	mux.HandleFunc("POST "+session+"/rename", h.handleRename)
	mux.HandleFunc("DELETE "+session, h.handleDeleteSession)
	mux.HandleFunc("POST "+session+"/completion", h.handleCompletion)
	mux.HandleFunc("POST "+session+"/summarize-name", h.handleSummarize)

	mux.HandleFunc("GET /tenant/{tenantId}/user/{userId}/accounts", h.handleAccounts)
	mux.HandleFunc("GET /tenant/{tenantId}/user/{userId}/accounts/{accountId}/transactions", h.handleTransactions)
	mux.HandleFunc("GET /tenant/{tenantId}/servicerequests", h.handleServiceRequests)

	for _, c := range []banking.Container{banking.ContainerOffers, banking.ContainerAccounts, banking.ContainerUsers} {
		mux.HandleFunc("PUT /"+string(c), h.handleAddDocument(c))
	}

	handler := http.Handler(mux)
	handler = instrument(logger, metrics.OrNoOp(opts.Metrics), handler)
	if len(opts.AllowedOrigins) > 0 {
		handler = corsMiddleware(opts.AllowedOrigins)(handler)
	}
	return handler
}

func (h *Handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidArgument), errors.Is(err, banking.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("api.request.error", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func instrument(logger logging.Logger, rec metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		} else if _, p, ok := strings.Cut(route, " "); ok {
			route = p
		}
		dur := time.Since(start)
		rec.ObserveHTTP(r.Method, route, rw.status, dur)
		logger.Info("api.request.completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", dur.Milliseconds(),
		)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	_, wildcard := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; origin == "" || (!ok && !wildcard) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
