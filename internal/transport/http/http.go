package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/status"
	"github.com/corray333/backend-labs/dispatcher/internal/service/services/statussvc"
	"github.com/corray333/backend-labs/dispatcher/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/dispatcher/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
)

type retryBacklog interface {
	Len() int
	MaxSize() int
	Accepting() bool
}

type statusService interface {
	CheckStatus(ctx context.Context, id string) (status.ApplicationStatus, error)
}

type HTTPTransport struct {
	server  *http.Server
	router  *chi.Mux
	backlog retryBacklog
	status  statusService
}

// NewHTTPTransport creates the admin HTTP transport. status may be nil, in
// which case the status endpoint answers 503.
func NewHTTPTransport(backlog retryBacklog, status statusService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:  server,
		router:  router,
		backlog: backlog,
		status:  status,
	}
}

func (h *HTTPTransport) Run() error {
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully stops the HTTP server.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/healthz", h.healthz)
	h.router.Route("/api", func(r chi.Router) {
		r.Get("/backlog", h.getBacklog)
		r.Get("/status/{id}", h.getStatus)
	})
}

type backlogResponse struct {
	Size      int  `json:"size"`
	MaxSize   int  `json:"max_size"`
	Accepting bool `json:"accepting"`
}

type statusErrorResponse struct {
	Error         string `json:"error"`
	Retries       int    `json:"retries,omitempty"`
	LastRequestMs int64  `json:"last_request_ms,omitempty"`
}

func (h *HTTPTransport) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HTTPTransport) getBacklog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, backlogResponse{
		Size:      h.backlog.Len(),
		MaxSize:   h.backlog.MaxSize(),
		Accepting: h.backlog.Accepting(),
	})
}

func (h *HTTPTransport) getStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, statusErrorResponse{Error: "status checks are not configured"})
		return
	}

	id := chi.URLParam(r, "id")

	st, err := h.status.CheckStatus(r.Context(), id)
	if err != nil {
		slog.Warn("Status check failed", "application_id", id, "error", err)

		resp := statusErrorResponse{Error: err.Error()}
		var failure *statussvc.FailureError
		if errors.As(err, &failure) {
			resp.Retries = failure.RetriesCount
			resp.LastRequestMs = failure.LastRequestTime.Milliseconds()
		}
		writeJSON(w, http.StatusGatewayTimeout, resp)

		return
	}

	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	port := viper.GetString("server.http.port")
	if port == "" {
		port = "8080"
	}

	return &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}
}
