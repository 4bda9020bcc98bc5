package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"avatarcast/internal/api"
	"avatarcast/internal/catalog"
	"avatarcast/internal/jobs"
	"avatarcast/internal/logging"
	"avatarcast/internal/services"
)

const maxBodyBytes = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router chi.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind, token string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, srv.requestLogger)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(token))
		r.Get("/status", srv.handleStatus)
		r.Get("/catalog/{category}", srv.handleCatalog)
		r.Post("/catalog/{category}/refresh", srv.handleCatalogRefresh)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", srv.handleListJobs)
			r.Post("/", srv.handleSubmitJob)
			r.Get("/{id}", srv.handleGetJob)
			r.Delete("/{id}", srv.handleCancelJob)
			r.Get("/{id}/events", srv.handleJobEvents)
		})
		r.Get("/presets", srv.handlePresets)
		r.Get("/exports", srv.handleListExports)
		r.Post("/exports", srv.handleExport)
	})
	srv.router = r
	return srv
}

// Handler exposes the router for in-process use.
func (s *apiServer) Handler() http.Handler {
	return s.router
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// Addr returns the bound address, or the configured bind before start.
func (s *apiServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldCorrelationID, middleware.GetReqID(r.Context())),
		)
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	category, err := catalog.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	snap := s.daemon.stack.Catalog.Get(r.Context(), category)
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap.FilterLanguage(r.URL.Query().Get("language"))))
}

func (s *apiServer) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	category, err := catalog.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	snap := s.daemon.stack.Catalog.Refresh(r.Context(), category)
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap.FilterLanguage(r.URL.Query().Get("language"))))
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	orch := s.daemon.stack.Orchestrator
	list := orch.List()
	if state := strings.TrimSpace(r.URL.Query().Get("state")); state != "" {
		filtered := list[:0]
		for _, job := range list {
			if string(job.State) == state {
				filtered = append(filtered, job)
			}
		}
		list = filtered
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{
		Jobs:   api.FromJobs(list),
		Counts: api.StateCounts(orch.Stats()),
	})
}

func (s *apiServer) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	orch := s.daemon.stack.Orchestrator
	id, err := orch.Submit(context.WithoutCancel(r.Context()), req.ToRequest())
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	job, err := orch.Status(id)
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{ID: id, Job: api.FromJob(job)})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.stack.Orchestrator.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orch := s.daemon.stack.Orchestrator
	if err := orch.Cancel(r.Context(), id); err != nil {
		s.writeJobError(w, id, err)
		return
	}
	job, err := orch.Status(id)
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.daemon.stack.Orchestrator.Subscribe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, "", err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	for transition := range events {
		data, err := json.Marshal(api.FromTransition(transition))
		if err != nil {
			s.logger.Error("encode transition", logging.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: transition\ndata: %s\n\n", transition.Seq, data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *apiServer) handlePresets(w http.ResponseWriter, r *http.Request) {
	pipeline := s.daemon.stack.Pipeline
	s.writeJSON(w, http.StatusOK, api.FromPresets(pipeline.Presets(), pipeline.Destinations()))
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req api.ExportRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Assets) == 0 || strings.TrimSpace(req.Preset) == "" || len(req.Destinations) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("assets, preset and destinations are required"))
		return
	}
	batch := s.daemon.stack.Runner.Export(r.Context(), api.ToAssetRefs(req.Assets), req.Preset, req.Destinations)
	s.writeJSON(w, http.StatusOK, api.FromBatch(batch))
}

func (s *apiServer) handleListExports(w http.ResponseWriter, r *http.Request) {
	out := api.ExportListResponse{Batches: []api.ExportResponse{}}
	store := s.daemon.stack.Journal
	if store == nil {
		s.writeJSON(w, http.StatusOK, out)
		return
	}
	batches, err := store.RecentBatches(r.Context(), 20)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, batch := range batches {
		out.Batches = append(out.Batches, api.FromBatch(batch))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// errorStatus maps error markers to HTTP status codes and a stable kind.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, services.ErrInvalidReference):
		return http.StatusUnprocessableEntity, string(jobs.FailureInvalidReference)
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrAlreadyTerminal):
		return http.StatusConflict, "already_terminal"
	case errors.Is(err, services.ErrProviderRejected):
		return http.StatusBadGateway, string(jobs.FailureProviderRejected)
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout, string(jobs.FailureTimeout)
	case errors.Is(err, services.ErrProviderError):
		return http.StatusBadGateway, string(jobs.FailureProviderError)
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *apiServer) writeJobError(w http.ResponseWriter, jobID string, err error) {
	status, kind := errorStatus(err)
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: kind, JobID: jobID})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
