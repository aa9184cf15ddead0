package contentreviver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/yash21saraf/revival.ai/agents/content-reviver/youtube"
	"github.com/yash21saraf/revival.ai/internal/models"
	"github.com/yash21saraf/revival.ai/shared/ai"
	"github.com/yash21saraf/revival.ai/shared/config"
	"github.com/yash21saraf/revival.ai/shared/monitoring"
	"github.com/yash21saraf/revival.ai/shared/storage"
)

const (
	maxRequestBodySize      = 32 << 20 // frames travel inline as base64
	serverReadTimeout       = 30 * time.Second
	serverWriteTimeout      = 60 * time.Second // lifted per request for /analyze streams
	serverIdleTimeout       = 60 * time.Second
	gracefulShutdownTimeout = 30 * time.Second
	defaultReportLimit      = 20
	maxReportLimit          = 100
)

// Error codes
const (
	errInvalidRequest    = "invalid_request"
	errUnresolvableURL   = "unresolvable_url"
	errNoStructuredBlock = "no_structured_block"
	errMalformedPayload  = "malformed_payload"
	errAuth              = "auth_error"
	errProvider          = "provider_error"
	errNoImageGenerated  = "no_image_generated"
	errNotFound          = "not_found"
	errRateLimited       = "rate_limited"
	errUnauthorized      = "unauthorized"
	errCancelled         = "cancelled"
	errStreaming         = "streaming_unsupported"
)

type AnalyzeRequest struct {
	URL    string         `json:"url"`
	Frames []models.Frame `json:"frames,omitempty"`
}

type OverlayRequest struct {
	MimeType    string `json:"mimeType"`
	Data        []byte `json:"data"`
	Instruction string `json:"instruction,omitempty"`
	ReportID    string `json:"reportId,omitempty"`
}

// ErrorResponse is the body of every failed request, and the payload of the
// SSE error event. Reauth tells the client the API key was rejected.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reauth  bool   `json:"reauth"`
}

type ReportsResponse struct {
	Reports []*models.Report `json:"reports"`
	Count   int              `json:"count"`
}

type Server struct {
	reviver *Reviver
	health  *monitoring.HealthServer
	limiter *ipRateLimiter
	apiKey  string
}

func NewServer(reviver *Reviver, cfg *config.ServerConfig, health *monitoring.HealthServer) *Server {
	if health == nil {
		health = monitoring.NewHealthServer(reviver.Monitor(), 0)
	}
	return &Server{
		reviver: reviver,
		health:  health,
		limiter: newIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		apiKey:  cfg.APIKey,
	}
}

// Router builds the HTTP routes. Health routes stay public; everything else
// requires the API key when one is configured.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	s.health.Register(r)

	api := r.PathPrefix("/").Subrouter()
	api.Use(s.authMiddleware)

	api.Handle("/analyze", s.limiter.middleware(http.HandlerFunc(s.handleAnalyze))).Methods(http.MethodPost)
	api.Handle("/overlay", s.limiter.middleware(http.HandlerFunc(s.handleOverlay))).Methods(http.MethodPost)
	api.HandleFunc("/thumbnail/{id}", s.handleThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)
	api.HandleFunc("/reports/latest", s.handleLatestReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}", s.handleGetReport).Methods(http.MethodGet)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      http.MaxBytesHandler(s.Router(), maxRequestBodySize),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	if s.limiter != nil {
		go s.limiter.cleanupLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				provided = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, errUnauthorized, "Invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// handleAnalyze streams the analysis as server-sent events: any number of
// thinking events carrying the full narrative so far, then exactly one
// report or error event.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "url is required")
		return
	}
	if _, err := youtube.ExtractVideoID(req.URL); err != nil && !isFetchableURL(req.URL) {
		writeError(w, http.StatusBadRequest, errUnresolvableURL, err.Error())
		return
	}

	events, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errStreaming, err.Error())
		return
	}

	report, err := s.reviver.Analyze(r.Context(), req.URL, req.Frames, func(thinking string) {
		if err := events.send("thinking", thinking); err != nil {
			log.Debug("failed to send thinking event", "err", err)
		}
	})
	if err != nil {
		if r.Context().Err() != nil {
			return // client went away
		}
		_, resp := classifyError(err)
		events.send("error", resp)
		return
	}

	events.send("report", report)
}

type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	rc := http.NewResponseController(w)
	// Streams outlive the server-wide write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	es := &eventStream{w: w, rc: rc}
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	return es, nil
}

func (e *eventStream) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return e.rc.Flush()
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	var req OverlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	if len(req.Data) == 0 || !strings.HasPrefix(req.MimeType, "image/") {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "an image mimeType and data are required")
		return
	}

	instruction := req.Instruction
	if instruction == "" && req.ReportID != "" {
		var err error
		instruction, err = s.reviver.OverlayInstructionFor(r.Context(), req.ReportID)
		if err != nil {
			status, resp := classifyError(err)
			writeJSON(w, status, resp)
			return
		}
	}

	out, err := s.reviver.Overlay(r.Context(), models.Frame{MimeType: req.MimeType, Data: req.Data}, instruction)
	if err != nil {
		status, resp := classifyError(err)
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	videoID, err := youtube.ExtractVideoID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, errUnresolvableURL, err.Error())
		return
	}

	frame, err := s.reviver.Thumbnail(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, youtube.ErrNoThumbnail) {
			writeError(w, http.StatusNotFound, errNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, errProvider, err.Error())
		return
	}

	w.Header().Set("Content-Type", frame.MimeType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(frame.Data)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxReportLimit)
	}

	reports, err := s.reviver.Reports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errProvider, err.Error())
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	writeJSON(w, http.StatusOK, ReportsResponse{Reports: reports, Count: len(reports)})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	videoURL := r.URL.Query().Get("video")
	if videoURL == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "video query parameter is required")
		return
	}
	report, err := s.reviver.LatestReport(r.Context(), videoURL)
	if err != nil {
		status, resp := classifyError(err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reviver.Report(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		status, resp := classifyError(err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// classifyError maps domain errors onto a status code and error envelope.
func classifyError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Message: err.Error()}
	status := http.StatusBadGateway

	switch {
	case errors.Is(err, youtube.ErrUnresolvable):
		status, resp.Error = http.StatusBadRequest, errUnresolvableURL
	case errors.Is(err, storage.ErrNotFound):
		status, resp.Error = http.StatusNotFound, errNotFound
	case errors.Is(err, ai.ErrNoStructuredBlock):
		resp.Error = errNoStructuredBlock
	case errors.Is(err, ai.ErrMalformedPayload):
		resp.Error = errMalformedPayload
	case errors.Is(err, ai.ErrNoImageGenerated):
		resp.Error = errNoImageGenerated
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, resp.Error = http.StatusGatewayTimeout, errCancelled
	case ai.IsAuthError(err):
		status, resp.Error, resp.Reauth = http.StatusUnauthorized, errAuth, true
	default:
		resp.Error = errProvider
	}
	return status, resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush and deadlines.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", clientIP(r),
		)
	})
}
