package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

type HealthServer struct {
	monitor *Monitor
	port    int
}

// NewHealthServer serves the monitor on its own port. A zero port means the
// routes are only mounted on another router through Register.
func NewHealthServer(monitor *Monitor, port int) *HealthServer {
	return &HealthServer{
		monitor: monitor,
		port:    port,
	}
}

// Register mounts /health and /status on r.
func (h *HealthServer) Register(r *mux.Router) {
	r.HandleFunc("/health", h.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/status", h.statusHandler).Methods(http.MethodGet)
}

// Start serves the health routes on the dedicated port until ctx is done.
func (h *HealthServer) Start(ctx context.Context) {
	if h.port == 0 {
		return
	}

	r := mux.NewRouter()
	h.Register(r)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", h.port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("Health check server starting on port %d", h.port)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Health server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.monitor.IsHealthy() {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK - %s", h.monitor.GetStatusSummary())
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Service unhealthy - %s", h.monitor.GetStatusSummary())
	}
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.monitor.Snapshot())
}
