package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tandem-ha/tandem/pkg/client"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/failover"
	"github.com/tandem-ha/tandem/pkg/heartbeat"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/metrics"
)

// Server is the control-plane HTTP server. It exposes the two-message
// wire contract consumed by the peer plus the metrics endpoint.
type Server struct {
	coord  *failover.Coordinator
	engine *heartbeat.Engine
	http   *http.Server
	logger zerolog.Logger
}

// response is the JSON body of every control-plane reply
type response struct {
	Message string `json:"message"`
}

// NewServer creates a control-plane server listening on addr. The write
// timeout is derived from the workload start timeout: a become_primary
// reply is sent only after the workloads are up.
func NewServer(addr string, coord *failover.Coordinator, engine *heartbeat.Engine, timings config.Timings) *Server {
	s := &Server{
		coord:  coord,
		engine: engine,
		logger: log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Post("/heartbeat", s.handleHeartbeat)
	r.Post("/become_primary", s.handleBecomePrimary)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: timings.StartTimeout.Std() + time.Minute,
	}
	return s
}

// Start begins serving on the configured address. It blocks until the
// server is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("control plane listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve serves on an existing listener; used by tests that need an
// ephemeral port.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("control plane listening")
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// decodeSender extracts the sender name from the request body. Presence
// of the field is the only validation the control plane performs.
func decodeSender(r *http.Request) (string, bool) {
	var msg client.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		return "", false
	}
	return msg.Server, msg.Server != ""
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sender, ok := decodeSender(r)
	if !ok {
		metrics.APIRequestsTotal.WithLabelValues("heartbeat", strconv.Itoa(http.StatusBadRequest)).Inc()
		writeJSON(w, http.StatusBadRequest, response{Message: "Server name required"})
		return
	}

	s.engine.RecordHeartbeat()
	s.logger.Debug().Str("from", sender).Msg("heartbeat received")
	metrics.APIRequestsTotal.WithLabelValues("heartbeat", strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, http.StatusOK, response{Message: "Heartbeat received"})
}

func (s *Server) handleBecomePrimary(w http.ResponseWriter, r *http.Request) {
	sender, ok := decodeSender(r)
	if !ok {
		metrics.APIRequestsTotal.WithLabelValues("become_primary", strconv.Itoa(http.StatusBadRequest)).Inc()
		writeJSON(w, http.StatusBadRequest, response{Message: "Server name required"})
		return
	}

	s.logger.Info().Str("from", sender).Msg("become-primary request received")
	if s.coord.HandleBecomePrimary(r.Context()) {
		metrics.APIRequestsTotal.WithLabelValues("become_primary", strconv.Itoa(http.StatusOK)).Inc()
		writeJSON(w, http.StatusOK, response{Message: "Successfully transitioned to primary role"})
		return
	}

	metrics.APIRequestsTotal.WithLabelValues("become_primary", strconv.Itoa(http.StatusInternalServerError)).Inc()
	writeJSON(w, http.StatusInternalServerError, response{Message: "Failed to transition to primary role"})
}
