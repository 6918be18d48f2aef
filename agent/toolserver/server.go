package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Appointment-Agent/agent/contract"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes a tool gateway over HTTP for a tool-calling loop that runs
// outside this process.
type Server struct {
	tools  contractx.ToolGateway
	known  map[string]bool
	server *http.Server
}

func New(tools contractx.ToolGateway, cfg Config) (*Server, error) {
	if tools == nil {
		return nil, errors.New("toolserver: tool gateway is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	s := &Server{tools: tools, known: map[string]bool{}}
	for _, info := range tools.Infos() {
		s.known[info.Name] = true
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(cfg.Gatherer),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s, nil
}

func (s *Server) Handler(gatherer prometheus.Gatherer) http.Handler {
	router := httprouter.New()
	router.GET("/tools", s.listTools)
	router.POST("/tools/:name", s.callTool)
	router.GET("/healthz", s.health)

	metrics := promhttp.Handler()
	if gatherer != nil {
		metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	router.Handler(http.MethodGet, "/metrics", metrics)

	return recovery(requestLogging(router))
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("tool server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	infos := s.tools.Infos()
	out := make([]toolDescriptor, 0, len(infos))
	for _, info := range infos {
		d := toolDescriptor{Name: info.Name, Description: info.Desc}
		if info.ParamsOneOf != nil {
			params, err := info.ParamsOneOf.ToOpenAPIV3()
			if err != nil {
				log.Error().Err(err).Str("tool", info.Name).Msg("tool parameters not serializable")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "tool catalog unavailable"})
				return
			}
			d.Parameters = params
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")
	if !s.known[name] {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown tool %q", name)})
		return
	}

	args := map[string]any{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object"})
		return
	}

	callID := r.Header.Get("X-Call-ID")
	if callID == "" {
		callID = uuid.NewString()
	}
	out, err := s.tools.Execute(r.Context(), contractx.ToolRequest{Tool: name, CallID: callID, Args: args})
	if errors.Is(err, contractx.ErrToolUnavailable) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("tool", name).Msg("tool dispatch failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "tool dispatch failed"})
		return
	}

	// Tool failures are results, not transport errors.
	writeJSON(w, http.StatusOK, out)
}

// writeJSON encodes before writing the status so an unencodable value turns
// into a 500 instead of a 200 with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Int("status", status).Msg("failed to encode JSON response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"response could not be encoded"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
