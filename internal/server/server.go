package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"party-avatar/internal/llmservice"
	"party-avatar/internal/models"
)

const maxBodyBytes = 64 << 10

// Pipeline is what the routes need from the question answering pipeline.
type Pipeline interface {
	Answer(ctx context.Context, question string) (*models.Answer, error)
	ResetIndex()
}

type Server struct {
	pipeline Pipeline
	server   *http.Server
}

type chatRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error    string           `json:"error"`
	Detail   string           `json:"detail,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
}

func NewServer(pipeline Pipeline, port int) *Server {
	s := &Server{pipeline: pipeline}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /reset", s.handleReset)
	mux.HandleFunc("GET /health", s.handleHealth)
	return logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	log.Info().Str("address", listener.Addr().String()).Msg("Party avatar API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Party avatar API",
		"endpoints": map[string]string{
			"chat":   "POST /chat",
			"reset":  "GET /reset",
			"health": "GET /health",
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_REQUEST", Detail: err.Error()})
		return
	}

	answer, err := s.pipeline.Answer(r.Context(), req.Message)
	if err != nil {
		log.Error().Err(err).Msg("Chat failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:    chatErrorCode(err),
			Detail:   err.Error(),
			Messages: models.FailureMessages(),
		})
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.pipeline.ResetIndex()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Retriever store cleared. Next request will rebuild from current content.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func chatErrorCode(err error) string {
	var all *llmservice.AllProvidersFailedError
	if errors.As(err, &all) {
		return "ALL_PROVIDERS_FAILED"
	}
	return "CHAT_FAILED"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}
