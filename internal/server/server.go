/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/agent"
	"github.com/speca-google/goes-agents-poc/internal/tools"
)

const (
	requestTimeout  = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 1 << 20
)

// Asker answers a question within a session.
type Asker interface {
	Ask(ctx context.Context, sess *agent.Session, question string) (string, error)
}

// Tools is what the tool endpoints call directly.
type Tools interface {
	Schema(ctx context.Context) string
	Execute(ctx context.Context, sqlText string) tools.QueryResult
}

type Server struct {
	asker    Asker
	sessions *agent.Store
	tools    Tools
	logger   *zap.Logger
	router   chi.Router
}

func New(asker Asker, sessions *agent.Store, toolset Tools, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{asker: asker, sessions: sessions, tools: toolset, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
		r.Get("/tools/schema", s.handleSchema)
		r.Post("/tools/query", s.handleQuery)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer,omitempty"`
	Error     string `json:"error,omitempty"`
}

type queryRequest struct {
	SQLQuery string `json:"sql_query"`
}

type queryResponse struct {
	Kind   string `json:"kind"`
	Fault  string `json:"fault,omitempty"`
	Rows   int    `json:"rows"`
	Result string `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	sess := s.sessions.Get(req.SessionID)
	answer, err := s.asker.Ask(r.Context(), sess, req.Question)
	if err != nil {
		s.logger.Error("ask failed", zap.String("session_id", sess.ID), zap.Error(err))
		respondJSON(w, askErrorStatus(err), askResponse{SessionID: sess.ID, Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, askResponse{SessionID: sess.ID, Answer: answer})
}

func askErrorStatus(err error) int {
	var (
		modelErr  *agent.ErrModelCall
		loopErr   *agent.ErrToolLoop
		cancelErr *agent.ErrCancelled
	)
	switch {
	case errors.As(err, &cancelErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &modelErr):
		return http.StatusBadGateway
	case errors.As(err, &loopErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Delete(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.tools.Schema(r.Context())))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.SQLQuery) == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "sql_query is required"})
		return
	}

	result := s.tools.Execute(r.Context(), req.SQLQuery)
	resp := queryResponse{
		Kind:   result.Kind.String(),
		Rows:   result.RowCount(),
		Result: result.String(),
	}
	if result.Kind == tools.ResultFault {
		resp.Fault = result.Fault.String()
	}
	respondJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
