// internal/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/flow"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Timestamp: float64(now.UnixNano()) / 1e9,
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	body, err := renderHome()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to render page")
		s.logger.Error("Failed to render home page.", zap.Error(err))
		return
	}
	s.respondHTML(w, http.StatusOK, body)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	h, err := s.driver.Start(r.Context(), location)
	if err != nil {
		if errors.Is(err, flow.ErrMissingLocation) {
			s.respondError(w, http.StatusBadRequest, "Missing location parameter")
			return
		}
		s.logger.Error("Failed to start session.", zap.String("location", location), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	// A browser cannot be redirected from GET to POST, so the page posts itself.
	body, err := renderRedirect(linkPath(h.ID))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	s.respondHTML(w, http.StatusOK, body)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "Malformed form data")
		return
	}
	supplied := make(map[string]string, len(r.PostForm))
	for name, values := range r.PostForm {
		if len(values) > 0 {
			supplied[name] = values[len(values)-1]
		}
	}

	out, err := s.driver.Round(r.Context(), id, supplied)
	switch {
	case errors.Is(err, flow.ErrUnknownSession):
		s.respondError(w, http.StatusNotFound, "Invalid id: "+id)
		return
	case errors.Is(err, flow.ErrTimeout):
		s.respondError(w, http.StatusServiceUnavailable, "Timeout reached")
		return
	case err != nil:
		s.logger.Error("Round failed.", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Round failed")
		return
	}

	if out.Converted() {
		s.respondJSON(w, http.StatusOK, out.Records)
		return
	}
	body, err := Render(out.Body, out.Title, linkPath(id))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	s.respondHTML(w, http.StatusOK, body)
}

func linkPath(id string) string {
	return fmt.Sprintf("/link/%s", id)
}

func (s *Server) respondHTML(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("Failed to write response.", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, detail string) {
	s.respondJSON(w, statusCode, ErrorResponse{Detail: detail})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}
