package api

import (
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := s.decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.service.HandleChat(r.Context(), body.request(w.Header().Get(requestIDHeader)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleBody
	if err := s.decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.service.HandleSchedule(r.Context(), body.ScheduleRequest, body.APIKeys)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// handleModels lists providers. ?live=true asks each configured provider.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	live, _ := strconv.ParseBool(r.URL.Query().Get("live"))
	s.writeJSON(w, r, http.StatusOK, s.service.Catalog(r.Context(), live, nil))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, healthBody{
		Status:    "healthy",
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{
		"name":        "Theo-AI",
		"description": "Stateless chat orchestrator for enterprise ops",
		"version":     s.version,
		"status":      "online",
	})
}
