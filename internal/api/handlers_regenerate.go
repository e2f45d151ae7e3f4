package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleRegenerate runs the pipeline synchronously and returns its result.
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	res := s.orchestrator.Run(r.Context())

	status := http.StatusOK
	if !res.OK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleRegeneration(w http.ResponseWriter, r *http.Request) {
	h := s.orchestrator.History()
	if h == nil {
		jsonError(w, "history disabled", http.StatusNotFound)
		return
	}
	res := h.Get(chi.URLParam(r, "id"))
	if res == nil {
		jsonError(w, "regeneration not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRegenerations(w http.ResponseWriter, r *http.Request) {
	list := []any{}
	if h := s.orchestrator.History(); h != nil {
		for _, res := range h.List() {
			list = append(list, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"regenerations": list})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
