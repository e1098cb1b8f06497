package web

import (
	"net/http"
	"strconv"
)

// handleReset purges the local store and reloads the registry.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Reset(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSync pushes the registry to the mirror and waits for the outcome.
// ?force=true pushes even when the mirror is already in line.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	status, err := s.service.Resync(r.Context(), force)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.SyncStatus())
}

// handleHealth answers 503 until the registry has been hydrated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.service.Health()
	status := http.StatusOK
	if !h.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
