package api

import (
	"net/http"
	"strconv"

	"github.com/lightmanager/lightmanager/internal/audit"
)

// handleListAudit returns paginated journal entries with optional filters.
//
// Query parameters:
//   - type: filter by event type (e.g. TOGGLE)
//   - handled: "true" or "false"
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit journal not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EventType: q.Get("type"),
	}

	if v := q.Get("handled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "handled must be true or false")
			return
		}
		filter.Handled = &b
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
