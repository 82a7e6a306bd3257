package handler

import (
	"net/http"

	"tripbook/internal/alert"
)

// ListAlerts handles GET /api/alerts. It returns the reminder banners for
// trips starting within the next week, soonest first, day alerts before
// week alerts.
func (s *Server) ListAlerts(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	alerts := svc.Alerts(s.now())
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}
