package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tripbook/internal/domain"
)

// csvHeaders defines the column names written as the first row of any CSV export.
var csvHeaders = []string{
	"trip_id", "trip_name", "trip_status", "trip_start_date", "trip_end_date",
	"privacy", "step_title", "step_note", "visited_at", "end_at",
	"lat", "lng", "photo_count",
}

// GetExport handles GET /api/export. It returns the signed-in user's full
// itinerary as a flat table, one row per step (trips without steps get a
// single row with empty step columns). Use ?format=csv for CSV; default
// is JSON.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rows := exportRows(svc.Trips(), s.now())

	if r.URL.Query().Get("format") == "csv" {
		s.writeCSV(w, rows)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// exportRows flattens trips into denormalized per-step rows.
func exportRows(trips []domain.Trip, now time.Time) []domain.ExportRow {
	rows := make([]domain.ExportRow, 0, len(trips))
	for _, t := range trips {
		base := domain.ExportRow{
			TripID:     t.ID.String(),
			TripName:   t.Name,
			TripStatus: string(domain.Status(t.StartDate, t.EndDate, now)),
			Privacy:    string(t.Privacy),
		}
		if t.StartDate != nil {
			base.TripStartDate = t.StartDate.Format(time.RFC3339)
		}
		if t.EndDate != nil {
			base.TripEndDate = t.EndDate.Format(time.RFC3339)
		}

		if len(t.Steps) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, st := range t.Steps {
			row := base
			row.StepTitle = st.Title
			row.StepNote = st.Note
			row.VisitedAt = st.VisitedAt
			row.EndAt = st.EndAt
			row.Lat = st.Lat
			row.Lng = st.Lng
			row.PhotoCount = len(st.Photos)
			rows = append(rows, row)
		}
	}
	return rows
}

func (s *Server) writeCSV(w http.ResponseWriter, rows []domain.ExportRow) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	//nolint:errcheck // bytes.Buffer.Write never returns an error.
	cw.Write(csvHeaders)
	for _, r := range rows {
		cw.Write([]string{
			r.TripID, r.TripName, r.TripStatus, r.TripStartDate, r.TripEndDate,
			r.Privacy, r.StepTitle, r.StepNote,
			fmtTime(r.VisitedAt), fmtTime(r.EndAt),
			fmtFloat(r.Lat), fmtFloat(r.Lng),
			strconv.Itoa(r.PhotoCount),
		})
	}
	cw.Flush()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tripbook-export.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Error("write csv export", "error", err)
	}
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%g", *f)
}
