package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/lead-engine/internal/leadio"
	"github.com/sells-group/lead-engine/internal/model"
)

type linkStatusRequest struct {
	Status model.LinkStatus `json:"status"`
}

func (s *Server) addLink(w http.ResponseWriter, r *http.Request) {
	var link model.ProcurementLink
	if err := decodeBody(w, r, &link); err != nil {
		badRequest(w, "invalid link body: "+err.Error())
		return
	}
	saved, err := s.svc.AddLink(r.Context(), &link)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) importLinks(w http.ResponseWriter, r *http.Request) {
	var links []model.ProcurementLink
	if err := decodeBody(w, r, &links); err != nil {
		badRequest(w, "invalid links body: "+err.Error())
		return
	}
	n, err := s.svc.ImportLinks(r.Context(), links)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"inserted": n})
}

// approvedLinks answers json by default; ?format=csv|yaml|table streams the
// export formats the CLI writes.
func (s *Server) approvedLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.svc.ApprovedLinks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", leadio.FormatJSON:
		if links == nil {
			links = []model.ProcurementLink{}
		}
		writeJSON(w, http.StatusOK, leadio.LinkExport{FetchedAt: s.now().UTC(), TotalLinks: len(links), Links: links})
	case leadio.FormatCSV, leadio.FormatYAML, leadio.FormatTable:
		w.Header().Set("Content-Type", contentTypes[format])
		w.WriteHeader(http.StatusOK)
		_ = leadio.WriteLinks(w, links, format, s.now().UTC())
	default:
		badRequest(w, "format must be json, csv, yaml or table")
	}
}

var contentTypes = map[string]string{
	leadio.FormatCSV:   "text/csv; charset=utf-8",
	leadio.FormatYAML:  "application/yaml",
	leadio.FormatTable: "text/plain; charset=utf-8",
}

func (s *Server) setLinkStatus(w http.ResponseWriter, r *http.Request) {
	var req linkStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid status body: "+err.Error())
		return
	}
	if err := s.svc.SetLinkStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
