package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/paging"
)

type bulkLeadsRequest struct {
	Leads      []model.LeadPayload `json:"leads"`
	SourceFile string              `json:"sourceFile"`
}

type leadEmbeddingRequest struct {
	Embedding      []float32 `json:"embedding"`
	EmbeddingModel string    `json:"embeddingModel"`
}

type leadStatusRequest struct {
	Status             *string `json:"status"`
	VerificationStatus *string `json:"verificationStatus"`
}

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	var p model.LeadPayload
	if err := decodeBody(w, r, &p); err != nil {
		badRequest(w, "invalid lead body: "+err.Error())
		return
	}
	lead, err := s.svc.Ingest.Create(r.Context(), &p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (s *Server) bulkCreateLeads(w http.ResponseWriter, r *http.Request) {
	var req bulkLeadsRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid bulk body: "+err.Error())
		return
	}
	if len(req.Leads) == 0 {
		badRequest(w, "leads must not be empty")
		return
	}
	res, err := s.svc.Ingest.BulkCreate(r.Context(), req.Leads, req.SourceFile)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) pageLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var cursor *paging.Cursor
	if v := q.Get("lastCreatedAt"); v != "" {
		at, err := parseCursorTime(v)
		if err != nil {
			badRequest(w, "lastCreatedAt must be RFC 3339 or epoch milliseconds")
			return
		}
		cursor = &paging.Cursor{LastCreatedAt: &at}
	}
	if v := q.Get("lastId"); v != "" {
		if cursor == nil {
			cursor = &paging.Cursor{}
		}
		cursor.LastID = v
	}

	page, err := s.svc.Pager.Page(r.Context(), limit, cursor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseCursorTime accepts RFC 3339 timestamps and epoch milliseconds.
func parseCursorTime(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func (s *Server) leadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.svc.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req leadStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid status body: "+err.Error())
		return
	}
	lead, err := s.svc.UpdateLeadStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.VerificationStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) markChecked(w http.ResponseWriter, r *http.Request) {
	lead, err := s.svc.MarkChecked(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) setLeadEmbedding(w http.ResponseWriter, r *http.Request) {
	var req leadEmbeddingRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid embedding body: "+err.Error())
		return
	}
	lead, err := s.svc.SetLeadEmbedding(r.Context(), chi.URLParam(r, "id"), req.Embedding, req.EmbeddingModel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) deleteLead(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteLead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) workflowLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.svc.ListLeadsByWorkflow(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "total": len(leads)})
}
