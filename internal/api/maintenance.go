package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/sells-group/lead-engine/internal/embedclear"
	"github.com/sells-group/lead-engine/internal/hunt"
)

type clearEmbeddingsRequest struct {
	BatchSize  int    `json:"batchSize"`
	MaxBatches int    `json:"maxBatches"`
	Cursor     string `json:"cursor"`
}

type clearEmbeddingsResponse struct {
	*embedclear.Result
	NextCursor string `json:"nextCursor,omitempty"`
}

type huntRequest struct {
	SourceText   string `json:"sourceText"`
	DocumentName string `json:"documentName"`
	SourceURL    string `json:"sourceUrl"`
	Region       string `json:"region"`
	WorkflowID   string `json:"workflowId"`
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Cleaner.Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) clearEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req clearEmbeddingsRequest
	// An empty body runs with the configured defaults.
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	if req.BatchSize < 0 || req.MaxBatches < 0 {
		badRequest(w, "batchSize and maxBatches must not be negative")
		return
	}
	cursor, err := embedclear.DecodeCursor(req.Cursor)
	if err != nil {
		badRequest(w, "invalid cursor")
		return
	}

	res, err := s.svc.ClearEmbeddings(r.Context(), req.BatchSize, req.MaxBatches, cursor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := clearEmbeddingsResponse{Result: res}
	if res.HasMore && res.Cursor != nil {
		if out.NextCursor, err = res.Cursor.Encode(); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) runHunt(w http.ResponseWriter, r *http.Request) {
	if s.hunter == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "lead hunts are not configured", Code: "unavailable"})
		return
	}
	var req huntRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid hunt body: "+err.Error())
		return
	}
	res, err := s.hunter.Hunt(r.Context(), hunt.Request{
		SourceText:   req.SourceText,
		DocumentName: req.DocumentName,
		SourceURL:    req.SourceURL,
		Region:       req.Region,
		WorkflowID:   req.WorkflowID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
