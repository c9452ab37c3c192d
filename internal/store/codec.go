package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/dedupe"
	"github.com/sells-group/lead-engine/internal/model"
)

// leadColumns are the indexed or patchable fields stored outside the JSON
// document. Column values always win over the document on read.
type leadColumns struct {
	ID                   string
	DupKey               string
	Status               string
	VerificationStatus   string
	IsActive             bool
	LastChecked          *time.Time
	WorkflowID           string
	Embedding            []float32
	EmbeddingModel       string
	EmbeddingGeneratedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// prepareInsert assigns the id and timestamps, and splits the lead into its
// JSON document and column values. The lead is updated in place.
func prepareInsert(lead *model.Lead) ([]byte, leadColumns, error) {
	if lead.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, leadColumns{}, eris.Wrap(err, "store: generate lead id")
		}
		lead.ID = id.String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	lead.CreatedAt = Millis(lead.CreatedAt)
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = lead.CreatedAt
	}
	lead.UpdatedAt = Millis(lead.UpdatedAt)
	if lead.EmbeddingGeneratedAt != nil {
		t := Millis(*lead.EmbeddingGeneratedAt)
		lead.EmbeddingGeneratedAt = &t
	}
	if lead.LastChecked != nil {
		t := Millis(*lead.LastChecked)
		lead.LastChecked = &t
	}

	key, _ := dedupe.LeadKey(lead)
	cols := leadColumns{
		ID:                   lead.ID,
		DupKey:               key,
		Status:               lead.Status,
		VerificationStatus:   lead.VerificationStatus,
		IsActive:             lead.IsActive,
		LastChecked:          lead.LastChecked,
		WorkflowID:           lead.LeadHuntWorkflowID,
		Embedding:            lead.Embedding,
		EmbeddingModel:       lead.EmbeddingModel,
		EmbeddingGeneratedAt: lead.EmbeddingGeneratedAt,
		CreatedAt:            lead.CreatedAt,
		UpdatedAt:            lead.UpdatedAt,
	}

	doc := *lead
	doc.Embedding = nil
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, leadColumns{}, eris.Wrap(err, "store: marshal lead")
	}
	return data, cols, nil
}

// decodeLead rebuilds a lead from its document and column values.
func decodeLead(doc []byte, cols leadColumns) (*model.Lead, error) {
	var l model.Lead
	if err := json.Unmarshal(doc, &l); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal lead %s", cols.ID)
	}
	l.ID = cols.ID
	l.Status = cols.Status
	l.VerificationStatus = cols.VerificationStatus
	l.IsActive = cols.IsActive
	l.LastChecked = cols.LastChecked
	l.LeadHuntWorkflowID = cols.WorkflowID
	l.Embedding = cols.Embedding
	l.EmbeddingModel = cols.EmbeddingModel
	l.EmbeddingGeneratedAt = cols.EmbeddingGeneratedAt
	l.CreatedAt = cols.CreatedAt.UTC()
	l.UpdatedAt = cols.UpdatedAt.UTC()
	return &l, nil
}

// newLinkID returns a fresh procurement link id.
func newLinkID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", eris.Wrap(err, "store: generate link id")
	}
	return id.String(), nil
}
