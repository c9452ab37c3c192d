package store

import (
	"context"
	"time"

	"github.com/sells-group/lead-engine/internal/model"
)

// EmbeddingIndex names one of the two indexes over leads carrying
// embedding data.
type EmbeddingIndex string

const (
	// EmbeddingIndexPrimary holds leads with embedding_generated_at set,
	// ordered by (embedding_generated_at, id).
	EmbeddingIndexPrimary EmbeddingIndex = "by_embedding_generated_at"
	// EmbeddingIndexLegacy holds leads with embedding data but no
	// generation timestamp, ordered by id.
	EmbeddingIndexLegacy EmbeddingIndex = "by_embedding_model"
)

// EmbeddingPosition is an exclusive lower bound within an embedding index.
// The zero value starts at the beginning of the index.
type EmbeddingPosition struct {
	AfterGeneratedAt *time.Time `json:"afterGeneratedAt,omitempty"`
	AfterID          string     `json:"afterId,omitempty"`
}

// EmbeddingRef is an index entry: enough to patch the lead without reading it.
type EmbeddingRef struct {
	ID          string
	GeneratedAt *time.Time
}

// LeadStore is the persistence interface of the lead lifecycle engine.
//
// Leads are ordered for pagination by (created_at desc, id desc) and for
// full scans by (created_at asc, id asc); ids compare bytewise.
type LeadStore interface {
	// Point operations
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	InsertLead(ctx context.Context, lead *model.Lead) (string, error)
	PatchLead(ctx context.Context, id string, patch model.LeadPatch) error
	DeleteLead(ctx context.Context, id string) error

	// Scans and index lookups
	ScanLeads(ctx context.Context) ([]model.Lead, error)
	LeadsCreatedBefore(ctx context.Context, before *time.Time, limit int) ([]model.Lead, error)
	LeadsCreatedAt(ctx context.Context, at time.Time, belowID string, limit int) ([]model.Lead, error)
	HasLeadsCreatedBefore(ctx context.Context, before time.Time) (bool, error)
	HasLeadsCreatedAt(ctx context.Context, at time.Time, belowID string) (bool, error)
	DuplicateKeyExists(ctx context.Context, key string) (bool, error)
	ListLeadsByWorkflow(ctx context.Context, workflowID string) ([]model.Lead, error)
	LeadStats(ctx context.Context) (*model.LeadStats, error)

	// Embeddings
	LeadsWithEmbedding(ctx context.Context, index EmbeddingIndex, after EmbeddingPosition, limit int) ([]EmbeddingRef, error)
	SetEmbedding(ctx context.Context, id string, vector []float32, embeddingModel string, generatedAt time.Time) error
	ClearEmbedding(ctx context.Context, id string) error

	// Procurement links
	UpsertProcurementLink(ctx context.Context, link *model.ProcurementLink) (string, error)
	InsertProcurementLinks(ctx context.Context, links []model.ProcurementLink) (int64, error)
	SetProcurementLinkStatus(ctx context.Context, id string, status model.LinkStatus) error
	ListProcurementLinks(ctx context.Context, status model.LinkStatus) ([]model.ProcurementLink, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// checkEmbedding rejects an empty vector; a generation timestamp is only
// stored alongside embedding data.
func checkEmbedding(vector []float32) error {
	if len(vector) == 0 {
		return &model.ValidationError{Field: "embedding", Reason: "embedding must not be empty"}
	}
	return nil
}

// Millis truncates t to millisecond precision in UTC, the precision every
// backend stores timestamps at.
func Millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
