// Package leads wires the lifecycle engine components over one store and
// adds the single-record and procurement-link operations.
package leads

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/embedclear"
	"github.com/sells-group/lead-engine/internal/ingest"
	"github.com/sells-group/lead-engine/internal/lifecycle"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/paging"
	"github.com/sells-group/lead-engine/internal/store"
)

// Service is the engine facade used by the HTTP API and the CLI.
type Service struct {
	store store.LeadStore
	now   func() time.Time

	Ingest     *ingest.Ingestor
	Pager      *paging.Paginator
	Cleaner    *lifecycle.Cleaner
	Embeddings *embedclear.Job

	// Embedding clear defaults from config.
	EmbeddingBatchSize  int
	EmbeddingMaxBatches int
}

// NewService builds the engine components from cfg.
func NewService(st store.LeadStore, cfg *config.Config) (*Service, error) {
	loc, err := cfg.Lifecycle.Location()
	if err != nil {
		return nil, err
	}
	embCfg := cfg.Embeddings
	return &Service{
		store: st,
		now:   time.Now,
		Ingest: ingest.New(st,
			ingest.WithDefaultRegion(cfg.Ingest.DefaultRegion),
			ingest.WithDetailsLimit(cfg.Ingest.DetailsLimit),
		),
		Pager: paging.New(st, paging.Config{
			DefaultLimit: cfg.Paging.DefaultLimit,
			MaxLimit:     cfg.Paging.MaxLimit,
		}),
		Cleaner: lifecycle.NewCleaner(st,
			lifecycle.NewClassifier(cfg.Lifecycle.URLDenylist, loc),
			cfg.Lifecycle.DetailsLimit,
		),
		Embeddings: embedclear.New(st, embedclear.WithBudget(
			time.Duration(embCfg.ExecutionCeilingSecs)*time.Second,
			time.Duration(embCfg.SafetyMarginSecs)*time.Second,
		)),
		EmbeddingBatchSize:  embCfg.BatchSize,
		EmbeddingMaxBatches: embCfg.MaxBatches,
	}, nil
}

// Ping checks the store connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetLead returns one lead or a NotFoundError.
func (s *Service) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	return s.store.GetLead(ctx, id)
}

// UpdateLeadStatus sets the lead status and/or verification status and
// returns the updated lead.
func (s *Service) UpdateLeadStatus(ctx context.Context, id string, status, verificationStatus *string) (*model.Lead, error) {
	patch := model.LeadPatch{}
	if status != nil {
		v := strings.TrimSpace(*status)
		if v == "" {
			return nil, &model.ValidationError{Field: "status", Reason: "status must not be empty"}
		}
		patch.Status = &v
	}
	if verificationStatus != nil {
		v := strings.TrimSpace(*verificationStatus)
		patch.VerificationStatus = &v
	}
	if patch.Status == nil && patch.VerificationStatus == nil {
		return nil, &model.ValidationError{Field: "status", Reason: "status or verificationStatus is required"}
	}
	if err := s.store.PatchLead(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.store.GetLead(ctx, id)
}

// MarkChecked records that the lead's source was confirmed just now.
func (s *Service) MarkChecked(ctx context.Context, id string) (*model.Lead, error) {
	now := store.Millis(s.now())
	if err := s.store.PatchLead(ctx, id, model.LeadPatch{LastChecked: &now}); err != nil {
		return nil, err
	}
	return s.store.GetLead(ctx, id)
}

// SetLeadEmbedding records an embedding computed by the enrichment
// provider and stamps its generation time.
func (s *Service) SetLeadEmbedding(ctx context.Context, id string, vector []float32, embeddingModel string) (*model.Lead, error) {
	embeddingModel = strings.TrimSpace(embeddingModel)
	if embeddingModel == "" {
		return nil, &model.ValidationError{Field: "embeddingModel", Reason: "embedding model is required"}
	}
	if err := s.store.SetEmbedding(ctx, id, vector, embeddingModel, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetLead(ctx, id)
}

// DeleteLead removes one lead. Missing leads return a NotFoundError.
func (s *Service) DeleteLead(ctx context.Context, id string) error {
	if err := s.store.DeleteLead(ctx, id); err != nil {
		return err
	}
	zap.L().Info("leads: deleted", zap.String("lead_id", id))
	return nil
}

// ListLeadsByWorkflow returns the leads a hunt workflow produced.
func (s *Service) ListLeadsByWorkflow(ctx context.Context, workflowID string) ([]model.Lead, error) {
	if strings.TrimSpace(workflowID) == "" {
		return nil, &model.ValidationError{Field: "workflowId", Reason: "workflow id is required"}
	}
	return s.store.ListLeadsByWorkflow(ctx, workflowID)
}

// Stats counts leads by active flag.
func (s *Service) Stats(ctx context.Context) (*model.LeadStats, error) {
	return s.store.LeadStats(ctx)
}

// ClearEmbeddings runs one embedding clear invocation with the configured
// batch settings when batchSize or maxBatches is zero.
func (s *Service) ClearEmbeddings(ctx context.Context, batchSize, maxBatches int, cursor *embedclear.Cursor) (*embedclear.Result, error) {
	if batchSize <= 0 {
		batchSize = s.EmbeddingBatchSize
	}
	if maxBatches <= 0 {
		maxBatches = s.EmbeddingMaxBatches
	}
	return s.Embeddings.ClearAll(ctx, batchSize, maxBatches, cursor)
}

// AddLink upserts a procurement link keyed by its URL. New links default
// to pending.
func (s *Service) AddLink(ctx context.Context, link *model.ProcurementLink) (*model.ProcurementLink, error) {
	if err := validateLink(link); err != nil {
		return nil, err
	}
	id, err := s.store.UpsertProcurementLink(ctx, link)
	if err != nil {
		return nil, err
	}
	link.ID = id
	return link, nil
}

// ImportLinks bulk-inserts links. The batch is rejected as a whole if any
// link is invalid or already stored.
func (s *Service) ImportLinks(ctx context.Context, links []model.ProcurementLink) (int64, error) {
	for i := range links {
		if err := validateLink(&links[i]); err != nil {
			return 0, eris.Wrapf(err, "leads: link %d", i)
		}
	}
	n, err := s.store.InsertProcurementLinks(ctx, links)
	if err != nil {
		return 0, err
	}
	zap.L().Info("leads: imported procurement links", zap.Int64("count", n))
	return n, nil
}

// SetLinkStatus moves a link to pending, approved or invalid.
func (s *Service) SetLinkStatus(ctx context.Context, id string, status model.LinkStatus) error {
	if !status.Valid() {
		return &model.ValidationError{Field: "status", Reason: "must be pending, approved or invalid"}
	}
	return s.store.SetProcurementLinkStatus(ctx, id, status)
}

// ApprovedLinks lists links with status approved.
func (s *Service) ApprovedLinks(ctx context.Context) ([]model.ProcurementLink, error) {
	return s.store.ListProcurementLinks(ctx, model.LinkStatusApproved)
}

func validateLink(link *model.ProcurementLink) error {
	link.ProcurementLink = strings.TrimSpace(link.ProcurementLink)
	if link.ProcurementLink == "" {
		return &model.ValidationError{Field: "procurementLink", Reason: "procurement link is required"}
	}
	if link.Status == "" {
		link.Status = model.LinkStatusPending
	}
	if !link.Status.Valid() {
		return &model.ValidationError{Field: "status", Reason: "must be pending, approved or invalid"}
	}
	return nil
}
