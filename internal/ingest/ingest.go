// Package ingest inserts incoming lead payloads, rejecting any whose
// duplicate key is already claimed in the store or earlier in the batch.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/dedupe"
	"github.com/sells-group/lead-engine/internal/metrics"
	"github.com/sells-group/lead-engine/internal/model"
)

// DefaultDetailsLimit caps the skipped entries returned by BulkCreate.
const DefaultDetailsLimit = 50

// Store is the subset of store.LeadStore used by the Ingestor.
type Store interface {
	ScanLeads(ctx context.Context) ([]model.Lead, error)
	InsertLead(ctx context.Context, lead *model.Lead) (string, error)
	DuplicateKeyExists(ctx context.Context, key string) (bool, error)
}

// SkippedDetail explains why one payload was not imported.
type SkippedDetail struct {
	Title  string `json:"title" yaml:"title"`
	Reason string `json:"reason" yaml:"reason"`
}

// BulkResult reports a bulk import. Failed counts payloads whose insert
// errored; they are neither imported nor skipped.
type BulkResult struct {
	Imported       []string        `json:"imported" yaml:"imported"`
	Skipped        int             `json:"skipped" yaml:"skipped"`
	SkippedDetails []SkippedDetail `json:"skippedDetails" yaml:"skippedDetails"`
	Failed         int             `json:"failed,omitempty" yaml:"failed,omitempty"`
	Errors         []string        `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Ingestor creates leads from payloads.
type Ingestor struct {
	store         Store
	defaultRegion string
	detailsLimit  int
	now           func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithDefaultRegion sets the region used when a payload has none.
func WithDefaultRegion(region string) Option {
	return func(i *Ingestor) { i.defaultRegion = region }
}

// WithDetailsLimit caps the number of skipped details returned.
func WithDetailsLimit(n int) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.detailsLimit = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// New creates an Ingestor.
func New(st Store, opts ...Option) *Ingestor {
	i := &Ingestor{store: st, detailsLimit: DefaultDetailsLimit, now: time.Now}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Create validates and inserts a single payload. It returns a
// ValidationError for unusable payloads and a DuplicateError when the
// payload's duplicate key is already held by a stored lead.
func (i *Ingestor) Create(ctx context.Context, p *model.LeadPayload) (*model.Lead, error) {
	lead, err := normalize(p, model.DataTypeManual, "", i.defaultRegion, i.now())
	if err != nil {
		metrics.LeadsSkipped.WithLabelValues("validation").Inc()
		return nil, err
	}

	key, reason := dedupe.LeadKey(lead)
	if key != "" {
		exists, err := i.store.DuplicateKeyExists(ctx, key)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: duplicate key lookup")
		}
		if exists {
			metrics.LeadsSkipped.WithLabelValues(string(reason)).Inc()
			return nil, &model.DuplicateError{Key: key, Signal: string(reason)}
		}
	}

	if _, err := i.store.InsertLead(ctx, lead); err != nil {
		return nil, eris.Wrap(err, "ingest: insert lead")
	}
	metrics.LeadsImported.WithLabelValues(string(lead.Metadata.DataType)).Inc()
	return lead, nil
}

// BulkCreate imports payloads in input order. Every stored lead's key is
// collected first; a payload whose key matches a stored lead or an earlier
// payload in the batch is skipped. Validation failures are skipped too,
// and a failed insert is logged and counted without stopping the batch.
func (i *Ingestor) BulkCreate(ctx context.Context, payloads []model.LeadPayload, sourceFile string) (*BulkResult, error) {
	log := zap.L().With(zap.String("phase", "bulk_import"), zap.String("source_file", sourceFile))

	existing, err := i.store.ScanLeads(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: scan existing leads")
	}
	claimed := make(map[string]struct{}, len(existing))
	for idx := range existing {
		if key, _ := dedupe.LeadKey(&existing[idx]); key != "" {
			claimed[key] = struct{}{}
		}
	}

	result := &BulkResult{Imported: []string{}, SkippedDetails: []SkippedDetail{}}
	now := i.now()

	for idx := range payloads {
		if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "ingest: cancelled")
		}
		p := &payloads[idx]

		lead, err := normalize(p, model.DataTypeBulkImport, sourceFile, i.defaultRegion, now)
		if err != nil {
			i.skip(result, displayTitle(p), err.Error())
			metrics.LeadsSkipped.WithLabelValues("validation").Inc()
			continue
		}

		key, reason := dedupe.LeadKey(lead)
		if key != "" {
			if _, dup := claimed[key]; dup {
				derr := &model.DuplicateError{Key: key, Signal: string(reason)}
				i.skip(result, lead.Title, derr.Error())
				metrics.LeadsSkipped.WithLabelValues(string(reason)).Inc()
				continue
			}
		}

		id, err := i.store.InsertLead(ctx, lead)
		if err != nil {
			log.Warn("ingest: insert failed", zap.String("title", lead.Title), zap.Error(err))
			result.Failed++
			if len(result.Errors) < i.detailsLimit {
				result.Errors = append(result.Errors, eris.Wrapf(err, "ingest: insert %q", lead.Title).Error())
			}
			continue
		}
		if key != "" {
			claimed[key] = struct{}{}
		}
		result.Imported = append(result.Imported, id)
		metrics.LeadsImported.WithLabelValues(string(lead.Metadata.DataType)).Inc()
	}

	log.Info("ingest: bulk import complete",
		zap.Int("received", len(payloads)),
		zap.Int("imported", len(result.Imported)),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (i *Ingestor) skip(r *BulkResult, title, reason string) {
	r.Skipped++
	if len(r.SkippedDetails) < i.detailsLimit {
		r.SkippedDetails = append(r.SkippedDetails, SkippedDetail{Title: title, Reason: reason})
	}
}

func displayTitle(p *model.LeadPayload) string {
	if p.Title != "" {
		return p.Title
	}
	if p.Source.DocumentName != "" {
		return p.Source.DocumentName
	}
	return "(untitled)"
}
