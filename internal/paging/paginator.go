// Package paging pages through leads ordered by (createdAt desc, id desc)
// with a compound cursor that survives runs of identical timestamps.
package paging

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/metrics"
	"github.com/sells-group/lead-engine/internal/model"
)

// Defaults for limit handling.
const (
	DefaultLimit    = 50
	DefaultMaxLimit = 500
)

// Store is the subset of store.LeadStore used by the Paginator.
type Store interface {
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	LeadsCreatedBefore(ctx context.Context, before *time.Time, limit int) ([]model.Lead, error)
	LeadsCreatedAt(ctx context.Context, at time.Time, belowID string, limit int) ([]model.Lead, error)
	HasLeadsCreatedBefore(ctx context.Context, before time.Time) (bool, error)
	HasLeadsCreatedAt(ctx context.Context, at time.Time, belowID string) (bool, error)
}

// Cursor marks the last lead returned by the previous page.
type Cursor struct {
	LastCreatedAt *time.Time `json:"lastCreatedAt,omitempty"`
	LastID        string     `json:"lastId,omitempty"`
}

// Page is one page of leads.
type Page struct {
	Leads         []model.Lead `json:"leads"`
	HasMore       bool         `json:"hasMore"`
	LastCreatedAt *time.Time   `json:"lastCreatedAt,omitempty"`
	LastID        string       `json:"lastId,omitempty"`
}

// Paginator serves pages of leads.
type Paginator struct {
	store        Store
	defaultLimit int
	maxLimit     int
}

// Config tunes a Paginator. Zero values use the package defaults.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// New creates a Paginator.
func New(st Store, cfg Config) *Paginator {
	p := &Paginator{
		store:        st,
		defaultLimit: DefaultLimit,
		maxLimit:     DefaultMaxLimit,
	}
	if cfg.DefaultLimit > 0 {
		p.defaultLimit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 {
		p.maxLimit = cfg.MaxLimit
	}
	return p
}

// Page returns up to limit leads following cursor.
//
// With a cursor, leads in the cursor's tie group (same createdAt, smaller
// id) come first, then strictly older leads from the createdAt range scan.
// A cursor with only LastID is resolved through the referenced lead; if
// that lead no longer exists the page starts from the newest lead.
func (p *Paginator) Page(ctx context.Context, limit int, cursor *Cursor) (*Page, error) {
	limit = p.clampLimit(limit)

	cursor, err := p.resolveCursor(ctx, cursor)
	if err != nil {
		return nil, err
	}

	var leads []model.Lead
	if cursor == nil {
		metrics.PageFetches.WithLabelValues("none").Inc()
		leads, err = p.store.LeadsCreatedBefore(ctx, nil, limit)
		if err != nil {
			return nil, eris.Wrap(err, "paging: fetch first page")
		}
	} else {
		metrics.PageFetches.WithLabelValues("present").Inc()
		leads, err = p.afterCursor(ctx, limit, *cursor)
		if err != nil {
			return nil, err
		}
	}

	page := &Page{Leads: leads}
	if page.Leads == nil {
		page.Leads = []model.Lead{}
	}
	if len(leads) == 0 {
		return page, nil
	}

	last := leads[len(leads)-1]
	at := last.CreatedAt
	page.LastCreatedAt = &at
	page.LastID = last.ID

	if len(leads) == limit {
		page.HasMore = true
		return page, nil
	}
	page.HasMore = p.probe(ctx, last)
	return page, nil
}

func (p *Paginator) afterCursor(ctx context.Context, limit int, c Cursor) ([]model.Lead, error) {
	at := *c.LastCreatedAt

	var leads []model.Lead
	if c.LastID != "" {
		tied, err := p.store.LeadsCreatedAt(ctx, at, c.LastID, limit)
		if err != nil {
			return nil, eris.Wrap(err, "paging: fetch tie group")
		}
		leads = tied
	}

	if remaining := limit - len(leads); remaining > 0 {
		older, err := p.store.LeadsCreatedBefore(ctx, &at, remaining)
		if err != nil {
			return nil, eris.Wrap(err, "paging: fetch older leads")
		}
		leads = append(leads, older...)
	}
	return leads, nil
}

// probe reports whether any lead sorts after last. A probe failure fails
// open: the caller issues one more request instead of losing records.
func (p *Paginator) probe(ctx context.Context, last model.Lead) bool {
	older, err := p.store.HasLeadsCreatedBefore(ctx, last.CreatedAt)
	if err == nil && older {
		return true
	}
	if err == nil {
		var tied bool
		tied, err = p.store.HasLeadsCreatedAt(ctx, last.CreatedAt, last.ID)
		if err == nil {
			return tied
		}
	}

	zap.L().Warn("paging: hasMore probe failed, reporting more",
		zap.String("last_id", last.ID),
		zap.Error(err),
	)
	metrics.ProbeFailOpen.Inc()
	return true
}

// resolveCursor fills in LastCreatedAt for a cursor that only carries an
// id. A nil result means start from the beginning.
func (p *Paginator) resolveCursor(ctx context.Context, c *Cursor) (*Cursor, error) {
	if c == nil {
		return nil, nil
	}
	if c.LastCreatedAt != nil {
		at := c.LastCreatedAt.UTC().Truncate(time.Millisecond)
		return &Cursor{LastCreatedAt: &at, LastID: c.LastID}, nil
	}
	if c.LastID == "" {
		return nil, nil
	}

	lead, err := p.store.GetLead(ctx, c.LastID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "paging: resolve cursor %s", c.LastID)
	}
	at := lead.CreatedAt
	return &Cursor{LastCreatedAt: &at, LastID: lead.ID}, nil
}

func (p *Paginator) clampLimit(limit int) int {
	if limit <= 0 {
		return p.defaultLimit
	}
	if limit > p.maxLimit {
		return p.maxLimit
	}
	return limit
}
