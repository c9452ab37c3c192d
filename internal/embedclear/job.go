// Package embedclear strips embedding data from leads in resumable batches
// that fit under an external execution time limit.
package embedclear

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/metrics"
	"github.com/sells-group/lead-engine/internal/store"
)

// Defaults for batch sizing and the time budget.
const (
	DefaultBatchSize         = 100
	DefaultMaxBatches        = 50
	DefaultExecutionCeiling  = 10 * time.Minute
	DefaultSafetyMargin      = time.Minute
	maxRecordedErrorMessages = 50
)

// Store is the subset of store.LeadStore used by the Job.
type Store interface {
	LeadsWithEmbedding(ctx context.Context, index store.EmbeddingIndex, after store.EmbeddingPosition, limit int) ([]store.EmbeddingRef, error)
	ClearEmbedding(ctx context.Context, id string) error
}

// Cursor is the resume point of a clear run. The zero value starts at the
// beginning of the primary index.
type Cursor struct {
	Index            store.EmbeddingIndex `json:"index"`
	AfterGeneratedAt *time.Time           `json:"afterGeneratedAt,omitempty"`
	AfterID          string               `json:"afterId,omitempty"`
}

// Encode returns the cursor as an opaque URL-safe token.
func (c *Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", eris.Wrap(err, "embedclear: encode cursor")
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by Encode. An empty token yields nil.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, eris.Wrap(err, "embedclear: decode cursor")
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "embedclear: parse cursor")
	}
	switch c.Index {
	case store.EmbeddingIndexPrimary, store.EmbeddingIndexLegacy:
	case "":
		c.Index = store.EmbeddingIndexPrimary
	default:
		return nil, eris.Errorf("embedclear: unknown index %q in cursor", c.Index)
	}
	return &c, nil
}

// Result reports one invocation. HasMore with a nil error is the normal
// outcome when the batch or time budget ran out first.
type Result struct {
	ClearedCount   int      `json:"clearedCount" yaml:"clearedCount"`
	ProcessedCount int      `json:"processedCount" yaml:"processedCount"`
	ErrorCount     int      `json:"errorCount" yaml:"errorCount"`
	HasMore        bool     `json:"hasMore" yaml:"hasMore"`
	Cursor         *Cursor  `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	Errors         []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Job clears embeddings.
type Job struct {
	store  Store
	budget time.Duration
	now    func() time.Time
}

// Option configures a Job.
type Option func(*Job)

// WithBudget sets the wall-clock budget as ceiling minus margin.
func WithBudget(ceiling, margin time.Duration) Option {
	return func(j *Job) {
		if ceiling > 0 {
			j.budget = ceiling - margin
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// New creates a Job.
func New(st Store, opts ...Option) *Job {
	j := &Job{
		store:  st,
		budget: DefaultExecutionCeiling - DefaultSafetyMargin,
		now:    time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// ClearAll clears up to maxBatches batches of batchSize leads, starting at
// cursor. The primary index is swept first, then the legacy index. The
// returned cursor sits after the last visited record, so a record whose
// clear failed is not retried by the next invocation.
func (j *Job) ClearAll(ctx context.Context, batchSize, maxBatches int, cursor *Cursor) (*Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}
	pos := Cursor{Index: store.EmbeddingIndexPrimary}
	if cursor != nil {
		pos = *cursor
		if pos.Index == "" {
			pos.Index = store.EmbeddingIndexPrimary
		}
	}

	log := zap.L().With(zap.String("phase", "embedding_clear"))
	deadline := j.now().Add(j.budget)
	res := &Result{}

	batches := 0
	for {
		if batches >= maxBatches || !j.now().Before(deadline) {
			res.HasMore = true
			break
		}
		if err := ctx.Err(); err != nil {
			res.HasMore = true
			res.Cursor = cursorPtr(pos)
			return res, eris.Wrap(err, "embedclear: cancelled")
		}

		refs, err := j.store.LeadsWithEmbedding(ctx, pos.Index, store.EmbeddingPosition{
			AfterGeneratedAt: pos.AfterGeneratedAt,
			AfterID:          pos.AfterID,
		}, batchSize)
		if err != nil {
			res.HasMore = true
			res.Cursor = cursorPtr(pos)
			return res, eris.Wrapf(err, "embedclear: read %s", pos.Index)
		}

		if len(refs) == 0 {
			if pos.Index == store.EmbeddingIndexPrimary {
				pos = Cursor{Index: store.EmbeddingIndexLegacy}
				continue
			}
			res.HasMore = false
			break
		}
		batches++

		for _, ref := range refs {
			res.ProcessedCount++
			if err := j.store.ClearEmbedding(ctx, ref.ID); err != nil {
				res.ErrorCount++
				metrics.EmbeddingClearErrors.Inc()
				if len(res.Errors) < maxRecordedErrorMessages {
					res.Errors = append(res.Errors, eris.Wrapf(err, "embedclear: clear %s", ref.ID).Error())
				}
				log.Warn("embedclear: clear failed", zap.String("lead_id", ref.ID), zap.Error(err))
			} else {
				res.ClearedCount++
				metrics.EmbeddingsCleared.WithLabelValues(string(pos.Index)).Inc()
			}
			pos.AfterID = ref.ID
			pos.AfterGeneratedAt = ref.GeneratedAt
		}

		if len(refs) < batchSize && pos.Index == store.EmbeddingIndexLegacy {
			res.HasMore = false
			break
		}
	}

	if res.HasMore {
		res.Cursor = cursorPtr(pos)
	}
	log.Info("embedclear: invocation complete",
		zap.Int("cleared", res.ClearedCount),
		zap.Int("processed", res.ProcessedCount),
		zap.Int("errors", res.ErrorCount),
		zap.Bool("has_more", res.HasMore),
	)
	return res, nil
}

func cursorPtr(c Cursor) *Cursor {
	return &c
}
