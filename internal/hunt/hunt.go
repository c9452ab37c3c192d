// Package hunt extracts procurement leads from source documents with a
// chat-completion model and feeds them through bulk ingest.
package hunt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/ingest"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
	"github.com/sells-group/lead-engine/pkg/anthropic"
)

// Defaults for the extraction call.
const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 8192
)

const systemPrompt = `You extract public procurement opportunities (bids, RFPs, RFQs, planned capital projects) from government documents.
Reply with only a JSON array. Each element is an object with these fields:
title, opportunityType, category, subcategory, status, summary, contractID, estimatedValueUSD (number),
issuingBody {name, level}, location {city, county, region},
keyDates {publishedDate, bidDeadline, projectedStartDate} as YYYY-MM-DD,
source {documentName, url}, contacts [{name, title, email, phone, url}].
Omit fields the document does not state. Reply with [] when the document has no opportunities.`

// Importer is the bulk ingest entry point.
type Importer interface {
	BulkCreate(ctx context.Context, payloads []model.LeadPayload, sourceFile string) (*ingest.BulkResult, error)
}

// Request describes one document to hunt.
type Request struct {
	SourceText   string
	DocumentName string
	SourceURL    string
	// Region is the fallback for leads whose location has no region.
	Region string
	// WorkflowID is generated when empty.
	WorkflowID string
}

// Result reports one hunt.
type Result struct {
	WorkflowID string             `json:"workflowId" yaml:"workflowId"`
	Extracted  int                `json:"extracted" yaml:"extracted"`
	Truncated  bool               `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Import     *ingest.BulkResult `json:"import" yaml:"import"`
}

// Hunter runs lead hunts.
type Hunter struct {
	client    anthropic.Client
	importer  Importer
	model     string
	maxTokens int64
	limiter   *adaptiveLimiter
	policy    resilience.Policy
	breaker   *resilience.Breaker
}

// Option configures a Hunter.
type Option func(*Hunter)

// WithModel sets the model and output token cap.
func WithModel(model string, maxTokens int64) Option {
	return func(h *Hunter) {
		if model != "" {
			h.model = model
		}
		if maxTokens > 0 {
			h.maxTokens = maxTokens
		}
	}
}

// WithRequestsPerMinute sets the starting call rate.
func WithRequestsPerMinute(rpm int) Option {
	return func(h *Hunter) { h.limiter = newAdaptiveLimiter(rpm) }
}

// WithRetryPolicy overrides the retry policy for model calls.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(h *Hunter) { h.policy = p }
}

// WithBreaker shares a circuit breaker across hunters.
func WithBreaker(b *resilience.Breaker) Option {
	return func(h *Hunter) { h.breaker = b }
}

// New creates a Hunter.
func New(client anthropic.Client, importer Importer, opts ...Option) *Hunter {
	h := &Hunter{
		client:    client,
		importer:  importer,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		limiter:   newAdaptiveLimiter(0),
		policy:    resilience.DefaultPolicy(),
		breaker:   resilience.NewBreaker("anthropic", 5, time.Minute),
	}
	for _, o := range opts {
		o(h)
	}
	if h.policy.OnRetry == nil {
		h.policy.OnRetry = resilience.LogRetry("anthropic", "create_message")
	}
	return h
}

// Hunt asks the model for the leads in req.SourceText, stamps them with the
// workflow id and imports them. Duplicates are skipped by ingest like any
// other bulk import.
func (h *Hunter) Hunt(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.SourceText) == "" {
		return nil, &model.ValidationError{Field: "sourceText", Reason: "source text is required"}
	}
	if strings.TrimSpace(req.Region) == "" {
		return nil, &model.ValidationError{Field: "region", Reason: "a fallback region is required"}
	}
	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}
	log := zap.L().With(zap.String("phase", "lead_hunt"), zap.String("workflow_id", workflowID))

	resp, err := resilience.DoVal(ctx, h.policy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return h.call(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "hunt: extract leads for workflow %s", workflowID)
	}
	resp.Usage.LogCost(h.model, workflowID)

	payloads, truncated, err := parseLeads(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "hunt: parse response for workflow %s", workflowID)
	}
	if truncated || resp.Truncated() {
		truncated = true
		log.Warn("hunt: response truncated, importing complete leads only", zap.Int("leads", len(payloads)))
	}

	for i := range payloads {
		p := &payloads[i]
		p.DataType = model.DataTypeLeadHunt
		p.LeadHuntWorkflowID = workflowID
		if strings.TrimSpace(p.Location.Region) == "" {
			p.Location.Region = req.Region
		}
	}

	imported, err := h.importer.BulkCreate(ctx, payloads, sourceFile(req, workflowID))
	if err != nil {
		return nil, eris.Wrapf(err, "hunt: import leads for workflow %s", workflowID)
	}

	log.Info("hunt: complete",
		zap.Int("extracted", len(payloads)),
		zap.Int("imported", len(imported.Imported)),
		zap.Int("skipped", imported.Skipped),
	)
	return &Result{
		WorkflowID: workflowID,
		Extracted:  len(payloads),
		Truncated:  truncated,
		Import:     imported,
	}, nil
}

func (h *Hunter) call(ctx context.Context, req Request) (*anthropic.MessageResponse, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "hunt: rate limiter wait")
	}
	temp := 0.0
	msg := anthropic.MessageRequest{
		Model:       h.model,
		MaxTokens:   h.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(req)}},
		Temperature: &temp,
	}
	return resilience.Call(ctx, h.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := h.client.CreateMessage(ctx, msg)
		if err != nil {
			status := anthropic.StatusCode(err)
			if status == 429 {
				h.limiter.onRateLimit()
			}
			if resilience.IsTransientHTTPStatus(status) {
				return nil, resilience.NewTransientError(err, status)
			}
			return nil, err
		}
		h.limiter.onSuccess()
		return resp, nil
	})
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", orUnknown(req.DocumentName))
	fmt.Fprintf(&b, "URL: %s\n", orUnknown(req.SourceURL))
	fmt.Fprintf(&b, "Default region: %s\n\n", req.Region)
	b.WriteString(req.SourceText)
	return b.String()
}

func sourceFile(req Request, workflowID string) string {
	if req.DocumentName != "" {
		return req.DocumentName
	}
	return "lead_hunt:" + workflowID
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
