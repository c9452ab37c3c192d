package lifecycle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/dedupe"
	"github.com/sells-group/lead-engine/internal/metrics"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
)

// DefaultDetailsLimit caps the example entries kept per report category.
const DefaultDetailsLimit = 50

// Store is the subset of store.LeadStore used by the Cleaner.
type Store interface {
	ScanLeads(ctx context.Context) ([]model.Lead, error)
	ListProcurementLinks(ctx context.Context, status model.LinkStatus) ([]model.ProcurementLink, error)
	DeleteLead(ctx context.Context, id string) error
}

// Detail is one example entry in a cleanup report.
type Detail struct {
	ID         string `json:"id" yaml:"id"`
	Title      string `json:"title" yaml:"title"`
	Reason     string `json:"reason" yaml:"reason"`
	SurvivorID string `json:"survivorId,omitempty" yaml:"survivorId,omitempty"`
}

// Report summarizes one cleanup pass. Deleted counts only successful
// deletes; failed ones are counted in DeleteErrors.
type Report struct {
	TotalChecked     int      `json:"totalChecked" yaml:"totalChecked"`
	DuplicatesFound  int      `json:"duplicatesFound" yaml:"duplicatesFound"`
	ExpiredFound     int      `json:"expiredFound" yaml:"expiredFound"`
	InvalidFound     int      `json:"invalidFound" yaml:"invalidFound"`
	Deleted          int      `json:"deleted" yaml:"deleted"`
	DeleteErrors     int      `json:"deleteErrors" yaml:"deleteErrors"`
	DuplicateDetails []Detail `json:"duplicateDetails" yaml:"duplicateDetails"`
	ExpiredDetails   []Detail `json:"expiredDetails" yaml:"expiredDetails"`
	InvalidDetails   []Detail `json:"invalidDetails" yaml:"invalidDetails"`
	Errors           []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Cleaner deletes duplicate, expired and invalid leads.
type Cleaner struct {
	store        Store
	classifier   *Classifier
	detailsLimit int
}

// NewCleaner creates a Cleaner. A detailsLimit of zero uses DefaultDetailsLimit.
func NewCleaner(st Store, classifier *Classifier, detailsLimit int) *Cleaner {
	if classifier == nil {
		classifier = &Classifier{}
	}
	if detailsLimit <= 0 {
		detailsLimit = DefaultDetailsLimit
	}
	return &Cleaner{store: st, classifier: classifier, detailsLimit: detailsLimit}
}

// Run performs one full cleanup pass. Leads are visited oldest first, so
// the oldest copy of a duplicate cluster survives. Failing to load the
// invalid-link set or the leads aborts the pass; a failed delete is
// logged and counted and the pass continues.
func (c *Cleaner) Run(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("phase", "cleanup"))
	start := time.Now()

	invalid, err := c.loadInvalidURLs(ctx)
	if err != nil {
		return nil, err
	}

	leads, err := c.store.ScanLeads(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "cleanup: scan leads")
	}

	report := &Report{
		DuplicateDetails: []Detail{},
		ExpiredDetails:   []Detail{},
		InvalidDetails:   []Detail{},
	}
	claimed := make(map[string]string)

	for i := range leads {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "cleanup: cancelled")
		}

		lead := &leads[i]
		report.TotalChecked++

		cl := c.classifier.Classify(lead, claimed, invalid)
		if cl.Verdict == VerdictLive {
			continue
		}

		detail := Detail{ID: lead.ID, Title: lead.DisplayTitle(), Reason: cl.Detail, SurvivorID: cl.SurvivorID}
		switch cl.Verdict {
		case VerdictDuplicate:
			report.DuplicatesFound++
			report.DuplicateDetails = c.appendDetail(report.DuplicateDetails, detail)
		case VerdictExpired:
			report.ExpiredFound++
			report.ExpiredDetails = c.appendDetail(report.ExpiredDetails, detail)
		case VerdictInvalid:
			report.InvalidFound++
			report.InvalidDetails = c.appendDetail(report.InvalidDetails, detail)
		}

		if err := c.store.DeleteLead(ctx, lead.ID); err != nil {
			derr := eris.Wrapf(err, "cleanup: delete lead %s", lead.ID)
			kind := deleteFailureKind(err)
			log.Warn("cleanup: delete failed",
				zap.String("lead_id", lead.ID),
				zap.String("verdict", string(cl.Verdict)),
				zap.String("kind", kind),
				zap.Error(derr),
			)
			metrics.CleanupDeleteErrors.WithLabelValues(kind).Inc()
			report.DeleteErrors++
			if len(report.Errors) < c.detailsLimit {
				report.Errors = append(report.Errors, derr.Error())
			}
			continue
		}
		metrics.CleanupDeleted.WithLabelValues(string(cl.Verdict)).Inc()
		report.Deleted++
	}

	log.Info("cleanup: complete",
		zap.Int("total_checked", report.TotalChecked),
		zap.Int("duplicates", report.DuplicatesFound),
		zap.Int("expired", report.ExpiredFound),
		zap.Int("invalid", report.InvalidFound),
		zap.Int("deleted", report.Deleted),
		zap.Int("delete_errors", report.DeleteErrors),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// deleteFailureKind labels a failed delete; transient failures are expected
// to succeed on the next cleanup pass.
func deleteFailureKind(err error) string {
	if resilience.IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// loadInvalidURLs snapshots the normalized URLs of links marked invalid.
func (c *Cleaner) loadInvalidURLs(ctx context.Context) (map[string]struct{}, error) {
	links, err := c.store.ListProcurementLinks(ctx, model.LinkStatusInvalid)
	if err != nil {
		return nil, eris.Wrap(err, "cleanup: load invalid links")
	}
	invalid := make(map[string]struct{}, len(links))
	for _, l := range links {
		if u := dedupe.NormalizeURL(l.ProcurementLink); u != "" {
			invalid[u] = struct{}{}
		}
	}
	return invalid, nil
}

func (c *Cleaner) appendDetail(details []Detail, d Detail) []Detail {
	if len(details) >= c.detailsLimit {
		return details
	}
	return append(details, d)
}
