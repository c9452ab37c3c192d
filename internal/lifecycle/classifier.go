// Package lifecycle classifies stored leads as live, duplicate, expired or
// invalid, and purges everything that is not live.
package lifecycle

import (
	"strings"
	"time"

	"github.com/sells-group/lead-engine/internal/dedupe"
	"github.com/sells-group/lead-engine/internal/model"
)

// Verdict is the outcome of classifying one lead.
type Verdict string

const (
	VerdictLive      Verdict = "live"
	VerdictDuplicate Verdict = "duplicate"
	VerdictExpired   Verdict = "expired"
	VerdictInvalid   Verdict = "invalid"
)

// Classification explains a verdict.
type Classification struct {
	Verdict Verdict
	// Key is the lead's duplicate key, empty when it has none.
	Key string
	// Reason names the signal behind Key.
	Reason dedupe.Reason
	// SurvivorID is the lead that claimed Key first. Set for duplicates.
	SurvivorID string
	// Detail is a short human-readable explanation.
	Detail string
}

// dateLayouts are tried in order when parsing key dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Classifier decides the lifecycle verdict of a lead. The zero value uses
// time.Local and time.Now with an empty denylist.
type Classifier struct {
	// Denylist holds lower-case URL substrings that mark a lead invalid.
	Denylist []string
	Location *time.Location
	Now      func() time.Time
}

// NewClassifier returns a Classifier with a normalized denylist.
func NewClassifier(denylist []string, loc *time.Location) *Classifier {
	c := &Classifier{Location: loc}
	for _, d := range denylist {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			c.Denylist = append(c.Denylist, d)
		}
	}
	return c
}

// Classify returns the verdict for lead. Checks run in order invalid,
// expired, duplicate; the first match wins. A live lead with a key claims
// it in claimed (key -> lead id) so later copies are duplicates.
func (c *Classifier) Classify(lead *model.Lead, claimed map[string]string, invalid map[string]struct{}) Classification {
	key, reason := dedupe.LeadKey(lead)
	cl := Classification{Key: key, Reason: reason}

	if detail, ok := c.invalidURL(lead.Source.URL, invalid); ok {
		cl.Verdict = VerdictInvalid
		cl.Detail = detail
		return cl
	}

	if detail, ok := c.expired(lead.KeyDates); ok {
		cl.Verdict = VerdictExpired
		cl.Detail = detail
		return cl
	}

	if key != "" {
		if survivor, ok := claimed[key]; ok {
			cl.Verdict = VerdictDuplicate
			cl.SurvivorID = survivor
			cl.Detail = "Duplicate: matching " + string(reason)
			return cl
		}
		claimed[key] = lead.ID
	}

	cl.Verdict = VerdictLive
	return cl
}

func (c *Classifier) invalidURL(url string, invalid map[string]struct{}) (string, bool) {
	norm := dedupe.NormalizeURL(url)
	if norm == "" {
		return "", false
	}
	if _, ok := invalid[norm]; ok {
		return "source URL is a known invalid procurement link", true
	}
	lower := strings.ToLower(url)
	for _, d := range c.Denylist {
		if strings.Contains(lower, d) {
			return "source URL matches denylisted " + d, true
		}
	}
	return "", false
}

func (c *Classifier) expired(dates model.KeyDates) (string, bool) {
	today := c.midnight(c.now())
	if d, ok := c.parseDate(dates.BidDeadline); ok && d.Before(today) {
		return "bid deadline " + dates.BidDeadline + " has passed", true
	}
	if d, ok := c.parseDate(dates.ProjectedStartDate); ok && d.Before(today) {
		return "projected start " + dates.ProjectedStartDate + " has passed", true
	}
	return "", false
}

// parseDate parses s in the classifier's location and truncates it to
// midnight. Unparsable or empty values report false.
func (c *Classifier) parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, c.location()); err == nil {
			return c.midnight(t), true
		}
	}
	return time.Time{}, false
}

func (c *Classifier) midnight(t time.Time) time.Time {
	t = t.In(c.location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location())
}

func (c *Classifier) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

func (c *Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
