// Package dedupe builds the normalized fingerprint used to detect that two
// lead records describe the same procurement opportunity.
package dedupe

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-engine/internal/model"
)

// Reason names the signal a duplicate key was built from.
type Reason string

const (
	ReasonContractSource Reason = "contractID + source"
	ReasonContractURL    Reason = "contractID + URL"
	ReasonContractDoc    Reason = "contractID + documentName"
	ReasonSource         Reason = "source"
	ReasonNoKey          Reason = "insufficient signal"
)

// Key prefixes. Each rule writes its own namespace so keys built from
// different signals never compare equal.
const (
	prefixContractSource = "contractID+source:"
	prefixContractURL    = "contractID+url:"
	prefixContractDoc    = "contractID+doc:"
	prefixSource         = "source:"
)

var lower = cases.Lower(language.Und)

// Key computes the duplicate key for (contractID, documentName, url).
// The first applicable rule wins, from most to least specific. An empty
// key means the lead lacks enough signal and is never a duplicate.
func Key(contractID, documentName, url string) (string, Reason) {
	c := normalize(contractID)
	d := normalize(documentName)
	u := NormalizeURL(url)

	switch {
	case c != "" && d != "" && u != "":
		return prefixContractSource + c + "|" + d + "|" + u, ReasonContractSource
	case c != "" && u != "":
		return prefixContractURL + c + "|" + u, ReasonContractURL
	case c != "" && d != "":
		return prefixContractDoc + c + "|" + d, ReasonContractDoc
	case d != "" && u != "":
		return prefixSource + d + "|" + u, ReasonSource
	default:
		return "", ReasonNoKey
	}
}

// LeadKey is Key applied to a stored lead.
func LeadKey(l *model.Lead) (string, Reason) {
	return Key(l.ContractID, l.Source.DocumentName, l.Source.URL)
}

// NormalizeURL trims, lower-cases and drops a single trailing slash.
func NormalizeURL(url string) string {
	u := normalize(url)
	return strings.TrimSuffix(u, "/")
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return lower.String(norm.NFC.String(s))
}
