package ingest

import (
	"strings"
	"time"

	"github.com/sells-group/lead-engine/internal/model"
)

// normalize turns a payload into a lead ready for insert, applying the
// documented defaults. It returns a ValidationError when the payload has
// no usable title or no region and no fallback region was configured.
func normalize(p *model.LeadPayload, dataType model.DataType, sourceFile, defaultRegion string, now time.Time) (*model.Lead, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = strings.TrimSpace(p.Source.DocumentName)
	}
	if title == "" {
		return nil, &model.ValidationError{Field: "title", Reason: "title or source.documentName is required"}
	}

	loc := p.Location
	loc.City = strings.TrimSpace(loc.City)
	loc.County = strings.TrimSpace(loc.County)
	loc.Region = strings.TrimSpace(loc.Region)
	if loc.Region == "" {
		loc.Region = strings.TrimSpace(defaultRegion)
	}
	if loc.Region == "" {
		return nil, &model.ValidationError{Field: "location.region", Reason: "region is required"}
	}

	if p.DataType != "" {
		dataType = p.DataType
	}

	isActive := true
	if p.IsActive != nil {
		isActive = *p.IsActive
	}

	contacts := p.Contacts
	if contacts == nil {
		contacts = []model.Contact{}
	}

	lead := &model.Lead{
		Title:              title,
		OpportunityType:    orDefault(p.OpportunityType, model.DefaultOpportunityType),
		Category:           strings.TrimSpace(p.Category),
		Subcategory:        strings.TrimSpace(p.Subcategory),
		Status:             orDefault(p.Status, model.DefaultStatus),
		VerificationStatus: strings.TrimSpace(p.VerificationStatus),
		IssuingBody: model.IssuingBody{
			Name:  orDefault(p.IssuingBody.Name, model.DefaultIssuingBody),
			Level: orDefault(p.IssuingBody.Level, model.DefaultIssuingLevel),
		},
		Location: loc,
		KeyDates: model.KeyDates{
			PublishedDate:      strings.TrimSpace(p.KeyDates.PublishedDate),
			BidDeadline:        strings.TrimSpace(p.KeyDates.BidDeadline),
			ProjectedStartDate: strings.TrimSpace(p.KeyDates.ProjectedStartDate),
		},
		Source: model.Source{
			DocumentName: strings.TrimSpace(p.Source.DocumentName),
			URL:          strings.TrimSpace(p.Source.URL),
		},
		Contacts:           contacts,
		Summary:            orDefault(p.Summary, model.DefaultSummary),
		SearchableText:     strings.TrimSpace(p.SearchableText),
		EstimatedValueUSD:  p.EstimatedValueUSD,
		ContractID:         strings.TrimSpace(p.ContractID),
		IsActive:           isActive,
		CreatedAt:          now,
		UpdatedAt:          now,
		LeadHuntWorkflowID: strings.TrimSpace(p.LeadHuntWorkflowID),
		Metadata: model.LeadMetadata{
			ImportedAt: now,
			DataType:   dataType,
			SourceFile: sourceFile,
		},
	}
	if lead.SearchableText == "" {
		lead.SearchableText = searchableText(lead)
	}
	return lead, nil
}

// searchableText joins the free-text fields a keyword search should match.
func searchableText(l *model.Lead) string {
	parts := []string{
		l.Title, l.OpportunityType, l.Category, l.Subcategory, l.Summary,
		l.IssuingBody.Name, l.Location.City, l.Location.County, l.Location.Region,
		l.ContractID,
	}
	var b strings.Builder
	for _, p := range parts {
		if p == "" || p == model.DefaultIssuingBody || p == model.DefaultSummary {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
