package model

import "time"

// DataType records how a lead entered the system.
type DataType string

const (
	DataTypeManual     DataType = "manual"
	DataTypeBulkImport DataType = "bulk_import"
	DataTypeLeadHunt   DataType = "lead_hunt"
)

// Defaults applied to optional fields during ingest.
const (
	DefaultOpportunityType = "Unknown"
	DefaultSummary         = "No summary available"
	DefaultStatus          = "Open"
	DefaultIssuingBody     = "Unknown"
	DefaultIssuingLevel    = "Unknown"
)

// IssuingBody is the government entity that published the opportunity.
type IssuingBody struct {
	Name  string `json:"name"`
	Level string `json:"level"` // City, County, State, Municipality ...
}

// Location is where the opportunity is performed. Region is the primary
// geographic filter key and is never empty after ingest.
type Location struct {
	City   string `json:"city,omitempty"`
	County string `json:"county,omitempty"`
	Region string `json:"region"`
}

// KeyDates holds ISO date strings as published by the source.
type KeyDates struct {
	PublishedDate      string `json:"publishedDate,omitempty"`
	BidDeadline        string `json:"bidDeadline,omitempty"`
	ProjectedStartDate string `json:"projectedStartDate,omitempty"`
}

// Source identifies the document a lead was extracted from. URL may be empty
// for AI-generated leads that lack a discoverable link.
type Source struct {
	DocumentName string `json:"documentName"`
	URL          string `json:"url"`
}

// Contact is a point of contact listed on the opportunity.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	URL   string `json:"url,omitempty"`
}

// LeadMetadata is import bookkeeping.
type LeadMetadata struct {
	ImportedAt time.Time `json:"importedAt"`
	DataType   DataType  `json:"dataType"`
	SourceFile string    `json:"sourceFile,omitempty"`
}

// Lead is a single procurement opportunity record.
type Lead struct {
	ID                 string       `json:"_id"`
	Title              string       `json:"title"`
	OpportunityType    string       `json:"opportunityType"`
	Category           string       `json:"category,omitempty"`
	Subcategory        string       `json:"subcategory,omitempty"`
	Status             string       `json:"status"`
	VerificationStatus string       `json:"verificationStatus,omitempty"`
	IssuingBody        IssuingBody  `json:"issuingBody"`
	Location           Location     `json:"location"`
	KeyDates           KeyDates     `json:"keyDates"`
	Source             Source       `json:"source"`
	Contacts           []Contact    `json:"contacts"`
	Summary            string       `json:"summary"`
	SearchableText     string       `json:"searchableText,omitempty"`
	EstimatedValueUSD  *float64     `json:"estimatedValueUSD,omitempty"`
	ContractID         string       `json:"contractID,omitempty"`
	IsActive           bool         `json:"isActive"`
	LastChecked        *time.Time   `json:"lastChecked,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
	Metadata           LeadMetadata `json:"metadata"`

	Embedding            []float32  `json:"embedding,omitempty"`
	EmbeddingModel       string     `json:"embeddingModel,omitempty"`
	EmbeddingGeneratedAt *time.Time `json:"embeddingGeneratedAt,omitempty"`

	LeadHuntWorkflowID string `json:"leadHuntWorkflowId,omitempty"`
}

// DisplayTitle returns the best human-readable label for reports.
func (l *Lead) DisplayTitle() string {
	if l.Title != "" {
		return l.Title
	}
	if l.Source.DocumentName != "" {
		return l.Source.DocumentName
	}
	return l.ID
}

// LeadPayload is an incoming, not-yet-normalized lead from manual entry,
// bulk import or an AI lead hunt. Optional fields are pointers or empty.
type LeadPayload struct {
	Title              string      `json:"title"`
	OpportunityType    string      `json:"opportunityType,omitempty"`
	Category           string      `json:"category,omitempty"`
	Subcategory        string      `json:"subcategory,omitempty"`
	Status             string      `json:"status,omitempty"`
	VerificationStatus string      `json:"verificationStatus,omitempty"`
	IssuingBody        IssuingBody `json:"issuingBody"`
	Location           Location    `json:"location"`
	KeyDates           KeyDates    `json:"keyDates"`
	Source             Source      `json:"source"`
	Contacts           []Contact   `json:"contacts,omitempty"`
	Summary            string      `json:"summary,omitempty"`
	SearchableText     string      `json:"searchableText,omitempty"`
	EstimatedValueUSD  *float64    `json:"estimatedValueUSD,omitempty"`
	ContractID         string      `json:"contractID,omitempty"`
	IsActive           *bool       `json:"isActive,omitempty"`
	DataType           DataType    `json:"dataType,omitempty"`
	LeadHuntWorkflowID string      `json:"leadHuntWorkflowId,omitempty"`
}

// LeadPatch lists the mutable fields of a lead. Nil fields are left as-is.
// UpdatedAt is always bumped by the store.
type LeadPatch struct {
	Status             *string
	VerificationStatus *string
	IsActive           *bool
	LastChecked        *time.Time
}

// LeadStats summarizes the lead collection.
type LeadStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}
