package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/model"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestIngestor(st Store, opts ...Option) *Ingestor {
	return New(st, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func payload(n int) model.LeadPayload {
	return model.LeadPayload{
		Title:    fmt.Sprintf("Opportunity %d", n),
		Location: model.Location{Region: "TX"},
		Source: model.Source{
			DocumentName: fmt.Sprintf("doc-%d.pdf", n),
			URL:          fmt.Sprintf("https://bids.tx.gov/%d", n),
		},
	}
}

func TestBulkCreate_InBatchDuplicate(t *testing.T) {
	payloads := make([]model.LeadPayload, 10)
	for i := range payloads {
		payloads[i] = payload(i + 1)
	}
	// Elements 3 and 7 share a fingerprint.
	payloads[6].Source = model.Source{DocumentName: "DOC-3.pdf", URL: "https://bids.tx.gov/3/"}

	st := &mockStore{}
	res, err := newTestIngestor(st).BulkCreate(context.Background(), payloads, "batch.json")
	require.NoError(t, err)

	assert.Len(t, res.Imported, 9)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.SkippedDetails, 1)
	assert.Equal(t, "Opportunity 7", res.SkippedDetails[0].Title)
	assert.Equal(t, "Duplicate: matching source", res.SkippedDetails[0].Reason)
	assert.Len(t, st.leads, 9)
}

func TestBulkCreate_DuplicateOfStoredLead(t *testing.T) {
	st := &mockStore{leads: []model.Lead{{
		ID:         "existing",
		ContractID: "RFP-1",
		Source:     model.Source{URL: "https://city.gov/rfp"},
	}}}

	p := payload(1)
	p.ContractID = "rfp-1"
	p.Source = model.Source{URL: "https://CITY.gov/rfp/"}

	res, err := newTestIngestor(st).BulkCreate(context.Background(), []model.LeadPayload{p, payload(2)}, "")
	require.NoError(t, err)
	assert.Len(t, res.Imported, 1)
	require.Len(t, res.SkippedDetails, 1)
	assert.Equal(t, "Duplicate: matching contractID + URL", res.SkippedDetails[0].Reason)
}

func TestBulkCreate_NoKeyNeverDuplicate(t *testing.T) {
	p := model.LeadPayload{Title: "Same", Location: model.Location{Region: "TX"}, Source: model.Source{DocumentName: "only.pdf"}}
	res, err := newTestIngestor(&mockStore{}).BulkCreate(context.Background(), []model.LeadPayload{p, p, p}, "")
	require.NoError(t, err)
	assert.Len(t, res.Imported, 3)
	assert.Equal(t, 0, res.Skipped)
}

func TestBulkCreate_ValidationSkipsRecord(t *testing.T) {
	noRegion := payload(2)
	noRegion.Location.Region = ""
	noTitle := payload(3)
	noTitle.Title = ""
	noTitle.Source.DocumentName = ""

	res, err := newTestIngestor(&mockStore{}).BulkCreate(context.Background(),
		[]model.LeadPayload{payload(1), noRegion, noTitle}, "")
	require.NoError(t, err)
	assert.Len(t, res.Imported, 1)
	assert.Equal(t, 2, res.Skipped)
	assert.Contains(t, res.SkippedDetails[0].Reason, "location.region")
	assert.Equal(t, "(untitled)", res.SkippedDetails[1].Title)
	assert.Contains(t, res.SkippedDetails[1].Reason, "title")
}

func TestBulkCreate_DefaultRegionFallback(t *testing.T) {
	p := payload(1)
	p.Location.Region = "  "
	st := &mockStore{}

	res, err := newTestIngestor(st, WithDefaultRegion("OK")).BulkCreate(context.Background(), []model.LeadPayload{p}, "")
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)
	assert.Equal(t, "OK", st.leads[0].Location.Region)
}

func TestBulkCreate_AppliesDefaults(t *testing.T) {
	st := &mockStore{}
	p := model.LeadPayload{
		Source:   model.Source{DocumentName: "Annual Paving.pdf", URL: "https://x.gov/p"},
		Location: model.Location{Region: "TX", City: " Austin "},
	}

	_, err := newTestIngestor(st).BulkCreate(context.Background(), []model.LeadPayload{p}, "leads.xlsx")
	require.NoError(t, err)
	require.Len(t, st.leads, 1)

	l := st.leads[0]
	assert.Equal(t, "Annual Paving.pdf", l.Title)
	assert.Equal(t, model.DefaultOpportunityType, l.OpportunityType)
	assert.Equal(t, model.DefaultSummary, l.Summary)
	assert.Equal(t, model.DefaultStatus, l.Status)
	assert.Equal(t, model.DefaultIssuingBody, l.IssuingBody.Name)
	assert.True(t, l.IsActive)
	assert.NotNil(t, l.Contacts)
	assert.Equal(t, "Austin", l.Location.City)
	assert.Equal(t, model.DataTypeBulkImport, l.Metadata.DataType)
	assert.Equal(t, "leads.xlsx", l.Metadata.SourceFile)
	assert.Equal(t, fixedNow, l.Metadata.ImportedAt)
	assert.Equal(t, fixedNow, l.CreatedAt)
	assert.Contains(t, l.SearchableText, "Annual Paving.pdf")
	assert.Contains(t, l.SearchableText, "Austin")
}

func TestBulkCreate_ExplicitInactiveAndDataType(t *testing.T) {
	st := &mockStore{}
	inactive := false
	p := payload(1)
	p.IsActive = &inactive
	p.DataType = model.DataTypeLeadHunt
	p.LeadHuntWorkflowID = "wf-1"

	_, err := newTestIngestor(st).BulkCreate(context.Background(), []model.LeadPayload{p}, "")
	require.NoError(t, err)
	require.Len(t, st.leads, 1)
	assert.False(t, st.leads[0].IsActive)
	assert.Equal(t, model.DataTypeLeadHunt, st.leads[0].Metadata.DataType)
	assert.Equal(t, "wf-1", st.leads[0].LeadHuntWorkflowID)
}

func TestBulkCreate_InsertFailureContinues(t *testing.T) {
	st := &mockStore{insertErr: map[string]error{"Opportunity 2": fmt.Errorf("disk full")}}
	dupOfFailed := payload(2)
	dupOfFailed.Title = "Retry of 2"

	res, err := newTestIngestor(st).BulkCreate(context.Background(),
		[]model.LeadPayload{payload(1), payload(2), dupOfFailed}, "")
	require.NoError(t, err)
	// A failed insert does not claim its key.
	assert.Len(t, res.Imported, 2)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "disk full")
}

func TestBulkCreate_DetailsCapped(t *testing.T) {
	payloads := make([]model.LeadPayload, 6)
	for i := range payloads {
		payloads[i] = payload(1)
	}
	res, err := newTestIngestor(&mockStore{}, WithDetailsLimit(2)).BulkCreate(context.Background(), payloads, "")
	require.NoError(t, err)
	assert.Len(t, res.Imported, 1)
	assert.Equal(t, 5, res.Skipped)
	assert.Len(t, res.SkippedDetails, 2)
}

func TestBulkCreate_ScanFailureAborts(t *testing.T) {
	_, err := newTestIngestor(&mockStore{scanErr: fmt.Errorf("down")}).
		BulkCreate(context.Background(), []model.LeadPayload{payload(1)}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan existing leads")
}

func TestBulkCreate_Empty(t *testing.T) {
	res, err := newTestIngestor(&mockStore{}).BulkCreate(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, res.Imported)
	assert.NotNil(t, res.Imported)
	assert.Equal(t, 0, res.Skipped)
}

func TestCreate(t *testing.T) {
	st := &mockStore{}
	ing := newTestIngestor(st)

	lead, err := ing.Create(context.Background(), &model.LeadPayload{
		Title:      "Water main",
		ContractID: "W-1",
		Location:   model.Location{Region: "TX"},
		Source:     model.Source{DocumentName: "w.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "lead-01", lead.ID)
	assert.Equal(t, model.DataTypeManual, lead.Metadata.DataType)

	_, err = ing.Create(context.Background(), &model.LeadPayload{
		Title:      "Water main again",
		ContractID: "w-1",
		Location:   model.Location{Region: "TX"},
		Source:     model.Source{DocumentName: "W.PDF"},
	})
	require.Error(t, err)
	assert.True(t, model.IsDuplicate(err))
	assert.Equal(t, "Duplicate: matching contractID + documentName", err.Error())
}

func TestCreate_Validation(t *testing.T) {
	_, err := newTestIngestor(&mockStore{}).Create(context.Background(), &model.LeadPayload{Title: "x"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestCreate_LookupError(t *testing.T) {
	st := &mockStore{lookupErr: fmt.Errorf("timeout")}
	p := payload(1)
	_, err := newTestIngestor(st).Create(context.Background(), &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key lookup")
}
