package ingest

import (
	"context"
	"fmt"

	"github.com/sells-group/lead-engine/internal/dedupe"
	"github.com/sells-group/lead-engine/internal/model"
)

// mockStore implements Store for testing.
type mockStore struct {
	leads     []model.Lead
	scanErr   error
	insertErr map[string]error // by title
	lookupErr error
	nextID    int
}

func (m *mockStore) ScanLeads(_ context.Context) ([]model.Lead, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.leads, nil
}

func (m *mockStore) InsertLead(_ context.Context, lead *model.Lead) (string, error) {
	if err := m.insertErr[lead.Title]; err != nil {
		return "", err
	}
	m.nextID++
	lead.ID = fmt.Sprintf("lead-%02d", m.nextID)
	m.leads = append(m.leads, *lead)
	return lead.ID, nil
}

func (m *mockStore) DuplicateKeyExists(_ context.Context, key string) (bool, error) {
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	for i := range m.leads {
		if k, _ := dedupe.LeadKey(&m.leads[i]); k == key {
			return true, nil
		}
	}
	return false, nil
}
