package lifecycle

import (
	"context"

	"github.com/sells-group/lead-engine/internal/model"
)

// mockStore implements Store for testing. Leads are kept in scan order.
type mockStore struct {
	leads     []model.Lead
	links     []model.ProcurementLink
	scanErr   error
	linksErr  error
	deleteErr map[string]error
	deleted   []string
}

func (m *mockStore) ScanLeads(_ context.Context) ([]model.Lead, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	out := make([]model.Lead, len(m.leads))
	copy(out, m.leads)
	return out, nil
}

func (m *mockStore) ListProcurementLinks(_ context.Context, status model.LinkStatus) ([]model.ProcurementLink, error) {
	if m.linksErr != nil {
		return nil, m.linksErr
	}
	var out []model.ProcurementLink
	for _, l := range m.links {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteLead(_ context.Context, id string) error {
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	for i, l := range m.leads {
		if l.ID == id {
			m.leads = append(m.leads[:i], m.leads[i+1:]...)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return model.NewNotFound("lead", id)
}
