package model

import "time"

// LinkStatus is the review state of a procurement link.
type LinkStatus string

const (
	LinkStatusPending  LinkStatus = "pending"
	LinkStatusApproved LinkStatus = "approved"
	LinkStatusInvalid  LinkStatus = "invalid"
)

// Valid reports whether s is a known link status.
func (s LinkStatus) Valid() bool {
	switch s {
	case LinkStatusPending, LinkStatusApproved, LinkStatusInvalid:
		return true
	}
	return false
}

// ProcurementLink is an entry in the known procurement links collection.
// Links marked invalid are purged from leads during cleanup.
type ProcurementLink struct {
	ID                   string     `json:"_id" yaml:"_id"`
	State                string     `json:"state" yaml:"state"`
	Capital              string     `json:"capital" yaml:"capital"`
	OfficialWebsite      string     `json:"officialWebsite" yaml:"officialWebsite"`
	ProcurementLink      string     `json:"procurementLink" yaml:"procurementLink"`
	RequiresRegistration *bool      `json:"requiresRegistration,omitempty" yaml:"requiresRegistration,omitempty"`
	Status               LinkStatus `json:"status" yaml:"status"`
	CreatedAt            time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt" yaml:"updatedAt"`
}
