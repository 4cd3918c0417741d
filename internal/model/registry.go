package model

import "time"

// RiskLevel grades a litigator's historical aggressiveness.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RegistryEntry is a phone number currently on the federal DNC registry.
type RegistryEntry struct {
	Phone        string     `json:"phone"`
	AreaCode     string     `json:"area_code"`
	State        string     `json:"state,omitempty"`
	Source       string     `json:"source"`
	DateAdded    time.Time  `json:"date_added"`
	LastVerified time.Time  `json:"last_verified"`
	ReleaseDate  *time.Time `json:"release_date,omitempty"`
	IsActive     bool       `json:"is_active"`
}

// DeletedTrackingEntry remembers a phone recently removed from the registry
// and how many times it has cycled through add/remove.
type DeletedTrackingEntry struct {
	Phone             string    `json:"phone"`
	AreaCode          string    `json:"area_code"`
	State             string    `json:"state,omitempty"`
	DeletedFromDNC    time.Time `json:"deleted_from_dnc_date"`
	OriginalAddDate   time.Time `json:"original_add_date"`
	TimesAddedRemoved int       `json:"times_added_removed"`
	DeleteAfter       time.Time `json:"delete_after"`
	Source            string    `json:"source"`
}

// Expired reports whether the entry is eligible for purge at now.
func (e *DeletedTrackingEntry) Expired(now time.Time) bool {
	return now.After(e.DeleteAfter)
}

// LitigatorEntry is read-only reference data about a phone tied to TCPA suits.
type LitigatorEntry struct {
	Phone     string    `json:"phone"`
	CaseCount int       `json:"case_count"`
	RiskLevel RiskLevel `json:"risk_level"`
}
