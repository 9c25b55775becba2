package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority levels for a rule.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Outcome is the appetite decision a rule encodes.
const (
	OutcomeAccept = "accept"
	OutcomeReject = "reject"
	OutcomeRefer  = "refer"
)

// Rule lifecycle states.
const (
	StatusDraft    = "Draft"
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// StringList is a list of strings persisted as a JSON column.
type StringList []string

// Rule is the underwriting rule persisted in Postgres.
// Carrier and Product are by-name references; no foreign keys are enforced.
type Rule struct {
	RuleID             string     `gorm:"type:varchar(64);primaryKey" json:"ruleId"`
	Title              string     `gorm:"type:varchar(256);not null" json:"title"`
	Description        string     `gorm:"type:text" json:"description"`
	BusinessType       string     `gorm:"type:varchar(128)" json:"businessType"`
	NaicsCodes         StringList `gorm:"serializer:json" json:"naicsCodes"`
	States             StringList `gorm:"serializer:json" json:"states"`
	Carrier            string     `gorm:"type:varchar(128);index" json:"carrier"`
	Product            string     `gorm:"type:varchar(128)" json:"product"`
	Restrictions       StringList `gorm:"serializer:json" json:"restrictions"`
	Conditions         StringList `gorm:"serializer:json" json:"conditions"`
	Priority           string     `gorm:"type:varchar(16);not null" json:"priority"`
	Outcome            string     `gorm:"type:varchar(16);not null" json:"outcome"`
	RuleVersion        string     `gorm:"type:varchar(16)" json:"ruleVersion"`
	Status             string     `gorm:"type:varchar(16);not null;index" json:"status"`
	EffectiveFrom      *time.Time `json:"effectiveFrom"`
	EffectiveTo        *time.Time `json:"effectiveTo"`
	MinRevenue         *float64   `json:"minRevenue"`
	MaxRevenue         *float64   `json:"maxRevenue"`
	MinYearsInBusiness *int       `json:"minYearsInBusiness"`
	MaxYearsInBusiness *int       `json:"maxYearsInBusiness"`
	PriorClaimsAllowed *int       `json:"priorClaimsAllowed"`
	ContactEmail       string     `gorm:"type:varchar(256)" json:"contactEmail"`
	CreatedBy          string     `gorm:"type:varchar(128)" json:"createdBy"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          *time.Time `json:"updatedAt"`
}

// NewRuleID generates a collision-resistant rule identifier.
// Replaces the legacy count-based "rule-NNN" scheme, which is unsafe
// under concurrent inserts.
func NewRuleID() string {
	return "rule-" + uuid.New().String()
}

// NormalizePriority maps a raw value onto a canonical priority constant.
// Returns "" when the value is not a recognized priority.
func NormalizePriority(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case PriorityLow:
		return PriorityLow
	case PriorityMedium:
		return PriorityMedium
	case PriorityHigh:
		return PriorityHigh
	}
	return ""
}

// NormalizeOutcome maps a raw value onto a canonical outcome constant.
func NormalizeOutcome(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case OutcomeAccept:
		return OutcomeAccept
	case OutcomeReject:
		return OutcomeReject
	case OutcomeRefer:
		return OutcomeRefer
	}
	return ""
}

// NormalizeStatus maps a raw value onto a canonical status constant.
func NormalizeStatus(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "draft":
		return StatusDraft
	case "active":
		return StatusActive
	case "inactive":
		return StatusInactive
	}
	return ""
}
