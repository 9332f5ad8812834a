package models

import (
	"strings"
	"time"
)

// Norm sources, in descending priority.
const (
	SourceInternal = "internal"
	SourcePoz      = "poz"
	SourceFER      = "fer"
)

// NormRecord is a labor-hours-per-unit rate for a work item, unit, and locale.
// Conditions describe the circumstances the base rate was measured under.
type NormRecord struct {
	ID                string            `json:"id" db:"id"`
	WorkItemKey       string            `json:"work_item_key" db:"work_item_key"`
	Unit              string            `json:"unit" db:"unit"`
	Locale            string            `json:"locale" db:"locale"`
	LaborHoursPerUnit float64           `json:"labor_hours_per_unit" db:"labor_hours_per_unit"`
	Source            string            `json:"source" db:"source"`
	NormCode          string            `json:"norm_code,omitempty" db:"norm_code"`
	Conditions        map[string]string `json:"conditions,omitempty" db:"conditions"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// SourcePriority ranks a norm source: internal > poz > fer > anything else.
func SourcePriority(source string) int {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case SourceInternal:
		return 3
	case SourcePoz:
		return 2
	case SourceFER:
		return 1
	default:
		return 0
	}
}

// Priority returns the record's source priority.
func (n *NormRecord) Priority() int {
	return SourcePriority(n.Source)
}

// Quantity is a work-breakdown quantity take-off (typically derived from a Revit model).
type Quantity struct {
	ID          string            `json:"id" db:"id"`
	WorkItemKey string            `json:"wbs_key" db:"wbs_key"`
	Quantity    float64           `json:"qty" db:"qty"`
	Unit        string            `json:"unit" db:"unit"`
	Locale      string            `json:"locale" db:"locale"`
	ElementID   string            `json:"element_id,omitempty" db:"element_id"`
	Level       string            `json:"level,omitempty" db:"level"`
	Conditions  map[string]string `json:"conditions,omitempty" db:"conditions"`
	RecordedAt  time.Time         `json:"recorded_at" db:"recorded_at"`
}

// SiteObservation is an observed labor-hours entry from the construction site.
type SiteObservation struct {
	ID          string    `json:"id" db:"id"`
	WorkItemKey string    `json:"wbs_key" db:"wbs_key"`
	Date        time.Time `json:"date" db:"date"`
	Hours       float64   `json:"hours" db:"hours"`
	Crew        string    `json:"crew,omitempty" db:"crew"`
	Note        string    `json:"note,omitempty" db:"note"`
}
