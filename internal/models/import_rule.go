package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reserved import rule identities
const (
	DefaultRuleID  = "default"  // singleton, auto-created when absent
	OnDemandRuleID = "ondemand" // singleton used for one-off runs
)

// ImportRule is a saved, reusable import configuration: which org units,
// which period and which mappings to run against the geospatial source
type ImportRule struct {
	ID               string     `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"not null" json:"name"`
	Code             string     `json:"code,omitempty"`
	Description      string     `json:"description,omitempty"`
	SelectedOrgUnits string     `gorm:"type:text;column:selected_org_units" json:"-"` // JSON array of org unit hierarchy paths
	PeriodInfo       string     `gorm:"type:text;column:period_info" json:"-"`        // JSON period.Option
	SelectedMappings string     `gorm:"type:text;column:selected_mappings" json:"-"`  // JSON array of mapping ids
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastExecuted     *time.Time `gorm:"column:last_executed" json:"last_executed,omitempty"`
}

// BeforeCreate hook to generate UUID before creating record
func (r *ImportRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ImportRule) TableName() string {
	return "import_rules"
}

// OrgUnitPaths decodes the selected org unit hierarchy paths
func (r *ImportRule) OrgUnitPaths() []string {
	return unmarshalStrings(r.SelectedOrgUnits)
}

// SetOrgUnitPaths stores the selected org unit hierarchy paths
func (r *ImportRule) SetOrgUnitPaths(paths []string) {
	r.SelectedOrgUnits = marshalStrings(paths)
}

// MappingIDs decodes the selected mapping ids
func (r *ImportRule) MappingIDs() []string {
	return unmarshalStrings(r.SelectedMappings)
}

// SetMappingIDs stores the selected mapping ids
func (r *ImportRule) SetMappingIDs(ids []string) {
	r.SelectedMappings = marshalStrings(ids)
}

func marshalStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func unmarshalStrings(encoded string) []string {
	if encoded == "" {
		return []string{}
	}
	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return []string{}
	}
	return values
}
