package models

// GlobalOrgUnitMapping assigns a mapping to an org unit globally, outside of
// any import rule. Used by one-off runs started from a single org unit.
type GlobalOrgUnitMapping struct {
	OrgUnitID   string `gorm:"primaryKey;column:org_unit_id" json:"org_unit_id"`
	OrgUnitPath string `gorm:"column:org_unit_path" json:"org_unit_path"`
	MappingID   string `gorm:"not null;column:mapping_id" json:"mapping_id"`
}

// TableName specifies the table name for GORM
func (GlobalOrgUnitMapping) TableName() string {
	return "global_org_unit_mappings"
}
