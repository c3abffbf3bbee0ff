package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttributeMapping binds one band of a Google Earth Engine dataset to a
// DHIS2 data element, with an optional numeric transform formula. A band
// with an empty DataElementID is considered unmapped and is skipped during
// import without being treated as an error.
type AttributeMapping struct {
	Band            string `json:"band"`
	DataElementID   string `json:"dataElementId,omitempty"`
	DataElementCode string `json:"dataElementCode,omitempty"`
	DataElementName string `json:"dataElementName,omitempty"`
	Comment         string `json:"comment,omitempty"`
	Transform       string `json:"transform,omitempty"` // formula over #{input}, empty = pass-through
}

// Mapping is a saved association between a GEE dataset's bands and DHIS2
// data elements
type Mapping struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"not null" json:"name"`
	Description       string    `json:"description"`
	DataSetID         string    `gorm:"column:dataset_id" json:"dataset_id"`
	DataSetName       string    `gorm:"column:dataset_name" json:"dataset_name"`
	GEEImage          string    `gorm:"not null;column:gee_image" json:"gee_image"` // catalog code of the source image collection
	IsDefault         bool      `gorm:"default:false;column:is_default" json:"is_default"`
	AttributeMappings string    `gorm:"type:text;column:attribute_mappings" json:"-"` // JSON dict band -> AttributeMapping
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (m *Mapping) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Mapping) TableName() string {
	return "mappings"
}

// AttributeMappingDictionary decodes the band -> AttributeMapping dictionary
func (m *Mapping) AttributeMappingDictionary() (map[string]AttributeMapping, error) {
	dict := map[string]AttributeMapping{}
	if m.AttributeMappings == "" {
		return dict, nil
	}
	if err := json.Unmarshal([]byte(m.AttributeMappings), &dict); err != nil {
		return nil, err
	}
	return dict, nil
}

// SetAttributeMappingDictionary encodes and stores the band dictionary.
// Each entry carries its own band name for self-description.
func (m *Mapping) SetAttributeMappingDictionary(dict map[string]AttributeMapping) error {
	for band, am := range dict {
		am.Band = band
		dict[band] = am
	}
	data, err := json.Marshal(dict)
	if err != nil {
		return err
	}
	m.AttributeMappings = string(data)
	return nil
}
