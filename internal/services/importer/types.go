package importer

import (
	"context"
	"time"

	"gee2dhis2/internal/api"
	"gee2dhis2/internal/gee"
	"gee2dhis2/internal/models"
)

// DataValue is one flat DHIS2 data value row
type DataValue struct {
	DataElement          string `json:"dataElement"`
	Period               string `json:"period"`
	OrgUnit              string `json:"orgUnit"`
	CategoryOptionCombo  string `json:"categoryOptionCombo,omitempty"`
	AttributeOptionCombo string `json:"attributeOptionCombo,omitempty"`
	Value                string `json:"value"`
	Comment              string `json:"comment,omitempty"`
}

// DataValueSet is the flat payload posted to DHIS2
type DataValueSet struct {
	DataValues []DataValue `json:"dataValues"`
}

// OrgUnitRepository fetches organisation unit metadata in batch
type OrgUnitRepository interface {
	GetOrganisationUnits(ctx context.Context, ids []string) ([]models.OrgUnit, error)
}

// DataValueSetSource queries the geospatial backend for band observations
type DataValueSetSource interface {
	GetDataValueSet(ctx context.Context, req gee.GetDataRequest) ([]gee.Observation, error)
}

// DataSetCatalog resolves a mapping's image code to a dataset definition
type DataSetCatalog interface {
	DataSetByCode(code string) (gee.DataSet, error)
}

// SaveResponse describes where a data value set ended up: server import
// counts on a commit, a local file path on a dry run
type SaveResponse struct {
	ImportCount *api.ImportCount
	FilePath    string
}

// DataValueSetWriter is the destination of an import run. Implementations
// either commit to DHIS2 or export to a local file.
type DataValueSetWriter interface {
	Save(ctx context.Context, set DataValueSet) (SaveResponse, error)
}

// RuleHistory persists execution outcomes. A nil history disables
// persistence, used for one-off runs without a datastore.
type RuleHistory interface {
	SaveSummary(ctx context.Context, summary *models.ImportSummary) error
	StampExecuted(ctx context.Context, ruleID string, at time.Time) error
}
