package models

// DHIS2 organisation unit feature types
const (
	FeatureTypeNone         = "NONE"
	FeatureTypePoint        = "POINT"
	FeatureTypePolygon      = "POLYGON"
	FeatureTypeMultiPolygon = "MULTI_POLYGON"
	FeatureTypeSymbol       = "SYMBOL"
)

// OrgUnit represents a DHIS2 organisation unit as fetched from the API.
// Coordinates is the raw serialized nested-array payload; it is parsed
// lazily by the geometry package and may be absent or malformed.
type OrgUnit struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Path        string `json:"path"`
	FeatureType string `json:"featureType,omitempty"`
	Coordinates string `json:"coordinates,omitempty"`
}
