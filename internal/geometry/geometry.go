package geometry

import (
	"encoding/json"

	"gee2dhis2/internal/models"
)

// Geometry types
const (
	TypePoint        = "Point"
	TypeMultiPolygon = "MultiPolygon"
)

// Geometry is a normalized org unit geometry usable by the geospatial
// query service: either a single point or a multi-polygon
type Geometry struct {
	Type         string
	Point        []float64       // [lon, lat], Type == Point
	MultiPolygon [][][][]float64 // polygons of rings of [lon, lat] pairs, Type == MultiPolygon
}

// MarshalJSON encodes the geometry as GeoJSON
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.Type == TypePoint {
		return json.Marshal(struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		}{TypePoint, g.Point})
	}
	return json.Marshal(struct {
		Type        string          `json:"type"`
		Coordinates [][][][]float64 `json:"coordinates"`
	}{TypeMultiPolygon, g.MultiPolygon})
}

// FromOrgUnit converts an org unit's stored feature-type/coordinate
// representation into a normalized geometry. Returns nil when the org unit
// has no usable coordinates; malformed payloads are treated as "no
// geometry available", never as an error.
func FromOrgUnit(ou models.OrgUnit) *Geometry {
	if ou.Coordinates == "" {
		return nil
	}

	switch ou.FeatureType {
	case models.FeatureTypePoint:
		var point []float64
		if err := json.Unmarshal([]byte(ou.Coordinates), &point); err != nil {
			return nil
		}
		if len(point) != 2 {
			return nil
		}
		return &Geometry{Type: TypePoint, Point: point}

	case models.FeatureTypePolygon, models.FeatureTypeMultiPolygon:
		var polygons [][][][]float64
		if err := json.Unmarshal([]byte(ou.Coordinates), &polygons); err != nil {
			return nil
		}
		if len(polygons) == 0 {
			return nil
		}
		return &Geometry{Type: TypeMultiPolygon, MultiPolygon: polygons}

	default:
		// NONE, SYMBOL, absent: nothing to query against
		return nil
	}
}
