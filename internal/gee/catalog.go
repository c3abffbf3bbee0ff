package gee

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
)

// DataSet describes one supported Google Earth Engine image collection
type DataSet struct {
	Code              string   `json:"code"`              // short code referenced by mappings ("geeImage")
	ImageCollectionID string   `json:"imageCollectionId"` // Earth Engine asset id
	DisplayName       string   `json:"displayName"`
	Bands             []string `json:"bands"`
	DocURL            string   `json:"docUrl"`
}

// Built-in catalog of supported image collections, keyed by code
var catalog = map[string]DataSet{
	"era5Daily": {
		Code:              "era5Daily",
		ImageCollectionID: "ECMWF/ERA5/DAILY",
		DisplayName:       "ECMWF-ERA5-DAILY",
		Bands: []string{
			"minimum_2m_air_temperature",
			"maximum_2m_air_temperature",
			"mean_2m_air_temperature",
			"dewpoint_2m_temperature",
			"total_precipitation",
			"surface_pressure",
			"mean_sea_level_pressure",
			"u_component_of_wind_10m",
			"v_component_of_wind_10m",
		},
		DocURL: "https://developers.google.com/earth-engine/datasets/catalog/ECMWF_ERA5_DAILY",
	},
	"chirpsDaily": {
		Code:              "chirpsDaily",
		ImageCollectionID: "UCSB-CHG/CHIRPS/DAILY",
		DisplayName:       "CHIRPS-DAILY",
		Bands:             []string{"precipitation"},
		DocURL:            "https://developers.google.com/earth-engine/datasets/catalog/UCSB-CHG_CHIRPS_DAILY",
	},
	"modisLST": {
		Code:              "modisLST",
		ImageCollectionID: "MODIS/006/MOD11A2",
		DisplayName:       "MODIS-LST",
		Bands:             []string{"LST_Day_1km", "LST_Night_1km"},
		DocURL:            "https://developers.google.com/earth-engine/datasets/catalog/MODIS_006_MOD11A2",
	},
}

// Catalog exposes the supported dataset definitions
type Catalog struct{}

// NewCatalog creates a dataset catalog
func NewCatalog() *Catalog {
	return &Catalog{}
}

// DataSetByCode resolves a mapping's geeImage code to a dataset definition
func (c *Catalog) DataSetByCode(code string) (DataSet, error) {
	ds, ok := catalog[code]
	if !ok {
		return DataSet{}, fmt.Errorf("unknown google data set code: %q", code)
	}
	return ds, nil
}

// DataSets returns all catalog entries ordered by code
func (c *Catalog) DataSets() []DataSet {
	out := make([]DataSet, 0, len(catalog))
	for _, ds := range catalog {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// CatalogIssue describes one dataset that failed validation
type CatalogIssue struct {
	Code string
	URL  string
	Err  error
}

// Validate checks that every catalog entry is well-formed and its
// documentation page is reachable. Used by the CI validation command, not
// by the runtime import path.
func (c *Catalog) Validate(ctx context.Context) []CatalogIssue {
	http := resty.New().SetTimeout(30 * time.Second)

	var issues []CatalogIssue
	for _, ds := range c.DataSets() {
		if err := validateDataSet(ds); err != nil {
			issues = append(issues, CatalogIssue{Code: ds.Code, URL: ds.DocURL, Err: err})
			continue
		}

		resp, err := http.R().SetContext(ctx).Head(ds.DocURL)
		if err != nil {
			issues = append(issues, CatalogIssue{Code: ds.Code, URL: ds.DocURL, Err: fmt.Errorf("documentation unreachable: %w", err)})
			continue
		}
		if !resp.IsSuccess() {
			issues = append(issues, CatalogIssue{Code: ds.Code, URL: ds.DocURL, Err: fmt.Errorf("documentation returned %s", resp.Status())})
		}
	}
	return issues
}

func validateDataSet(ds DataSet) error {
	if ds.Code == "" || ds.ImageCollectionID == "" || ds.DisplayName == "" {
		return fmt.Errorf("incomplete dataset definition")
	}
	if len(ds.Bands) == 0 {
		return fmt.Errorf("dataset declares no bands")
	}
	if ds.DocURL == "" {
		return fmt.Errorf("dataset has no documentation URL")
	}
	return nil
}
