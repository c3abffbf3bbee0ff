package importer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gee2dhis2/internal/api"
	"gee2dhis2/internal/gee"
	"gee2dhis2/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrgUnitRepo struct {
	units []models.OrgUnit
	err   error
}

func (f *fakeOrgUnitRepo) GetOrganisationUnits(ctx context.Context, ids []string) ([]models.OrgUnit, error) {
	return f.units, f.err
}

type fakeSource struct {
	observations map[string][]gee.Observation // image collection id -> rows
	failFor      string                       // image collection id that errors
	mu           sync.Mutex
	requests     []gee.GetDataRequest
}

func (f *fakeSource) GetDataValueSet(ctx context.Context, req gee.GetDataRequest) ([]gee.Observation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if req.ID == f.failFor {
		return nil, fmt.Errorf("earth engine returned 500")
	}
	return f.observations[req.ID], nil
}

type fakeWriter struct {
	resp  SaveResponse
	err   error
	saved []DataValueSet
}

func (f *fakeWriter) Save(ctx context.Context, set DataValueSet) (SaveResponse, error) {
	f.saved = append(f.saved, set)
	return f.resp, f.err
}

type fakeHistory struct {
	summaries []*models.ImportSummary
	stamped   []string
}

func (f *fakeHistory) SaveSummary(ctx context.Context, summary *models.ImportSummary) error {
	f.summaries = append(f.summaries, summary)
	return nil
}

func (f *fakeHistory) StampExecuted(ctx context.Context, ruleID string, at time.Time) error {
	f.stamped = append(f.stamped, ruleID)
	return nil
}

func pointOrgUnit(id string) models.OrgUnit {
	return models.OrgUnit{
		ID:          id,
		Name:        id,
		Path:        "/ImspTQPwCqd/" + id,
		FeatureType: models.FeatureTypePoint,
		Coordinates: "[-11.4197, 8.1039]",
	}
}

func fixedRule(start, end time.Time) *models.ImportRule {
	rule := &models.ImportRule{ID: "rule-1", Name: "Climate rule"}
	rule.SetOrgUnitPaths([]string{"/ImspTQPwCqd/WFAboRxdVjA"})
	rule.PeriodInfo = fmt.Sprintf(`{"type":"FIXED","startDate":"%s","endDate":"%s"}`,
		start.Format(time.RFC3339), end.Format(time.RFC3339))
	return rule
}

func temperatureMapping(t *testing.T) models.Mapping {
	t.Helper()
	mapping := models.Mapping{ID: "map-era", Name: "ERA", GEEImage: "era5Daily"}
	err := mapping.SetAttributeMappingDictionary(map[string]models.AttributeMapping{
		"minimum_2m_air_temperature": {DataElementID: "klaKtwaWAvG"},
		"maximum_2m_air_temperature": {DataElementID: "c24Y5UNjXyj"},
		"mean_2m_air_temperature":    {DataElementID: "RSJpUZqMoxC"},
	})
	require.NoError(t, err)
	return mapping
}

func era5Observations() []gee.Observation {
	days := []time.Time{
		time.Date(2020, 3, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	var rows []gee.Observation
	for _, day := range days {
		rows = append(rows,
			gee.Observation{Band: "maximum_2m_air_temperature", Value: 303.2, Date: day, PeriodID: day.Format("20060102")},
			gee.Observation{Band: "mean_2m_air_temperature", Value: 299.5, Date: day, PeriodID: day.Format("20060102")},
			gee.Observation{Band: "minimum_2m_air_temperature", Value: 296.1, Date: day, PeriodID: day.Format("20060102")},
		)
	}
	return rows
}

func newTestService(orgUnits OrgUnitRepository, source DataValueSetSource, writer DataValueSetWriter, history RuleHistory) *Service {
	svc := New(orgUnits, source, gee.NewCatalog(), writer, history, time.Minute, "district")
	svc.now = func() time.Time { return time.Date(2020, 4, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestExecute(t *testing.T) {
	start := time.Date(2020, 3, 30, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("Should import every band observation as one data value", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}
		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": era5Observations(),
		}}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{Imported: 6}}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{temperatureMapping(t)})

		assert.True(t, result.Success)
		assert.Empty(t, result.Failures)
		assert.Equal(t, []string{
			"6 data values from ECMWF-ERA5-DAILY google data set.",
			"Imported 6 - updated 0 - ignored 0",
		}, result.Messages)

		require.Len(t, writer.saved, 1)
		values := writer.saved[0].DataValues
		require.Len(t, values, 6)

		first := values[0]
		assert.Equal(t, "c24Y5UNjXyj", first.DataElement)
		assert.Equal(t, "20200330", first.Period)
		assert.Equal(t, "WFAboRxdVjA", first.OrgUnit)
		assert.Equal(t, "303.199999999999988631", first.Value)

		// Bands are queried in sorted order
		require.Len(t, source.requests, 1)
		assert.Equal(t, []string{
			"maximum_2m_air_temperature",
			"mean_2m_air_temperature",
			"minimum_2m_air_temperature",
		}, source.requests[0].Bands)
	})

	t.Run("Should apply transforms with exact arithmetic", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}

		mapping := models.Mapping{ID: "map-f2c", Name: "Fahrenheit", GEEImage: "era5Daily"}
		require.NoError(t, mapping.SetAttributeMappingDictionary(map[string]models.AttributeMapping{
			"mean_2m_air_temperature": {DataElementID: "RSJpUZqMoxC", Transform: "(#{input} - 32) * 5 / 9"},
		}))

		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": {{Band: "mean_2m_air_temperature", Value: 75.2, Date: start}},
		}}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{Imported: 1}}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{mapping})

		assert.True(t, result.Success)
		require.Len(t, writer.saved, 1)
		require.Len(t, writer.saved[0].DataValues, 1)
		assert.Equal(t, "24", writer.saved[0].DataValues[0].Value)
	})

	t.Run("Should query unmapped bands but emit no values for them", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}

		mapping := models.Mapping{ID: "map-partial", Name: "Partial", GEEImage: "era5Daily"}
		require.NoError(t, mapping.SetAttributeMappingDictionary(map[string]models.AttributeMapping{
			"mean_2m_air_temperature":    {DataElementID: "RSJpUZqMoxC"},
			"minimum_2m_air_temperature": {}, // unmapped
		}))

		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": {
				{Band: "mean_2m_air_temperature", Value: 299.5, Date: start},
				{Band: "minimum_2m_air_temperature", Value: 296.1, Date: start},
			},
		}}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{Imported: 1}}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{mapping})

		assert.True(t, result.Success)
		assert.Empty(t, result.Failures)

		// The dictionary key set is queried whole, mapped or not
		require.Len(t, source.requests, 1)
		assert.Equal(t, []string{
			"mean_2m_air_temperature",
			"minimum_2m_air_temperature",
		}, source.requests[0].Bands)

		// Only the mapped band produces a data value
		require.Len(t, writer.saved, 1)
		require.Len(t, writer.saved[0].DataValues, 1)
		assert.Equal(t, "RSJpUZqMoxC", writer.saved[0].DataValues[0].DataElement)
	})

	t.Run("Should save and report counts even when no values were produced", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}
		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": {},
		}}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{}}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{temperatureMapping(t)})

		assert.True(t, result.Success)
		require.Len(t, writer.saved, 1)
		assert.Empty(t, writer.saved[0].DataValues)
		assert.Equal(t, []string{
			"0 data values from ECMWF-ERA5-DAILY google data set.",
			"Imported 0 - updated 0 - ignored 0",
		}, result.Messages)
	})

	t.Run("Should isolate a failing mapping from its siblings", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}

		rain := models.Mapping{ID: "map-rain", Name: "Rainfall", GEEImage: "chirpsDaily"}
		require.NoError(t, rain.SetAttributeMappingDictionary(map[string]models.AttributeMapping{
			"precipitation": {DataElementID: "uF1DLnZNlWe"},
		}))

		source := &fakeSource{
			observations: map[string][]gee.Observation{
				"ECMWF/ERA5/DAILY": era5Observations(),
			},
			failFor: "UCSB-CHG/CHIRPS/DAILY",
		}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{Imported: 6}}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{temperatureMapping(t), rain})

		assert.False(t, result.Success)
		// Messages keep declaration order, the failed mapping contributes none
		assert.Equal(t, []string{
			"6 data values from ECMWF-ERA5-DAILY google data set.",
			"Imported 6 - updated 0 - ignored 0",
		}, result.Messages)
		require.Len(t, result.Failures, 1)
		assert.Contains(t, result.Failures[0], "Rainfall")
	})

	t.Run("Should drop a single value when its transform fails", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}

		mapping := models.Mapping{ID: "map-bad", Name: "Ratio", GEEImage: "era5Daily"}
		require.NoError(t, mapping.SetAttributeMappingDictionary(map[string]models.AttributeMapping{
			"mean_2m_air_temperature": {DataElementID: "RSJpUZqMoxC", Transform: "100 / #{input}"},
		}))

		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": {
				{Band: "mean_2m_air_temperature", Value: 0, Date: start}, // division by zero
				{Band: "mean_2m_air_temperature", Value: 25, Date: end},
			},
		}}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{Imported: 1}}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{mapping})

		assert.False(t, result.Success)
		require.Len(t, result.Failures, 1)
		assert.Contains(t, result.Failures[0], "division by zero")
		require.Len(t, writer.saved, 1)
		require.Len(t, writer.saved[0].DataValues, 1)
		assert.Equal(t, "4", writer.saved[0].DataValues[0].Value)
	})

	t.Run("Should silently skip org units without geometry", func(t *testing.T) {
		noGeometry := models.OrgUnit{ID: "qtr8GGlm4gg", Name: "HQ", FeatureType: models.FeatureTypeNone}
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{noGeometry, pointOrgUnit("WFAboRxdVjA")}}

		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": era5Observations(),
		}}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{Imported: 6}}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{temperatureMapping(t)})

		assert.True(t, result.Success)
		assert.Empty(t, result.Failures)
		require.Len(t, source.requests, 1)
	})

	t.Run("Should fail the run when the period is unsupported", func(t *testing.T) {
		rule := &models.ImportRule{ID: "rule-bad", Name: "Bad period"}
		rule.PeriodInfo = `{"type":"LAST_5_EONS"}`

		svc := newTestService(&fakeOrgUnitRepo{}, &fakeSource{}, &fakeWriter{}, nil)
		result := svc.Execute(context.Background(), rule, []models.Mapping{temperatureMapping(t)})

		assert.False(t, result.Success)
		require.Len(t, result.Failures, 2)
		assert.Equal(t, "Import config failed", result.Failures[0])
		assert.Contains(t, result.Failures[1], "LAST_5_EONS")
	})

	t.Run("Should report a file export instead of import counts on dry runs", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}
		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": era5Observations(),
		}}
		writer := &fakeWriter{resp: SaveResponse{FilePath: "/tmp/datavalues-20200401-120000.json"}}

		svc := newTestService(repo, source, writer, nil)
		result := svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{temperatureMapping(t)})

		assert.True(t, result.Success)
		assert.Equal(t, []string{
			"6 data values from ECMWF-ERA5-DAILY google data set.",
			"No effective import into DHIS2, file download",
		}, result.Messages)
	})

	t.Run("Should persist a summary and stamp the rule", func(t *testing.T) {
		repo := &fakeOrgUnitRepo{units: []models.OrgUnit{pointOrgUnit("WFAboRxdVjA")}}
		source := &fakeSource{observations: map[string][]gee.Observation{
			"ECMWF/ERA5/DAILY": era5Observations(),
		}}
		writer := &fakeWriter{resp: SaveResponse{ImportCount: &api.ImportCount{Imported: 6}}}
		history := &fakeHistory{}

		svc := newTestService(repo, source, writer, history)
		svc.Execute(context.Background(), fixedRule(start, end), []models.Mapping{temperatureMapping(t)})

		require.Len(t, history.summaries, 1)
		summary := history.summaries[0]
		assert.Equal(t, models.SummaryStatusSuccess, summary.Status)
		assert.Equal(t, "rule-1", summary.ImportRuleID)
		assert.Equal(t, "Climate rule", summary.ImportRuleLabel)
		assert.Equal(t, "district", summary.Username)

		stored, err := summary.ImportResult()
		require.NoError(t, err)
		assert.True(t, stored.Success)

		assert.Equal(t, []string{"rule-1"}, history.stamped)
	})
}

func TestOrgUnitIDs(t *testing.T) {
	t.Run("Should take the last path segment and deduplicate", func(t *testing.T) {
		ids := orgUnitIDs([]string{
			"/ImspTQPwCqd/WFAboRxdVjA",
			"/ImspTQPwCqd/O6uvpzGd5pu/WFAboRxdVjA",
			"qtr8GGlm4gg",
			"",
		})
		assert.Equal(t, []string{"WFAboRxdVjA", "qtr8GGlm4gg"}, ids)
	})
}

func TestFileExportWriter(t *testing.T) {
	t.Run("Should write the set to a timestamped file", func(t *testing.T) {
		dir := t.TempDir()
		writer := NewFileExportWriter(dir)
		writer.now = func() time.Time { return time.Date(2020, 4, 1, 12, 0, 0, 0, time.UTC) }

		resp, err := writer.Save(context.Background(), DataValueSet{DataValues: []DataValue{
			{DataElement: "RSJpUZqMoxC", Period: "20200330", OrgUnit: "WFAboRxdVjA", Value: "24"},
		}})
		require.NoError(t, err)
		assert.Nil(t, resp.ImportCount)
		assert.Contains(t, resp.FilePath, "datavalues-20200401-120000.json")
		assert.FileExists(t, resp.FilePath)
	})
}
