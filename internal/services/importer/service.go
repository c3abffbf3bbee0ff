package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gee2dhis2/internal/gee"
	"gee2dhis2/internal/geometry"
	"gee2dhis2/internal/models"
	"gee2dhis2/internal/period"
	"gee2dhis2/internal/transform"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// configFailedMessage is the leading failure entry when an import cannot
// even start (bad period, unreachable DHIS2 metadata, save error)
const configFailedMessage = "Import config failed"

// Service orchestrates one import run: resolve org unit geometries, query
// every selected mapping's dataset, apply transforms and write the merged
// data value set to the configured destination
type Service struct {
	orgUnits     OrgUnitRepository
	source       DataValueSetSource
	catalog      DataSetCatalog
	writer       DataValueSetWriter
	history      RuleHistory
	queryTimeout time.Duration
	username     string
	now          func() time.Time
}

// New creates an import service. history may be nil to skip summary
// persistence.
func New(orgUnits OrgUnitRepository, source DataValueSetSource, catalog DataSetCatalog, writer DataValueSetWriter, history RuleHistory, queryTimeout time.Duration, username string) *Service {
	if queryTimeout <= 0 {
		queryTimeout = 120 * time.Second
	}
	return &Service{
		orgUnits:     orgUnits,
		source:       source,
		catalog:      catalog,
		writer:       writer,
		history:      history,
		queryTimeout: queryTimeout,
		username:     username,
		now:          time.Now,
	}
}

// mappingOutcome collects one mapping's contribution. Mappings run
// concurrently into isolated outcomes which are merged in declaration
// order, so one failing mapping never disturbs another.
type mappingOutcome struct {
	values   []DataValue
	failures []string
	message  string
}

// Execute runs the rule against the given mappings and returns the
// accumulated result. The result is also persisted as an import summary
// when a history store is configured.
func (s *Service) Execute(ctx context.Context, rule *models.ImportRule, mappings []models.Mapping) models.ImportResult {
	result := s.execute(ctx, rule, mappings)
	s.persistSummary(ctx, rule, result)
	return result
}

func (s *Service) execute(ctx context.Context, rule *models.ImportRule, mappings []models.Mapping) models.ImportResult {
	result := models.ImportResult{Messages: []string{}, Failures: []string{}}

	interval, err := s.resolveInterval(rule)
	if err != nil {
		return configFailure(result, err)
	}

	orgUnits, err := s.resolveOrgUnits(ctx, rule)
	if err != nil {
		return configFailure(result, err)
	}

	outcomes := make([]mappingOutcome, len(mappings))
	group, groupCtx := errgroup.WithContext(ctx)
	for i := range mappings {
		i := i
		group.Go(func() error {
			// Failures land in the outcome bucket, never abort siblings
			outcomes[i] = s.runMapping(groupCtx, mappings[i], orgUnits, interval)
			return nil
		})
	}
	// No goroutine returns an error
	_ = group.Wait()

	var values []DataValue
	for _, outcome := range outcomes {
		values = append(values, outcome.values...)
		result.Failures = append(result.Failures, outcome.failures...)
		if outcome.message != "" {
			result.Messages = append(result.Messages, outcome.message)
		}
	}

	if values == nil {
		values = []DataValue{}
	}
	resp, err := s.writer.Save(ctx, DataValueSet{DataValues: values})
	if err != nil {
		return configFailure(result, err)
	}
	if resp.ImportCount != nil {
		result.Messages = append(result.Messages, fmt.Sprintf("Imported %d - updated %d - ignored %d",
			resp.ImportCount.Imported, resp.ImportCount.Updated, resp.ImportCount.Ignored))
	} else {
		result.Messages = append(result.Messages, "No effective import into DHIS2, file download")
		if resp.FilePath != "" {
			log.Info().Str("path", resp.FilePath).Msg("Data value set exported")
		}
	}

	result.Success = len(result.Failures) == 0 && len(result.Messages) > 0
	return result
}

// resolveInterval decodes the rule's period selector and resolves it to
// concrete dates
func (s *Service) resolveInterval(rule *models.ImportRule) (period.Interval, error) {
	var opt period.Option
	if rule.PeriodInfo != "" {
		if err := json.Unmarshal([]byte(rule.PeriodInfo), &opt); err != nil {
			return period.Interval{}, fmt.Errorf("invalid period selection: %w", err)
		}
	}
	return period.Resolve(opt, s.now())
}

// orgUnitGeometry pairs an org unit with its usable geometry
type orgUnitGeometry struct {
	unit models.OrgUnit
	geom geometry.Geometry
}

// resolveOrgUnits fetches the rule's org units in one batch and keeps only
// the ones with usable geometry. Units without geometry are skipped
// without comment, matching how pilot sites run with partial coordinate
// coverage.
func (s *Service) resolveOrgUnits(ctx context.Context, rule *models.ImportRule) ([]orgUnitGeometry, error) {
	ids := orgUnitIDs(rule.OrgUnitPaths())
	units, err := s.orgUnits.GetOrganisationUnits(ctx, ids)
	if err != nil {
		return nil, err
	}

	resolved := make([]orgUnitGeometry, 0, len(units))
	for _, unit := range units {
		geom := geometry.FromOrgUnit(unit)
		if geom == nil {
			log.Debug().Str("orgUnit", unit.ID).Msg("Org unit has no usable geometry, skipping")
			continue
		}
		resolved = append(resolved, orgUnitGeometry{unit: unit, geom: *geom})
	}
	return resolved, nil
}

// orgUnitIDs extracts the unit id from each hierarchy path
// ("/root/.../id"), deduplicated in order
func orgUnitIDs(paths []string) []string {
	seen := map[string]bool{}
	ids := make([]string, 0, len(paths))
	for _, path := range paths {
		id := path
		for i := len(path) - 1; i >= 0; i-- {
			if path[i] == '/' {
				id = path[i+1:]
				break
			}
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// runMapping queries one mapping's dataset for every org unit and converts
// the observations into data values. Any error short of a single transform
// evaluation aborts the whole mapping.
func (s *Service) runMapping(ctx context.Context, mapping models.Mapping, orgUnits []orgUnitGeometry, interval period.Interval) mappingOutcome {
	var outcome mappingOutcome

	dataSet, err := s.catalog.DataSetByCode(mapping.GEEImage)
	if err != nil {
		outcome.failures = append(outcome.failures, fmt.Sprintf("%s: %v", mapping.Name, err))
		return outcome
	}

	dict, err := mapping.AttributeMappingDictionary()
	if err != nil {
		outcome.failures = append(outcome.failures, fmt.Sprintf("%s: invalid attribute mappings: %v", mapping.Name, err))
		return outcome
	}

	bands, expressions, err := resolveBands(dict)
	if err != nil {
		outcome.failures = append(outcome.failures, fmt.Sprintf("%s: %v", mapping.Name, err))
		return outcome
	}

	for _, ou := range orgUnits {
		observations, err := s.queryOrgUnit(ctx, dataSet, bands, ou, interval)
		if err != nil {
			outcome.failures = append(outcome.failures, fmt.Sprintf("%s: %v", mapping.Name, err))
			return outcome
		}

		for _, obs := range observations {
			am := dict[obs.Band]
			if am.DataElementID == "" {
				log.Info().Str("mapping", mapping.Name).Str("band", obs.Band).Msg("Band present in response but unmapped, skipping")
				continue
			}
			value, err := renderValue(obs, expressions[obs.Band])
			if err != nil {
				// One bad reading is dropped, the rest of the mapping proceeds
				outcome.failures = append(outcome.failures,
					fmt.Sprintf("%s: transform failed for %s on %s at %s: %v",
						mapping.Name, obs.Band, obs.Date.Format("2006-01-02"), ou.unit.ID, err))
				continue
			}
			outcome.values = append(outcome.values, DataValue{
				DataElement: am.DataElementID,
				Period:      obs.Date.Format("20060102"),
				OrgUnit:     ou.unit.ID,
				Value:       value,
				Comment:     am.Comment,
			})
		}
	}

	outcome.message = fmt.Sprintf("%d data values from %s google data set.", len(outcome.values), dataSet.DisplayName)
	return outcome
}

// resolveBands returns the full dictionary key set in stable order plus
// the compiled transforms of the mapped bands. Unmapped bands stay in the
// query so the dictionary keys and the response columns always line up;
// their observations are dropped at emit time.
func resolveBands(dict map[string]models.AttributeMapping) ([]string, map[string]*transform.Expression, error) {
	bands := make([]string, 0, len(dict))
	for band := range dict {
		bands = append(bands, band)
	}
	sort.Strings(bands)

	expressions := map[string]*transform.Expression{}
	for _, band := range bands {
		am := dict[band]
		if am.DataElementID == "" || am.Transform == "" {
			continue
		}
		expr, err := transform.New(am.Transform)
		if err != nil {
			return nil, nil, err
		}
		expressions[band] = &expr
	}
	return bands, expressions, nil
}

// queryOrgUnit runs one bounded geospatial query for one org unit
func (s *Service) queryOrgUnit(ctx context.Context, dataSet gee.DataSet, bands []string, ou orgUnitGeometry, interval period.Interval) ([]gee.Observation, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.source.GetDataValueSet(queryCtx, gee.GetDataRequest{
		ID:       dataSet.ImageCollectionID,
		Bands:    bands,
		Geometry: ou.geom,
		Interval: interval,
	})
}

// renderValue formats one observation: transformed values use exact
// decimal rendering, raw values keep full float precision
func renderValue(obs gee.Observation, expr *transform.Expression) (string, error) {
	if expr == nil {
		return strconv.FormatFloat(obs.Value, 'f', 18, 64), nil
	}
	value, err := expr.Evaluate(obs.Value)
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// configFailure finalizes a result that never got past setup
func configFailure(result models.ImportResult, err error) models.ImportResult {
	result.Failures = append(result.Failures, configFailedMessage, err.Error())
	result.Success = false
	return result
}

// persistSummary stores the outcome as an import summary and stamps the
// rule's last execution. Persistence problems are logged, they never turn
// a finished import into a failure.
func (s *Service) persistSummary(ctx context.Context, rule *models.ImportRule, result models.ImportResult) {
	if s.history == nil || rule.ID == "" {
		return
	}

	status := models.SummaryStatusFailure
	if result.Success {
		status = models.SummaryStatusSuccess
	}

	now := s.now()
	summary := &models.ImportSummary{
		Date:            now,
		Username:        s.username,
		Status:          status,
		ImportRuleID:    rule.ID,
		ImportRuleLabel: rule.Name,
	}
	if err := summary.SetImportResult(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode import result")
		return
	}

	if err := s.history.SaveSummary(ctx, summary); err != nil {
		log.Error().Err(err).Str("rule", rule.ID).Msg("Failed to save import summary")
	}
	if err := s.history.StampExecuted(ctx, rule.ID, now); err != nil {
		log.Error().Err(err).Str("rule", rule.ID).Msg("Failed to stamp rule execution")
	}
}
