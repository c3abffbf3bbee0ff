package rules

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gee2dhis2/internal/gee"
	"gee2dhis2/internal/models"
	"gee2dhis2/internal/period"

	"gorm.io/gorm"
)

// Service manages the import rule, mapping and summary lifecycle on top of
// the local datastore
type Service struct {
	db      *gorm.DB
	catalog *gee.Catalog
}

// New creates a lifecycle service
func New(db *gorm.DB, catalog *gee.Catalog) *Service {
	return &Service{db: db, catalog: catalog}
}

// ListRules returns all saved import rules ordered by name
func (s *Service) ListRules() ([]models.ImportRule, error) {
	var rules []models.ImportRule
	if err := s.db.Order("name").Find(&rules).Error; err != nil {
		return nil, &UnexpectedError{Op: "failed to list import rules", Err: err}
	}
	return rules, nil
}

// GetRule fetches one rule. The reserved default and on-demand rules are
// created on first access so callers can rely on their existence.
func (s *Service) GetRule(id string) (*models.ImportRule, error) {
	var rule models.ImportRule
	err := s.db.First(&rule, "id = ?", id).Error
	if err == nil {
		return &rule, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &UnexpectedError{Op: "failed to load import rule", Err: err}
	}

	switch id {
	case models.DefaultRuleID, models.OnDemandRuleID:
		seeded := seedReservedRule(id)
		if err := s.db.Create(seeded).Error; err != nil {
			return nil, &UnexpectedError{Op: "failed to create reserved import rule", Err: err}
		}
		return seeded, nil
	default:
		return nil, &ItemNotFoundError{Kind: "import rule", ID: id}
	}
}

// seedReservedRule builds the initial state of a reserved singleton rule
func seedReservedRule(id string) *models.ImportRule {
	name := "Default"
	if id == models.OnDemandRuleID {
		name = "On-demand"
	}
	rule := &models.ImportRule{ID: id, Name: name}
	rule.SetOrgUnitPaths(nil)
	rule.SetMappingIDs(nil)
	periodInfo, _ := json.Marshal(period.Option{Type: period.ThisMonth})
	rule.PeriodInfo = string(periodInfo)
	return rule
}

// SaveRule validates and persists a rule, creating it when its id is new
func (s *Service) SaveRule(rule *models.ImportRule) error {
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if err := s.db.Save(rule).Error; err != nil {
		return &UnexpectedError{Op: "failed to save import rule", Err: err}
	}
	return nil
}

func (s *Service) validateRule(rule *models.ImportRule) error {
	v := newValidationErrors()

	if rule.Name == "" {
		v.add("name", "cannot be empty")
	}

	if rule.PeriodInfo != "" {
		var opt period.Option
		if err := json.Unmarshal([]byte(rule.PeriodInfo), &opt); err != nil {
			v.add("period", "is not a valid period selection")
		} else if _, err := period.Resolve(opt, time.Now()); err != nil {
			v.add("period", err.Error())
		}
	}

	for _, mappingID := range rule.MappingIDs() {
		var count int64
		if err := s.db.Model(&models.Mapping{}).Where("id = ?", mappingID).Count(&count).Error; err != nil {
			return &UnexpectedError{Op: "failed to validate rule mappings", Err: err}
		}
		if count == 0 {
			v.add("mappings", "mapping "+mappingID+" does not exist")
		}
	}

	if v.empty() {
		return nil
	}
	return v
}

// DeleteRule removes a single rule, see DeleteRules
func (s *Service) DeleteRule(id string) error {
	return s.DeleteRules([]string{id})
}

// DeleteRules removes the given rules in one transaction. Each rule's past
// summaries keep a frozen copy of its name; the whole batch is aborted if
// any backfill or delete fails. Reserved rules cannot be deleted.
func (s *Service) DeleteRules(ids []string) error {
	for _, id := range ids {
		if id == models.DefaultRuleID || id == models.OnDemandRuleID {
			v := newValidationErrors()
			v.add("id", "reserved rule cannot be deleted")
			return v
		}
	}

	doomed := make([]models.ImportRule, 0, len(ids))
	for _, id := range ids {
		var rule models.ImportRule
		if err := s.db.First(&rule, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ItemNotFoundError{Kind: "import rule", ID: id}
			}
			return &UnexpectedError{Op: "failed to load import rule", Err: err}
		}
		doomed = append(doomed, rule)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, rule := range doomed {
			if err := tx.Model(&models.ImportSummary{}).
				Where("import_rule_id = ?", rule.ID).
				Update("import_rule_label", rule.Name).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.ImportRule{}, "id = ?", rule.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &UnexpectedError{Op: "failed to delete import rules", Err: err}
	}
	return nil
}

// SaveSummary persists one execution outcome
func (s *Service) SaveSummary(ctx context.Context, summary *models.ImportSummary) error {
	if err := s.db.WithContext(ctx).Create(summary).Error; err != nil {
		return &UnexpectedError{Op: "failed to save import summary", Err: err}
	}
	return nil
}

// StampExecuted records the rule's last execution time
func (s *Service) StampExecuted(ctx context.Context, ruleID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.ImportRule{}).
		Where("id = ?", ruleID).
		Update("last_executed", at).Error
	if err != nil {
		return &UnexpectedError{Op: "failed to stamp rule execution", Err: err}
	}
	return nil
}
