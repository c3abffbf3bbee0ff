package rules

import (
	"gee2dhis2/internal/models"
)

// SummaryFilter narrows and pages the summary history. Zero values leave
// the corresponding dimension unfiltered; PageSize 0 returns everything.
type SummaryFilter struct {
	RuleID   string
	Status   string
	Page     int
	PageSize int
}

// ListSummaries returns the execution history, newest first, with the
// total count across all pages
func (s *Service) ListSummaries(filter SummaryFilter) ([]models.ImportSummary, int64, error) {
	query := s.db.Model(&models.ImportSummary{})
	if filter.RuleID != "" {
		query = query.Where("import_rule_id = ?", filter.RuleID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, &UnexpectedError{Op: "failed to count import summaries", Err: err}
	}

	query = query.Order("date DESC")
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var summaries []models.ImportSummary
	if err := query.Find(&summaries).Error; err != nil {
		return nil, 0, &UnexpectedError{Op: "failed to list import summaries", Err: err}
	}
	return summaries, total, nil
}

// DeleteSummaries removes the given summaries from the history
func (s *Service) DeleteSummaries(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.Delete(&models.ImportSummary{}, "id IN ?", ids).Error; err != nil {
		return &UnexpectedError{Op: "failed to delete import summaries", Err: err}
	}
	return nil
}

// GlobalOrgUnitMappings returns the per-org-unit default mapping
// assignments
func (s *Service) GlobalOrgUnitMappings() ([]models.GlobalOrgUnitMapping, error) {
	var assignments []models.GlobalOrgUnitMapping
	if err := s.db.Find(&assignments).Error; err != nil {
		return nil, &UnexpectedError{Op: "failed to list org unit mappings", Err: err}
	}
	return assignments, nil
}

// SetGlobalOrgUnitMapping assigns a mapping to an org unit, replacing any
// previous assignment
func (s *Service) SetGlobalOrgUnitMapping(assignment *models.GlobalOrgUnitMapping) error {
	if _, err := s.GetMapping(assignment.MappingID); err != nil {
		return err
	}
	if err := s.db.Save(assignment).Error; err != nil {
		return &UnexpectedError{Op: "failed to save org unit mapping", Err: err}
	}
	return nil
}
