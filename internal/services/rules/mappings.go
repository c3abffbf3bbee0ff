package rules

import (
	"errors"

	"gee2dhis2/internal/models"
	"gee2dhis2/internal/transform"

	"gorm.io/gorm"
)

// ListMappings returns all saved mappings ordered by name
func (s *Service) ListMappings() ([]models.Mapping, error) {
	var mappings []models.Mapping
	if err := s.db.Order("name").Find(&mappings).Error; err != nil {
		return nil, &UnexpectedError{Op: "failed to list mappings", Err: err}
	}
	return mappings, nil
}

// GetMapping fetches one mapping by id
func (s *Service) GetMapping(id string) (*models.Mapping, error) {
	var mapping models.Mapping
	if err := s.db.First(&mapping, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ItemNotFoundError{Kind: "mapping", ID: id}
		}
		return nil, &UnexpectedError{Op: "failed to load mapping", Err: err}
	}
	return &mapping, nil
}

// GetMappings fetches the given mappings, failing on the first unknown id
func (s *Service) GetMappings(ids []string) ([]models.Mapping, error) {
	mappings := make([]models.Mapping, 0, len(ids))
	for _, id := range ids {
		mapping, err := s.GetMapping(id)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *mapping)
	}
	return mappings, nil
}

// SaveMapping validates and persists a mapping. Transform formulas are
// compiled here so a broken formula is rejected at save time, long before
// an import run would hit it.
func (s *Service) SaveMapping(mapping *models.Mapping) error {
	if err := s.validateMapping(mapping); err != nil {
		return err
	}
	if err := s.db.Save(mapping).Error; err != nil {
		return &UnexpectedError{Op: "failed to save mapping", Err: err}
	}
	return nil
}

func (s *Service) validateMapping(mapping *models.Mapping) error {
	v := newValidationErrors()

	if mapping.Name == "" {
		v.add("name", "cannot be empty")
	}

	dataSet, err := s.catalog.DataSetByCode(mapping.GEEImage)
	if err != nil {
		v.add("geeImage", err.Error())
	}

	dict, err := mapping.AttributeMappingDictionary()
	if err != nil {
		v.add("attributeMappings", "is not a valid band dictionary")
		return v
	}

	known := map[string]bool{}
	for _, band := range dataSet.Bands {
		known[band] = true
	}

	for band, am := range dict {
		if mapping.GEEImage != "" && dataSet.Code != "" && !known[band] {
			v.add("attributeMappings", "band "+band+" does not exist in "+dataSet.DisplayName)
		}
		if am.Transform == "" {
			continue
		}
		if _, err := transform.New(am.Transform); err != nil {
			v.add("attributeMappings", err.Error())
		}
	}

	if v.empty() {
		return nil
	}
	return v
}

// DeleteMapping removes a mapping together with every reference to it:
// rules drop it from their selection and global org unit assignments are
// cleared. The whole cascade is one transaction, a failing reference
// cleanup aborts the delete.
func (s *Service) DeleteMapping(id string) error {
	if _, err := s.GetMapping(id); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rules []models.ImportRule
		if err := tx.Find(&rules).Error; err != nil {
			return err
		}
		for i := range rules {
			rule := &rules[i]
			kept := remove(rule.MappingIDs(), id)
			if len(kept) == len(rule.MappingIDs()) {
				continue
			}
			rule.SetMappingIDs(kept)
			if err := tx.Save(rule).Error; err != nil {
				return err
			}
		}

		if err := tx.Delete(&models.GlobalOrgUnitMapping{}, "mapping_id = ?", id).Error; err != nil {
			return err
		}

		return tx.Delete(&models.Mapping{}, "id = ?", id).Error
	})
	if err != nil {
		return &UnexpectedError{Op: "failed to delete mapping", Err: err}
	}
	return nil
}

func remove(values []string, unwanted string) []string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != unwanted {
			kept = append(kept, v)
		}
	}
	return kept
}
