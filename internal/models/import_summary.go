package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Import summary statuses
const (
	SummaryStatusSuccess = "SUCCESS"
	SummaryStatusFailure = "FAILURE"
)

// ImportResult is the durable outcome of one import execution: a success
// flag plus the accumulated user-facing messages and failures
type ImportResult struct {
	Success  bool     `json:"success"`
	Messages []string `json:"messages"`
	Failures []string `json:"failures"`
}

// ImportSummary is the audit record of one import execution
type ImportSummary struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Date            time.Time `json:"date"`
	Username        string    `json:"username"`
	Status          string    `gorm:"not null" json:"status"` // SUCCESS, FAILURE
	ImportRuleID    string    `gorm:"column:import_rule_id" json:"import_rule_id,omitempty"`
	ImportRuleLabel string    `gorm:"column:import_rule_label" json:"import_rule_label,omitempty"` // frozen name, backfilled when the rule is deleted
	Result          string    `gorm:"type:text" json:"-"`                                          // JSON ImportResult
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (s *ImportSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ImportSummary) TableName() string {
	return "import_summaries"
}

// ImportResult decodes the stored execution result
func (s *ImportSummary) ImportResult() (ImportResult, error) {
	var result ImportResult
	if s.Result == "" {
		return result, nil
	}
	err := json.Unmarshal([]byte(s.Result), &result)
	return result, err
}

// SetImportResult encodes and stores the execution result
func (s *ImportSummary) SetImportResult(result ImportResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	s.Result = string(data)
	return nil
}
