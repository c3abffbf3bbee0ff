package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gee2dhis2/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RuleRunner executes one import rule against one connection profile.
// Implemented by the command layer, which assembles clients and sinks from
// the profile before delegating to the import service.
type RuleRunner interface {
	RunRule(ctx context.Context, ruleID, profileID string, dryRun bool) error
}

// cronParser accepts the 6-field format stored in the database
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Service runs import rules on CRON schedules
type Service struct {
	db     *gorm.DB
	cron   *cron.Cron
	runner RuleRunner
	jobs   map[string]cron.EntryID // job id -> cron entry id
	jobsMu sync.RWMutex
}

// New creates a scheduler service
func New(db *gorm.DB, runner RuleRunner) *Service {
	return &Service{
		db:     db,
		cron:   cron.New(cron.WithSeconds()),
		runner: runner,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Start launches the cron loop and schedules every enabled job
func (s *Service) Start() error {
	s.cron.Start()

	var jobs []models.ScheduledJob
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		if err := s.scheduleJob(job); err != nil {
			log.Warn().Err(err).Str("job", job.Name).Msg("Failed to schedule job")
			continue
		}
		log.Info().Str("job", job.Name).Str("cron", job.Cron).Msg("Scheduled job")
	}

	log.Info().Int("jobs", len(jobs)).Msg("Scheduler started")
	return nil
}

// Stop drains the cron loop, waiting for running jobs to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		log.Info().Msg("Scheduler stopped")
	}
}

// ListJobs retrieves all scheduled jobs, newest first
func (s *Service) ListJobs() ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// UpsertJob creates or updates a scheduled job, keyed by name
func (s *Service) UpsertJob(req *models.ScheduledJob) (string, error) {
	if req.Name == "" || req.RuleID == "" || req.ProfileID == "" || req.Cron == "" {
		return "", fmt.Errorf("name, rule, profile and cron are required")
	}

	normalized, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}

	var job models.ScheduledJob
	result := s.db.Where("name = ?", req.Name).First(&job)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to query job: %w", result.Error)
	}

	job.Name = req.Name
	job.RuleID = req.RuleID
	job.ProfileID = req.ProfileID
	job.Cron = normalized
	job.DryRun = req.DryRun
	job.Enabled = req.Enabled
	job.Timezone = req.Timezone
	if job.Timezone == "" {
		job.Timezone = "UTC"
	}

	schedule, err := cronParser.Parse(job.Cron)
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	nextRun := schedule.Next(time.Now())
	job.NextRunAt = &nextRun

	if err := s.db.Save(&job).Error; err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}

	return job.ID, nil
}

// DeleteJob removes a scheduled job
func (s *Service) DeleteJob(jobID string) error {
	s.jobsMu.Lock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
	s.jobsMu.Unlock()

	if err := s.db.Delete(&models.ScheduledJob{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// scheduleJob adds an enabled job to the cron loop, replacing any previous
// entry
func (s *Service) scheduleJob(job *models.ScheduledJob) error {
	s.jobsMu.Lock()
	if entryID, exists := s.jobs[job.ID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, job.ID)
	}
	s.jobsMu.Unlock()

	if !job.Enabled {
		return nil
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(job.Cron, func() {
		s.executeJob(jobID)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = entryID
	s.jobsMu.Unlock()

	return nil
}

// rescheduleJob reloads a job from database and reschedules it
func (s *Service) rescheduleJob(jobID string) error {
	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.jobsMu.Lock()
			if entryID, exists := s.jobs[jobID]; exists {
				s.cron.Remove(entryID)
				delete(s.jobs, jobID)
			}
			s.jobsMu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	return s.scheduleJob(&job)
}

// executeJob stamps the run times and delegates to the rule runner
func (s *Service) executeJob(jobID string) {
	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		log.Error().Err(err).Str("job", jobID).Msg("Failed to load scheduled job")
		return
	}

	now := time.Now()
	job.LastRunAt = &now
	if schedule, err := cronParser.Parse(job.Cron); err == nil {
		nextRun := schedule.Next(now)
		job.NextRunAt = &nextRun
	}
	if err := s.db.Save(&job).Error; err != nil {
		log.Warn().Err(err).Str("job", job.Name).Msg("Failed to update job run times")
	}

	log.Info().Str("job", job.Name).Str("rule", job.RuleID).Bool("dryRun", job.DryRun).Msg("Executing scheduled import")
	if err := s.runner.RunRule(context.Background(), job.RuleID, job.ProfileID, job.DryRun); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("Scheduled import failed")
		return
	}
	log.Info().Str("job", job.Name).Msg("Scheduled import completed")
}

// normalizeCron converts 5-field cron to the 6-field format used by the
// cron loop by prepending a seconds field
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	fields := strings.Fields(cronExpr)

	if len(fields) == 6 {
		if _, err := cronParser.Parse(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 6-field cron expression: %w", err)
		}
		return cronExpr, nil
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		// Run at second 0 of the matching minute
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}
