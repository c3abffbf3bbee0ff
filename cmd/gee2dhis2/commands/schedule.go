package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gee2dhis2/internal/database"
	"gee2dhis2/internal/models"
	"gee2dhis2/internal/services/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled import jobs",
}

var scheduleAddFlags struct {
	name    string
	rule    string
	profile string
	cron    string
	dryRun  bool
	disable bool
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update a scheduled import job",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		svc := scheduler.New(db, &cliRuleRunner{db: db})
		id, err := svc.UpsertJob(&models.ScheduledJob{
			Name:      scheduleAddFlags.name,
			RuleID:    scheduleAddFlags.rule,
			ProfileID: scheduleAddFlags.profile,
			Cron:      scheduleAddFlags.cron,
			DryRun:    scheduleAddFlags.dryRun,
			Enabled:   !scheduleAddFlags.disable,
		})
		if err != nil {
			return err
		}
		fmt.Println("Scheduled job", id)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled import jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		jobs, err := scheduler.New(db, &cliRuleRunner{db: db}).ListJobs()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No scheduled jobs")
			return nil
		}
		for _, job := range jobs {
			state := "enabled"
			if !job.Enabled {
				state = "disabled"
			}
			nextRun := "-"
			if job.NextRunAt != nil {
				nextRun = job.NextRunAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%s\t%s\t%s\trule=%s\t%s\tnext %s\n", job.ID, job.Name, job.Cron, job.RuleID, state, nextRun)
		}
		return nil
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		return scheduler.New(db, &cliRuleRunner{db: db}).DeleteJob(args[0])
	},
}

var scheduleStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduler loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		svc := scheduler.New(db, &cliRuleRunner{db: db})
		if err := svc.Start(); err != nil {
			return err
		}
		defer svc.Stop()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Info().Msg("Shutting down")
		return nil
	},
}

// cliRuleRunner executes scheduled imports through the same path as the
// run command
type cliRuleRunner struct {
	db *gorm.DB
}

func (r *cliRuleRunner) RunRule(ctx context.Context, ruleID, profileID string, dryRun bool) error {
	result, err := executeRule(ctx, r.db, ruleID, profileID, dryRun)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("import finished with failures: %v", result.Failures)
	}
	return nil
}

func init() {
	scheduleAddCmd.Flags().StringVar(&scheduleAddFlags.name, "name", "", "job name")
	scheduleAddCmd.Flags().StringVar(&scheduleAddFlags.rule, "rule", "", "import rule id")
	scheduleAddCmd.Flags().StringVar(&scheduleAddFlags.profile, "profile", "", "connection profile name or id")
	scheduleAddCmd.Flags().StringVar(&scheduleAddFlags.cron, "cron", "", "cron expression (5 or 6 fields)")
	scheduleAddCmd.Flags().BoolVar(&scheduleAddFlags.dryRun, "dry-run", false, "export to files instead of committing")
	scheduleAddCmd.Flags().BoolVar(&scheduleAddFlags.disable, "disable", false, "create the job disabled")
	scheduleAddCmd.MarkFlagRequired("name")
	scheduleAddCmd.MarkFlagRequired("rule")
	scheduleAddCmd.MarkFlagRequired("profile")
	scheduleAddCmd.MarkFlagRequired("cron")

	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleDeleteCmd, scheduleStartCmd)
	rootCmd.AddCommand(scheduleCmd)
}
