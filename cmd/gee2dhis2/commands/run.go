package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"gee2dhis2/internal/database"
	"gee2dhis2/internal/gee"
	"gee2dhis2/internal/models"
	"gee2dhis2/internal/period"
	"gee2dhis2/internal/services/connection"
	"gee2dhis2/internal/services/importer"
	"gee2dhis2/internal/services/rules"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var runFlags struct {
	profile  string
	rule     string
	dryRun   bool
	orgUnits []string
	mappings []string
	period   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute an import rule",
	Long: `Runs a saved import rule against a connection profile. With --dry-run the
resulting data value set is written to a local file instead of being
committed to DHIS2.

Without --rule, the reserved on-demand rule is executed; its selection can
be overridden with --org-unit, --mapping and --period for one-off imports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		ruleID := runFlags.rule
		if ruleID == "" {
			ruleID = models.OnDemandRuleID
			if err := updateOnDemandRule(db); err != nil {
				return err
			}
		}

		result, err := executeRule(cmd.Context(), db, ruleID, runFlags.profile, runFlags.dryRun)
		if err != nil {
			return err
		}

		for _, message := range result.Messages {
			fmt.Println(message)
		}
		for _, failure := range result.Failures {
			fmt.Println("FAILURE:", failure)
		}
		if !result.Success {
			return fmt.Errorf("import finished with failures")
		}
		return nil
	},
}

// updateOnDemandRule applies the one-off selection flags to the reserved
// on-demand rule
func updateOnDemandRule(db *gorm.DB) error {
	svc := rules.New(db, gee.NewCatalog())
	rule, err := svc.GetRule(models.OnDemandRuleID)
	if err != nil {
		return err
	}

	if len(runFlags.orgUnits) > 0 {
		rule.SetOrgUnitPaths(runFlags.orgUnits)
	}
	if len(runFlags.mappings) > 0 {
		rule.SetMappingIDs(runFlags.mappings)
	}
	if runFlags.period != "" {
		periodInfo, err := json.Marshal(period.Option{Type: runFlags.period})
		if err != nil {
			return err
		}
		rule.PeriodInfo = string(periodInfo)
	}

	return svc.SaveRule(rule)
}

// executeRule assembles clients and sinks for the profile and runs the
// rule through the import service
func executeRule(ctx context.Context, db *gorm.DB, ruleID, profileID string, dryRun bool) (models.ImportResult, error) {
	connSvc := connection.New(db, cfg.GEEEndpoint)
	profile, err := connSvc.GetProfile(profileID)
	if err != nil {
		return models.ImportResult{}, err
	}

	dhis2, err := connSvc.DHIS2Client(profile)
	if err != nil {
		return models.ImportResult{}, err
	}
	source, err := connSvc.GEEClient(profile)
	if err != nil {
		return models.ImportResult{}, err
	}
	source.SetTimeout(cfg.QueryTimeout)

	catalog := gee.NewCatalog()
	ruleSvc := rules.New(db, catalog)
	rule, err := ruleSvc.GetRule(ruleID)
	if err != nil {
		return models.ImportResult{}, err
	}
	mappings, err := ruleSvc.GetMappings(rule.MappingIDs())
	if err != nil {
		return models.ImportResult{}, err
	}

	var writer importer.DataValueSetWriter
	if dryRun {
		writer = importer.NewFileExportWriter(cfg.ExportDir)
	} else {
		writer = importer.NewDHIS2Writer(dhis2)
	}

	svc := importer.New(dhis2, source, catalog, writer, ruleSvc, cfg.QueryTimeout, profile.Username)
	return svc.Execute(ctx, rule, mappings), nil
}

func init() {
	runCmd.Flags().StringVar(&runFlags.profile, "profile", "", "connection profile name or id")
	runCmd.Flags().StringVar(&runFlags.rule, "rule", "", "import rule id (default: the on-demand rule)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "export to a file instead of committing to DHIS2")
	runCmd.Flags().StringSliceVar(&runFlags.orgUnits, "org-unit", nil, "org unit path for a one-off run (repeatable)")
	runCmd.Flags().StringSliceVar(&runFlags.mappings, "mapping", nil, "mapping id for a one-off run (repeatable)")
	runCmd.Flags().StringVar(&runFlags.period, "period", "", "symbolic period for a one-off run (e.g. LAST_7_DAYS)")
	runCmd.MarkFlagRequired("profile")

	rootCmd.AddCommand(runCmd)
}
