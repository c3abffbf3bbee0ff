package commands

import (
	"fmt"

	"gee2dhis2/internal/database"
	"gee2dhis2/internal/gee"
	"gee2dhis2/internal/models"
	"gee2dhis2/internal/services/rules"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage import rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved import rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		saved, err := rules.New(db, gee.NewCatalog()).ListRules()
		if err != nil {
			return err
		}
		if len(saved) == 0 {
			fmt.Println("No import rules saved")
			return nil
		}
		for _, rule := range saved {
			lastRun := "never"
			if rule.LastExecuted != nil {
				lastRun = rule.LastExecuted.Format("2006-01-02 15:04")
			}
			fmt.Printf("%s\t%s\tmappings=%d\tlast run %s\n", rule.ID, rule.Name, len(rule.MappingIDs()), lastRun)
		}
		return nil
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete import rules, freezing their names on past summaries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		return rules.New(db, gee.NewCatalog()).DeleteRules(args)
	},
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage dataset mappings",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		saved, err := rules.New(db, gee.NewCatalog()).ListMappings()
		if err != nil {
			return err
		}
		if len(saved) == 0 {
			fmt.Println("No mappings saved")
			return nil
		}
		for _, mapping := range saved {
			dict, err := mapping.AttributeMappingDictionary()
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\tbands=%d\n", mapping.ID, mapping.Name, mapping.GEEImage, len(dict))
		}
		return nil
	},
}

var mappingsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a mapping and every reference to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		return rules.New(db, gee.NewCatalog()).DeleteMapping(args[0])
	},
}

var summariesFlags struct {
	rule     string
	status   string
	page     int
	pageSize int
}

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Show the import execution history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		svc := rules.New(db, gee.NewCatalog())
		summaries, total, err := svc.ListSummaries(rules.SummaryFilter{
			RuleID:   summariesFlags.rule,
			Status:   summariesFlags.status,
			Page:     summariesFlags.page,
			PageSize: summariesFlags.pageSize,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%d of %d summaries\n", len(summaries), total)
		for _, summary := range summaries {
			label := summary.ImportRuleLabel
			if label == "" {
				label = summary.ImportRuleID
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", summary.Date.Format("2006-01-02 15:04"), summary.Status, label, summary.Username)

			result, err := summary.ImportResult()
			if err != nil {
				continue
			}
			for _, message := range result.Messages {
				fmt.Printf("    %s\n", message)
			}
			for _, failure := range result.Failures {
				fmt.Printf("    FAILURE: %s\n", failure)
			}
		}
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesListCmd, rulesDeleteCmd)
	mappingsCmd.AddCommand(mappingsListCmd, mappingsDeleteCmd)

	summariesCmd.Flags().StringVar(&summariesFlags.rule, "rule", "", "filter by import rule id")
	summariesCmd.Flags().StringVar(&summariesFlags.status, "status", "", fmt.Sprintf("filter by status (%s, %s)", models.SummaryStatusSuccess, models.SummaryStatusFailure))
	summariesCmd.Flags().IntVar(&summariesFlags.page, "page", 1, "page number")
	summariesCmd.Flags().IntVar(&summariesFlags.pageSize, "page-size", 20, "page size, 0 for everything")

	rootCmd.AddCommand(rulesCmd, mappingsCmd, summariesCmd)
}
