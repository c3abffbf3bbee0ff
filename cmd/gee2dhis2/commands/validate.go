package commands

import (
	"fmt"

	"gee2dhis2/internal/gee"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the built-in dataset catalog",
	Long: `Checks every supported Earth Engine dataset definition for completeness
and verifies that its documentation page is still reachable. Intended for
CI; exits non-zero when any dataset fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := gee.NewCatalog()
		issues := catalog.Validate(cmd.Context())

		for _, ds := range catalog.DataSets() {
			fmt.Printf("%s\t%s\tbands=%d\n", ds.Code, ds.ImageCollectionID, len(ds.Bands))
		}

		if len(issues) == 0 {
			fmt.Println("All datasets valid")
			return nil
		}
		for _, issue := range issues {
			fmt.Printf("INVALID %s (%s): %v\n", issue.Code, issue.URL, issue.Err)
		}
		return fmt.Errorf("%d dataset(s) failed validation", len(issues))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
