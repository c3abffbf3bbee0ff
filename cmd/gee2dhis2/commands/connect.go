package commands

import (
	"fmt"

	"gee2dhis2/internal/database"
	"gee2dhis2/internal/models"
	"gee2dhis2/internal/services/connection"

	"github.com/spf13/cobra"
)

var connectFlags struct {
	name       string
	url        string
	username   string
	password   string
	geeProject string
	geeToken   string
	skipTest   bool
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Save a DHIS2 connection profile",
	Long: `Saves a named connection profile with DHIS2 credentials and an Earth
Engine token, encrypted at rest. The connection is verified against the
DHIS2 server unless --skip-test is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		svc := connection.New(db, cfg.GEEEndpoint)

		profile := &models.ConnectionProfile{
			Name:       connectFlags.name,
			BaseURL:    connectFlags.url,
			Username:   connectFlags.username,
			GEEProject: connectFlags.geeProject,
		}
		if existing, err := svc.GetProfile(connectFlags.name); err == nil {
			profile.ID = existing.ID
			profile.PasswordEnc = existing.PasswordEnc
			profile.GEETokenEnc = existing.GEETokenEnc
		}

		if err := svc.SaveProfile(profile, connectFlags.password, connectFlags.geeToken); err != nil {
			return err
		}

		if !connectFlags.skipTest {
			if err := svc.Test(cmd.Context(), profile); err != nil {
				return fmt.Errorf("profile saved but connection test failed: %w", err)
			}
			fmt.Printf("Connected to %s as %s\n", profile.BaseURL, profile.Username)
		}
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage saved connection profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connection profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		profiles, err := connection.New(db, cfg.GEEEndpoint).ListProfiles()
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No connection profiles saved")
			return nil
		}
		for _, p := range profiles {
			fmt.Printf("%s\t%s\t%s@%s\n", p.ID, p.Name, p.Username, p.BaseURL)
		}
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a connection profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		return connection.New(db, cfg.GEEEndpoint).DeleteProfile(args[0])
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectFlags.name, "name", "", "profile name")
	connectCmd.Flags().StringVar(&connectFlags.url, "url", "", "DHIS2 base URL")
	connectCmd.Flags().StringVar(&connectFlags.username, "username", "", "DHIS2 username")
	connectCmd.Flags().StringVar(&connectFlags.password, "password", "", "DHIS2 password")
	connectCmd.Flags().StringVar(&connectFlags.geeProject, "gee-project", "", "Earth Engine cloud project")
	connectCmd.Flags().StringVar(&connectFlags.geeToken, "gee-token", "", "Earth Engine OAuth token")
	connectCmd.Flags().BoolVar(&connectFlags.skipTest, "skip-test", false, "do not verify the connection")
	connectCmd.MarkFlagRequired("name")
	connectCmd.MarkFlagRequired("url")
	connectCmd.MarkFlagRequired("username")

	profilesCmd.AddCommand(profilesListCmd, profilesDeleteCmd)
	rootCmd.AddCommand(connectCmd, profilesCmd)
}
