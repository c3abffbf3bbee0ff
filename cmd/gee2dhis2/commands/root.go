package commands

import (
	"gee2dhis2/internal/config"
	"gee2dhis2/internal/crypto"
	"gee2dhis2/internal/database"
	"gee2dhis2/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "gee2dhis2",
	Short: "gee2dhis2 imports Google Earth Engine climate data into DHIS2",
	Long: `Imports climate and environmental time series (temperature, precipitation,
humidity) from Google Earth Engine image collections into DHIS2 data values,
resolved against organisation unit geometries.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logging.Init(verbose, cfg.LogDir)

		if err := crypto.InitEncryption(); err != nil {
			return err
		}

		log.Debug().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("gee2dhis2 starting")
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// openDatabase opens the configured datastore. Callers own the handle and
// should close it via database.Close when done.
func openDatabase() (*gorm.DB, error) {
	return database.Init(cfg.DatabaseURL)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
