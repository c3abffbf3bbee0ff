package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	DatabaseURL  string
	DataPath     string
	LogDir       string
	ExportDir    string
	GEEEndpoint  string
	QueryTimeout time.Duration
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			dataPath = "."
		} else {
			dataPath = filepath.Join(configDir, "gee2dhis2")
		}
	}

	logDir := filepath.Join(dataPath, "logs")
	exportDir := getEnv("EXPORT_DIR", filepath.Join(dataPath, "exports"))

	for _, dir := range []string{dataPath, logDir, exportDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to create directory")
		}
	}

	timeoutSecs := getEnvInt("GEE_QUERY_TIMEOUT_SECONDS", 120)

	cfg := &AppConfig{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DataPath:     dataPath,
		LogDir:       logDir,
		ExportDir:    exportDir,
		GEEEndpoint:  getEnv("GEE_ENDPOINT", "https://earthengine.googleapis.com"),
		QueryTimeout: time.Duration(timeoutSecs) * time.Second,
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
