package inwatch

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is the name used for config lookup and logging.
	DefaultAppName    = "inwatch"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)

	// DefaultWatchRoot is the path watched when no roots are configured.
	DefaultWatchRoot = "/tmp"

	// DefaultReadThreshold is the queued-byte count at which a readiness
	// probe considers a session worth reading.
	DefaultReadThreshold = 1024
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			// Last resort - use tmp directory
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
