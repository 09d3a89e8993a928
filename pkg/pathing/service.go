package pathing

import (
	"os"
	"path/filepath"
)

// EnsureDirs creates the data and config directories when missing.
func EnsureDirs() error {
	// Directories that must exist:
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
	}

	// Create all directories
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetMeterDbPath() string {
	// Join path
	return filepath.Join(GetDataDir(), "p1-readings.db")
}

func GetDataDir() string {
	return "/var/lib/p1_mini"
}

func GetConfigDir() string {
	return "/etc/p1_mini"
}
