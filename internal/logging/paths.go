package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.amanbib/logs, or a temp directory when the
// home directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanbib", "logs")
	}
	return filepath.Join(home, ".amanbib", "logs")
}

// DefaultLogPath returns the log file used by --debug and serve.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "amanbib.log")
}
