package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.huddle.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".huddle")
}

// UserDir returns the per-user state directory.
func UserDir(user string) string {
	return filepath.Join(BaseDir(), "users", user)
}

// ArchiveDBPath returns the per-user message archive path.
func ArchiveDBPath(user string) string {
	return filepath.Join(UserDir(user), "archive.db")
}

// LogDir returns the log directory for a user.
func LogDir(user string) string {
	return filepath.Join(UserDir(user), "logs")
}

// LogPath returns the client log file path.
func LogPath(user string) string {
	return filepath.Join(LogDir(user), "huddle.log")
}

// Path returns the global config file path.
func Path() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureUserDir creates the per-user directory tree with proper permissions.
func EnsureUserDir(user string) error {
	dirs := []string{
		UserDir(user),
		LogDir(user),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
