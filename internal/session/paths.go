package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// File names inside a session directory.
const (
	dbFile     = "rapt.db"
	socketFile = "daemon.sock"
	lockFile   = "LOCK"
	logFile    = "raptd.log"
)

// BaseDir returns ~/.rapt, or $RAPT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("RAPT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rapt")
}

func sessionsDir() string {
	return filepath.Join(BaseDir(), "sessions")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(sessionsDir(), name)
}

// SocketPath returns the control socket of a session's daemon.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), socketFile)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), lockFile)
}

// DBPath returns the session's cache database.
func DBPath(name string) string {
	return filepath.Join(Dir(name), dbFile)
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path for a session.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), logFile)
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with 0700 permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Info describes a session found on disk.
type Info struct {
	Name  string
	Dir   string
	HasDB bool
}

// List returns the sessions under BaseDir sorted by name. Directories whose
// names are not valid session names are skipped.
func List() ([]Info, error) {
	entries, err := os.ReadDir(sessionsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		info := Info{Name: e.Name(), Dir: Dir(e.Name())}
		if _, err := os.Stat(DBPath(e.Name())); err == nil {
			info.HasDB = true
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
