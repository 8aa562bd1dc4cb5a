package session

import (
	"os"

	"github.com/raptchat/rapt/internal/config"
)

// DefaultSessionName is used when nothing else names a session.
const DefaultSessionName = "main"

// EnvSession names the environment variable that selects a session.
const EnvSession = "RAPT_SESSION"

// Resolve picks the active session name and validates it. The first
// non-empty source wins: flagOverride, $RAPT_SESSION, default_session in the
// config file at configPath (the shared config when empty), then "main".
func Resolve(flagOverride, configPath string) (string, error) {
	name := pick(flagOverride, configPath)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func pick(flagOverride, configPath string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if name := os.Getenv(EnvSession); name != "" {
		return name
	}
	if configPath == "" {
		configPath = ConfigPath()
	}
	if cfg, err := config.Load(configPath); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
