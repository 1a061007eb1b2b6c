package config

import "os"

// Environment variable names.
const (
	envConfigPath = "YPSYNC_CONFIG"
	envDBPath     = "YPSYNC_DB"
)

// EnvOverrides holds values read from the environment. Empty string means
// not set.
type EnvOverrides struct {
	ConfigPath string
	DBPath     string
}

// ReadEnv captures the recognized environment variables.
func ReadEnv() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(envConfigPath),
		DBPath:     os.Getenv(envDBPath),
	}
}
