package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	environmentPrefix        = "FEEDBACKCTL_"
	environmentKeyConfigPath = environmentPrefix + "CONFIG"
	configKeyServerURL       = "server_url"
	configKeyToken           = "token"
	configKeyTimeout         = "timeout"
	defaultServerURL         = "http://localhost:8080"
	defaultTimeout           = 15 * time.Second
	configFilePermissions    = 0o600
	configDirPermissions     = 0o700
)

var ErrMissingServerURL = errors.New("server_url must not be empty")

// CLIConfig is the persisted feedbackctl configuration.
type CLIConfig struct {
	ServerURL string        `koanf:"server_url"`
	Token     string        `koanf:"token"`
	Timeout   time.Duration `koanf:"timeout"`
}

func defaultCLIConfig() CLIConfig {
	return CLIConfig{ServerURL: defaultServerURL, Timeout: defaultTimeout}
}

// resolveConfigPath prefers the flag, then FEEDBACKCTL_CONFIG.
func resolveConfigPath(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(os.Getenv(environmentKeyConfigPath))
}

// loadCLIConfig layers defaults, the yaml file when it exists, then
// FEEDBACKCTL_* environment variables.
func loadCLIConfig(path string) (CLIConfig, error) {
	loader := koanf.New(".")

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if loadErr := loader.Load(file.Provider(path), yaml.Parser()); loadErr != nil {
				return CLIConfig{}, fmt.Errorf("load %s: %w", path, loadErr)
			}
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return CLIConfig{}, fmt.Errorf("stat %s: %w", path, statErr)
		}
	}

	environmentProvider := env.Provider(environmentPrefix, ".", func(key string) string {
		return strings.TrimPrefix(strings.ToLower(key), strings.ToLower(environmentPrefix))
	})
	if loadErr := loader.Load(environmentProvider, nil); loadErr != nil {
		return CLIConfig{}, fmt.Errorf("load environment: %w", loadErr)
	}

	configuration := defaultCLIConfig()
	if unmarshalErr := loader.UnmarshalWithConf("", &configuration, koanf.UnmarshalConf{Tag: "koanf"}); unmarshalErr != nil {
		return CLIConfig{}, fmt.Errorf("decode configuration: %w", unmarshalErr)
	}
	configuration.ServerURL = strings.TrimRight(strings.TrimSpace(configuration.ServerURL), "/")
	if configuration.ServerURL == "" {
		return CLIConfig{}, ErrMissingServerURL
	}
	if configuration.Timeout <= 0 {
		configuration.Timeout = defaultTimeout
	}
	return configuration, nil
}

// saveToken writes the token into the yaml file, keeping its other keys.
func saveToken(path string, serverURL string, token string) error {
	loader := koanf.New(".")
	if _, statErr := os.Stat(path); statErr == nil {
		if loadErr := loader.Load(file.Provider(path), yaml.Parser()); loadErr != nil {
			return fmt.Errorf("load %s: %w", path, loadErr)
		}
	}
	if setErr := loader.Set(configKeyServerURL, serverURL); setErr != nil {
		return setErr
	}
	if setErr := loader.Set(configKeyToken, token); setErr != nil {
		return setErr
	}
	if !loader.Exists(configKeyTimeout) {
		if setErr := loader.Set(configKeyTimeout, defaultTimeout.String()); setErr != nil {
			return setErr
		}
	}

	encoded, marshalErr := loader.Marshal(yaml.Parser())
	if marshalErr != nil {
		return fmt.Errorf("encode configuration: %w", marshalErr)
	}
	if mkdirErr := os.MkdirAll(filepath.Dir(path), configDirPermissions); mkdirErr != nil {
		return fmt.Errorf("create config directory: %w", mkdirErr)
	}
	if writeErr := os.WriteFile(path, encoded, configFilePermissions); writeErr != nil {
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	return nil
}
