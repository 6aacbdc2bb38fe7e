package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// DotEnvPaths lists the optional env files consulted before reading the credential.
func DotEnvPaths() []string {
	paths := []string{".env"}
	if dir, err := configDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ".env"))
	}
	return paths
}

// LoadDotEnv loads the env files that exist without overriding variables already set.
// It returns the files that were loaded.
func LoadDotEnv(paths ...string) ([]string, error) {
	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat env file %q: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		existing = append(existing, path)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	return existing, nil
}

// Credential reads the API key from the variable named by api.key_env.
func Credential(cfg Config) string {
	return strings.TrimSpace(os.Getenv(cfg.API.KeyEnv))
}
