package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// Load reads .env (if present), the file named by DOMAINSYNC_CONFIG and the
// environment, then validates the result. The returned error is a
// *ValidationError listing every problem found.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ValidationError{Errors: []string{".env: " + err.Error()}}
	}
	return LoadFrom(GetConfigFilePath())
}

// LoadFrom loads configuration using path as the config file. An empty path
// skips the file layer.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	var errs []string

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, &ValidationError{Errors: []string{"config file: " + err.Error()}}
		}
		errs = append(errs, fileCfg.apply(cfg)...)
		slog.Info("loaded configuration from file", slog.String("path", path))
	}

	errs = append(errs, applyEnv(cfg)...)
	cfg.DNS.resolveProvider()
	errs = append(errs, validateConfig(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}
