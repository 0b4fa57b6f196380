// Package config loads and validates the application configuration,
// following the reference server's load→expand→merge→validate pipeline:
// read YAML, expand environment variables, deep-merge over the built-in
// defaults with mergo, then validate with struct tags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads "app.yaml" from configDir, merges it over Defaults(), and
// validates the result. A missing file is not an error: the built-in
// defaults are used as-is, matching the reference loader's tolerance for
// an absent optional file.
func Load(configDir string) (*Config, error) {
	cfg := Defaults()

	path := filepath.Join(configDir, "app.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, NewLoadError(path, err)
	}

	raw = ExpandEnv(raw)

	var override Config
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(cfg, &override, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}

// CookieFor resolves the marketplace session cookie for an account id from
// its configured environment variable. The default account (empty id) uses
// Transport.CookieEnv.
func (c *Config) CookieFor(accountID string) (string, bool) {
	envVar := c.Transport.CookieEnv
	for _, acct := range c.Accounts {
		if acct.ID == accountID {
			envVar = acct.CookieEnv
			break
		}
	}
	val := os.Getenv(envVar)
	return val, val != ""
}
