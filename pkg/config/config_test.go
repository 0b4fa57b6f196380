package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Defaults().Runtime, cfg.Runtime)
	assert.Equal(t, Defaults().Transport.Mode, cfg.Transport.Mode)
}

func TestLoadMergesOverrideOverDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(`
transport:
  mode: dom
worker:
  max_sends_per_second: 2.5
`), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dom", cfg.Transport.Mode)
	assert.Equal(t, 2.5, cfg.Worker.MaxSendsPerSecond)
	assert.Equal(t, Defaults().Quote.Mode, cfg.Quote.Mode, "fields not overridden must keep their default")
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_APP_KEY", "secret-app-key")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(`
transport:
  app_key: "${TEST_APP_KEY}"
`), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "secret-app-key", cfg.Transport.AppKey)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte("transport: [unterminated"), 0o600))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoadRejectsValuesFailingValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(`
transport:
  mode: carrier-pigeon
`), 0o600))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCookieForDefaultAccount(t *testing.T) {
	t.Setenv("TEST_DEFAULT_COOKIE", "cookie-value")
	cfg := Defaults()
	cfg.Transport.CookieEnv = "TEST_DEFAULT_COOKIE"

	val, ok := cfg.CookieFor("")
	assert.True(t, ok)
	assert.Equal(t, "cookie-value", val)
}

func TestCookieForNamedAccount(t *testing.T) {
	t.Setenv("TEST_ACCT_COOKIE", "acct-cookie")
	cfg := Defaults()
	cfg.Accounts = []AccountConfig{{ID: "acct-1", CookieEnv: "TEST_ACCT_COOKIE"}}

	val, ok := cfg.CookieFor("acct-1")
	assert.True(t, ok)
	assert.Equal(t, "acct-cookie", val)
}

func TestCookieForUnsetEnvVar(t *testing.T) {
	cfg := Defaults()
	cfg.Transport.CookieEnv = "TEST_COOKIE_NOT_SET_XYZ"
	_ = os.Unsetenv("TEST_COOKIE_NOT_SET_XYZ")

	val, ok := cfg.CookieFor("")
	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestDefaultsPassValidation(t *testing.T) {
	cfg := Defaults()
	_, err := finish(cfg)
	assert.NoError(t, err, "the built-in defaults must always be a valid configuration")
}
