package setup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njoerd114/pressrelay/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type verifyCall struct {
	url, user, password string
}

func fakeVerifier(pages int, err error, calls *[]verifyCall) Verifier {
	return func(_ context.Context, siteURL, user, password string) (int, error) {
		*calls = append(*calls, verifyCall{siteURL, user, password})
		return pages, err
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvURL, "")
	t.Setenv(config.EnvUser, "")
	t.Setenv(config.EnvPassword, "")
}

func input(lines ...string) io.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestWizardWritesLoadableConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	site := filepath.Join(dir, "site")
	require.NoError(t, os.Mkdir(site, 0o755))
	cfgPath := filepath.Join(dir, "config.yaml")
	cacheFile := filepath.Join(dir, "pages.cache")

	var calls []verifyCall
	var out bytes.Buffer
	wiz := NewWizard(input(
		"https://example.com",
		"admin",
		"s3cret",
		"2",
		site,
		"y",
		"250ms",
		"",
		cacheFile,
		"",
	), &out, fakeVerifier(7, nil, &calls), testLogger())

	require.NoError(t, wiz.Run(context.Background(), cfgPath))

	require.Len(t, calls, 1)
	assert.Equal(t, verifyCall{"https://example.com", "admin", "s3cret"}, calls[0])
	assert.Contains(t, out.String(), "(7 pages)")
	assert.Contains(t, out.String(), "Setup complete!")

	info, err := os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cfg.URL)
	assert.Equal(t, "admin", cfg.User)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.Equal(t, cacheFile, cfg.CacheFile)
	require.NotNil(t, cfg.Pages)
	assert.Equal(t, site, cfg.Pages.Source)
	assert.True(t, cfg.Pages.Sanitize)
}

func TestWizardWithoutStoredPassword(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	var calls []verifyCall
	var out bytes.Buffer
	wiz := NewWizard(input(
		"https://example.com",
		"admin",
		"s3cret",
		"1",
		filepath.Join(dir, "pages.yaml"),
		"",
		"",
		"n",
		"n",
	), &out, fakeVerifier(0, nil, &calls), testLogger())

	require.NoError(t, wiz.Run(context.Background(), cfgPath))
	assert.Contains(t, out.String(), config.EnvPassword)
	assert.Contains(t, out.String(), "does not exist yet")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")
	assert.NotContains(t, string(data), "cache_file")

	t.Setenv(config.EnvPassword, "from-env")
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, filepath.Join(dir, "pages.yaml"), cfg.Pages.Source)
	assert.False(t, cfg.Pages.Sanitize)
}

func TestWizardKeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("url: https://old.example\n"), 0o600))

	var calls []verifyCall
	var out bytes.Buffer
	wiz := NewWizard(input("n"), &out, fakeVerifier(1, nil, &calls), testLogger())

	require.NoError(t, wiz.Run(context.Background(), cfgPath))
	assert.Empty(t, calls)
	assert.Contains(t, out.String(), "Keeping existing config.")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "url: https://old.example\n", string(data))
}

func TestWizardVerifyFailure(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	var calls []verifyCall
	var out bytes.Buffer
	wiz := NewWizard(input("https://example.com", "admin", "wrong"),
		&out, fakeVerifier(0, errors.New("fault 403: incorrect username or password"), &calls), testLogger())

	err := wiz.Run(context.Background(), cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach WordPress")
	assert.Contains(t, err.Error(), "incorrect username or password")

	_, statErr := os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(statErr), "no config must be written")
}
