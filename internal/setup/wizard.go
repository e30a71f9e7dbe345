package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/njoerd114/pressrelay/internal/config"
)

// Verifier checks site credentials and returns the number of pages visible
// to the user.
type Verifier func(ctx context.Context, siteURL, user, password string) (int, error)

const (
	sourceManifest = iota
	sourceDirectory
)

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt *Prompter
	verify Verifier
	logger *slog.Logger
	w      io.Writer
}

// NewWizard creates a Wizard wired to the given I/O, credential check and
// logger.
func NewWizard(r io.Reader, w io.Writer, verify Verifier, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		verify: verify,
		logger: logger,
		w:      w,
	}
}

// Run executes the interactive setup wizard and writes the result to
// cfgPath. It walks the user through the site connection, the page source
// and sync options.
func (wiz *Wizard) Run(ctx context.Context, cfgPath string) error {
	fmt.Fprintf(wiz.w, "\nWelcome to pressrelay setup!\n")
	fmt.Fprintf(wiz.w, "This wizard writes %s.\n\n", cfgPath)

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: WordPress connection.
	fmt.Fprintf(wiz.w, "Step 1/3: WordPress Connection\n")

	siteURL := wiz.prompt.String("Site URL", "")
	user := wiz.prompt.String("User", "")
	password := wiz.prompt.Secret("Application password")

	fmt.Fprintf(wiz.w, "  Connecting to %s...", siteURL)
	n, err := wiz.verify(ctx, siteURL, user, password)
	if err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach WordPress: %w\n\n  Check the URL and credentials, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓ (%d pages)\n\n", n)

	// Step 2: Page source.
	fmt.Fprintf(wiz.w, "Step 2/3: Page Source\n")

	pages, err := wiz.pageSource()
	if err != nil {
		return err
	}

	// Step 3: Options and save.
	fmt.Fprintf(wiz.w, "Step 3/3: Options\n")

	cfg := &config.Config{
		URL:   siteURL,
		User:  user,
		Pages: pages,
	}
	cfg.Delay = wiz.prompt.Duration("Pause between page requests", 0, 0, time.Minute)

	if wiz.prompt.Confirm("Skip unchanged pages using a local fingerprint cache?", true) {
		cfg.CacheFile = wiz.prompt.String("Cache file", defaultCacheFile())
	}

	if wiz.prompt.Confirm("Store the password in the config file?", true) {
		cfg.Password = password
	} else {
		fmt.Fprintf(wiz.w, "  Set %s in the environment or a .env file before running.\n", config.EnvPassword)
	}
	fmt.Fprintf(wiz.w, "\n")

	if err := cfg.Write(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	wiz.logger.Debug("config written", "path", cfgPath)
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", cfgPath)

	fmt.Fprintf(wiz.w, "Setup complete!\n")
	fmt.Fprintf(wiz.w, "  Preview:  pressrelay sync --dry-run\n")
	fmt.Fprintf(wiz.w, "  Sync:     pressrelay sync\n")
	fmt.Fprintf(wiz.w, "  Watch:    pressrelay sync --watch\n\n")
	return nil
}

// pageSource asks where desired pages live.
func (wiz *Wizard) pageSource() (*config.PagesConfig, error) {
	kind, err := wiz.prompt.Select("Where are your pages defined", []string{
		"A YAML manifest (path: attributes)",
		"A directory of HTML and markdown files",
	})
	if err != nil {
		return nil, fmt.Errorf("selecting page source: %w", err)
	}

	pages := &config.PagesConfig{}
	switch kind {
	case sourceManifest:
		pages.Source = wiz.prompt.String("Manifest file", "pages.yaml")
	case sourceDirectory:
		pages.Source = wiz.prompt.String("Pages directory", "site")
	}
	if abs, err := filepath.Abs(pages.Source); err == nil {
		pages.Source = abs
	}
	if _, err := os.Stat(pages.Source); err != nil {
		fmt.Fprintf(wiz.w, "  ⚠ %s does not exist yet\n", pages.Source)
	}
	pages.Sanitize = wiz.prompt.Confirm("Strip unsafe HTML from page bodies?", false)
	fmt.Fprintf(wiz.w, "\n")
	return pages, nil
}

func defaultCacheFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "pressrelay.cache"
	}
	return filepath.Join(dir, "pressrelay", "pages.cache")
}
