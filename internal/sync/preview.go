package sync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/njoerd114/pressrelay/internal/model"
)

// Preview shows what a synchronizer run would change and asks for
// confirmation before anything is written.
type Preview struct {
	sync   *Synchronizer
	log    *slog.Logger
	reader io.Reader // for confirmation prompt (os.Stdin in production)
	writer io.Writer // for summary output (os.Stdout in production)
}

// NewPreview creates a Preview for s. reader and writer control the
// confirmation prompt I/O.
func NewPreview(s *Synchronizer, logger *slog.Logger, reader io.Reader, writer io.Writer) *Preview {
	dry := *s
	dry.opts.DryRun = true
	return &Preview{
		sync:   &dry,
		log:    logger,
		reader: reader,
		writer: writer,
	}
}

// Run computes the plan for desired, prints it and asks for confirmation.
// It returns false without prompting when there is nothing to do.
func (p *Preview) Run(ctx context.Context, desired map[string]model.DesiredPage) (bool, error) {
	report, err := p.sync.Run(ctx, desired)
	if err != nil {
		return false, fmt.Errorf("planning sync: %w", err)
	}

	p.printSummary(report)

	if len(report.Changes) == 0 {
		p.log.Info("nothing to synchronize")
		return false, nil
	}
	if !p.confirm() {
		p.log.Info("sync cancelled by user")
		return false, nil
	}
	return true, nil
}

// printSummary writes a human-readable summary of the plan.
func (p *Preview) printSummary(report Report) {
	_, _ = fmt.Fprintf(p.writer, "\n--- Sync Plan ---\n\n")
	_, _ = fmt.Fprintf(p.writer, "Remote pages indexed: %d\n", report.Remote)

	if n := report.Created(); n > 0 {
		_, _ = fmt.Fprintf(p.writer, "  To create: %d\n", n)
		for _, c := range report.Changes {
			if c.Action == model.ActionCreated {
				_, _ = fmt.Fprintf(p.writer, "    + %s\n", c.Path)
			}
		}
	}
	if n := report.Edited(); n > 0 {
		_, _ = fmt.Fprintf(p.writer, "  To edit: %d\n", n)
		for _, c := range report.Changes {
			if c.Action == model.ActionEdited {
				_, _ = fmt.Fprintf(p.writer, "    ~ %s (id %d)\n", c.Path, c.ID)
			}
		}
	}
	if report.Skipped > 0 {
		_, _ = fmt.Fprintf(p.writer, "  Unchanged: %d\n", report.Skipped)
	}
	_, _ = fmt.Fprintln(p.writer)
	_, _ = fmt.Fprintf(p.writer, "Total: %d to create, %d to edit, %d unchanged\n",
		report.Created(), report.Edited(), report.Skipped)
}

// confirm reads a y/n response from the reader.
func (p *Preview) confirm() bool {
	_, _ = fmt.Fprintf(p.writer, "Proceed with sync? [y/N] ")
	scanner := bufio.NewScanner(p.reader)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
	return false
}
