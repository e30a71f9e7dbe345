package sync

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/njoerd114/pressrelay/internal/model"
)

// Options configures a [Synchronizer].
type Options struct {
	// Cache, when set, serves page snapshots and drops desired pages whose
	// fingerprint already matches the remote page.
	Cache FingerprintCache

	// Delay is the pause between processed pages.
	Delay time.Duration

	// DryRun computes the change records without creating or editing
	// anything. Would-be creates report id 0.
	DryRun bool
}

// Report is the outcome of one synchronizer run.
type Report struct {
	// Changes holds one record per processed page, in processing order.
	Changes []model.ChangeRecord

	// Skipped counts desired pages dropped as unchanged by the cache.
	Skipped int

	// Remote counts the remote pages indexed before processing.
	Remote int
}

// Created returns the number of created pages.
func (r Report) Created() int { return r.count(model.ActionCreated) }

// Edited returns the number of edited pages.
func (r Report) Edited() int { return r.count(model.ActionEdited) }

func (r Report) count(a model.Action) int {
	n := 0
	for _, c := range r.Changes {
		if c.Action == a {
			n++
		}
	}
	return n
}

// Synchronizer applies a desired page set to the remote site. It is
// stateless between calls and issues every remote call sequentially.
type Synchronizer struct {
	client ResourceClient
	opts   Options
	log    *slog.Logger
}

// NewSynchronizer creates a Synchronizer wired to the given client.
func NewSynchronizer(client ResourceClient, opts Options, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{client: client, opts: opts, log: logger}
}

// DryRun reports whether the synchronizer skips remote writes.
func (s *Synchronizer) DryRun() bool { return s.opts.DryRun }

// Synchronize applies desired and returns the change records in processing
// order. On failure the records of pages already applied are returned along
// with the error; nothing is rolled back.
func (s *Synchronizer) Synchronize(ctx context.Context, desired map[string]model.DesiredPage) ([]model.ChangeRecord, error) {
	report, err := s.Run(ctx, desired)
	return report.Changes, err
}

// Run is [Synchronizer.Synchronize] with the full run report.
func (s *Synchronizer) Run(ctx context.Context, desired map[string]model.DesiredPage) (Report, error) {
	var report Report

	if err := validateDesired(desired); err != nil {
		return report, err
	}

	// 1. Index the remote tree, trashed pages included.
	existing, err := s.Existing(ctx)
	if err != nil {
		return report, err
	}
	report.Remote = len(existing)

	// 2. Drop pages the cache proves unchanged.
	if s.opts.Cache != nil {
		before := len(desired)
		desired = s.opts.Cache.Diff(desired, existing)
		report.Skipped = before - len(desired)
		if report.Skipped > 0 {
			s.log.Info("skipped unchanged pages", "count", report.Skipped)
		}
	}

	// 3. Ancestors sort before their descendants.
	pending := make([]model.DesiredPage, 0, len(desired))
	for key, page := range desired {
		page.Path = model.NormalizePath(key)
		pending = append(pending, page)
	}
	slices.SortFunc(pending, func(a, b model.DesiredPage) int { return cmp.Compare(a.Path, b.Path) })

	// 4. Apply in order, growing the working index as pages are created.
	working := existing.Clone()
	for i, page := range pending {
		rec, err := s.apply(ctx, working, page)
		if err != nil {
			return report, err
		}
		report.Changes = append(report.Changes, rec)

		if i < len(pending)-1 {
			if err := s.pause(ctx); err != nil {
				return report, err
			}
		}
	}

	s.log.Info("synchronize complete",
		"created", report.Created(),
		"edited", report.Edited(),
		"skipped", report.Skipped,
		"dry_run", s.opts.DryRun,
	)
	return report, nil
}

// Existing lists every remote page, fetches its detail and returns the
// resolved path index.
func (s *Synchronizer) Existing(ctx context.Context) (model.PathIndex, error) {
	summaries, err := s.client.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote pages: %w", err)
	}
	resources := make([]*model.RemoteResource, 0, len(summaries))
	for _, sum := range summaries {
		res, err := s.fetch(ctx, sum.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching remote page %d: %w", sum.ID, err)
		}
		resources = append(resources, res)
	}
	index, err := ResolvePaths(resources)
	if err != nil {
		return nil, fmt.Errorf("resolving remote paths: %w", err)
	}
	s.log.Debug("remote pages indexed", "pages", len(index))
	return index, nil
}

// apply creates or edits a single page. page.Path is already normalised.
func (s *Synchronizer) apply(ctx context.Context, working model.PathIndex, page model.DesiredPage) (model.ChangeRecord, error) {
	segments, err := model.SplitPath(page.Path)
	if err != nil {
		return model.ChangeRecord{}, err
	}
	slug := segments[len(segments)-1]
	s.log.Debug("processing page", "path", page.Path)

	attrs := page.Attributes.Clone()
	attrs[model.KeySlug] = slug

	parentID := 0
	if parentPath, ok := model.ParentPath(page.Path); ok {
		parent, found := working[parentPath]
		if !found {
			return model.ChangeRecord{}, &UnresolvedParentError{Path: page.Path, Parent: parentPath}
		}
		parentID = parent.ID
		attrs[model.KeyParentID] = parentID
	}

	current, exists := working[page.Path]
	if !exists {
		id := 0
		if !s.opts.DryRun {
			id, err = s.client.NewPage(ctx, attrs)
			if err != nil {
				return model.ChangeRecord{}, fmt.Errorf("creating page %q: %w", page.Path, err)
			}
		}
		working[page.Path] = model.NewStub(id, parentID, slug)
		s.log.Info("page created", "path", page.Path, "id", id, "dry_run", s.opts.DryRun)
		return model.ChangeRecord{Path: page.Path, ID: id, Action: model.ActionCreated}, nil
	}

	if !s.opts.DryRun {
		if err := s.edit(ctx, current.ID, attrs); err != nil {
			return model.ChangeRecord{}, fmt.Errorf("editing page %q: %w", page.Path, err)
		}
	}
	s.log.Info("page edited", "path", page.Path, "id", current.ID, "dry_run", s.opts.DryRun)
	return model.ChangeRecord{Path: page.Path, ID: current.ID, Action: model.ActionEdited}, nil
}

// edit merges attrs over the current snapshot and replaces the page with the
// result. The remote call replaces every attribute, so keys are never left
// out.
func (s *Synchronizer) edit(ctx context.Context, id int, attrs model.Attributes) error {
	snapshot, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.client.EditPage(ctx, id, snapshot.Attributes.Merge(attrs))
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("edit not acknowledged by server", "id", id)
	}
	if s.opts.Cache != nil {
		if _, err := s.opts.Cache.Refresh(ctx, id); err != nil {
			return fmt.Errorf("refreshing cache: %w", err)
		}
	}
	return nil
}

func (s *Synchronizer) fetch(ctx context.Context, id int) (*model.RemoteResource, error) {
	if s.opts.Cache != nil {
		return s.opts.Cache.Get(ctx, id)
	}
	return s.client.GetPage(ctx, id)
}

func (s *Synchronizer) pause(ctx context.Context) error {
	if s.opts.Delay <= 0 || s.opts.DryRun {
		return nil
	}
	t := time.NewTimer(s.opts.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// validateDesired rejects empty paths, empty segments and keys that
// normalise to the same path before any remote call is made.
func validateDesired(desired map[string]model.DesiredPage) error {
	keys := make([]string, 0, len(desired))
	for k := range desired {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	seen := make(map[string]string, len(keys))
	for _, k := range keys {
		if _, err := model.SplitPath(k); err != nil {
			return err
		}
		norm := model.NormalizePath(k)
		if prev, ok := seen[norm]; ok {
			return fmt.Errorf("%w: %q and %q both name %q", ErrDuplicatePath, prev, k, norm)
		}
		seen[norm] = k
	}
	return nil
}
