// Package sync reconciles a desired set of hierarchical pages against the
// flat, parent-linked page collection of a WordPress site.
//
// The package contains three main components:
//
//   - [ResolvePaths] rebuilds canonical page paths from parent pointers.
//   - [Synchronizer] creates or edits pages in parent-before-child order.
//   - [Engine] wraps synchronizer runs with telemetry, run history and an
//     optional watch loop.
package sync

import (
	"context"

	"github.com/njoerd114/pressrelay/internal/model"
	"github.com/njoerd114/pressrelay/internal/state"
)

// ResourceClient provides access to the remote page collection.
// Implemented by [wordpress.Adapter].
type ResourceClient interface {
	ListPages(ctx context.Context) ([]model.PageSummary, error)
	GetPage(ctx context.Context, id int) (*model.RemoteResource, error)
	NewPage(ctx context.Context, attrs model.Attributes) (int, error)
	EditPage(ctx context.Context, id int, attrs model.Attributes) (bool, error)
	DeletePage(ctx context.Context, id int) (bool, error)
}

// FingerprintCache serves page snapshots and filters out unchanged desired
// pages. Implemented by [cache.Cache].
type FingerprintCache interface {
	Get(ctx context.Context, id int) (*model.RemoteResource, error)
	Refresh(ctx context.Context, id int) (*model.RemoteResource, error)
	Diff(desired map[string]model.DesiredPage, existing model.PathIndex) map[string]model.DesiredPage
}

// Flusher persists buffered state. A [FingerprintCache] that also implements
// it is flushed after every watch run.
type Flusher interface {
	Flush() error
}

// DesiredSource produces the desired page set for one run.
// Implemented by [pages.Loader].
type DesiredSource interface {
	Load() (map[string]model.DesiredPage, error)
}

// HistoryStore records finished runs. Implemented by [state.Store].
type HistoryStore interface {
	SaveRun(ctx context.Context, run *state.Run) error
}
