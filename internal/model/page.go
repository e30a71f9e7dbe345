// Package model defines the page and resource types shared by the
// synchronizer, the fingerprint cache and the WordPress adapter.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"

	"github.com/spf13/cast"
)

// Recognised attribute keys. Any other key is passed through to the remote
// service untouched.
const (
	// KeyTitle is the page title.
	KeyTitle = "title"
	// KeyDescription is the page body. It is the fingerprint attribute.
	KeyDescription = "description"
	// KeySlug is the single path segment naming the page under its parent.
	KeySlug = "wp_slug"
	// KeyParentID is the parent page id; 0 means root.
	KeyParentID = "wp_page_parent_id"
	// KeyPageID is the server-assigned page id.
	KeyPageID = "page_id"
	// KeyStatus is the page status ("publish", "draft", "trash", ...).
	KeyStatus = "page_status"
	// KeyAllowComments is the comment permission flag. Defaults to 0 on create.
	KeyAllowComments = "mt_allow_comments"
	// KeyAllowPings is the ping permission flag. Defaults to 0 on create.
	KeyAllowPings = "mt_allow_pings"
)

// Attributes is the attribute map of a page as sent to and received from the
// remote service.
type Attributes map[string]any

// Clone returns a shallow copy. A nil map clones to an empty one.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	maps.Copy(out, a)
	return out
}

// Merge returns a copy of a with every key of over written on top of it.
// Keys missing from over keep their value from a.
func (a Attributes) Merge(over Attributes) Attributes {
	out := a.Clone()
	maps.Copy(out, over)
	return out
}

// WithCreateDefaults returns a copy with the comment and ping flags disabled
// unless the caller set them explicitly.
func (a Attributes) WithCreateDefaults() Attributes {
	out := a.Clone()
	if _, ok := out[KeyAllowComments]; !ok {
		out[KeyAllowComments] = 0
	}
	if _, ok := out[KeyAllowPings]; !ok {
		out[KeyAllowPings] = 0
	}
	return out
}

// Title returns the title attribute as a string.
func (a Attributes) Title() string { return cast.ToString(a[KeyTitle]) }

// Description returns the body attribute as a string.
func (a Attributes) Description() string { return cast.ToString(a[KeyDescription]) }

// Fingerprint returns a SHA-256 hex digest of the description attribute.
// Two pages with the same fingerprint are considered unchanged.
func (a Attributes) Fingerprint() string {
	sum := sha256.Sum256([]byte(a.Description()))
	return hex.EncodeToString(sum[:])
}

// DesiredPage is the caller's intent for a single page.
type DesiredPage struct {
	// Path is the slash-separated page path; leading and trailing slashes
	// are allowed.
	Path string `json:"path" yaml:"path"`

	// Attributes are applied on create, or merged over the current remote
	// attributes on edit.
	Attributes Attributes `json:"attributes" yaml:"attributes"`
}

// Status is the publication state of a remote page.
type Status string

const (
	StatusPublish Status = "publish"
	StatusDraft   Status = "draft"
	StatusPrivate Status = "private"
	StatusTrash   Status = "trash"
)

// RemoteResource is a snapshot of one page held by the remote service.
type RemoteResource struct {
	ID       int
	ParentID int
	Slug     string
	Status   Status

	// Attributes is the full attribute set as last fetched. It is nil for
	// stub entries inserted right after a create.
	Attributes Attributes
}

// NewStub returns the minimal {id, parent id} entry used for pages created
// during the current run.
func NewStub(id, parentID int, slug string) *RemoteResource {
	return &RemoteResource{ID: id, ParentID: parentID, Slug: slug}
}

// IsStub reports whether r carries no fetched attributes.
func (r *RemoteResource) IsStub() bool { return r.Attributes == nil }

// IsTrashed reports whether r sits in the trash.
func (r *RemoteResource) IsTrashed() bool { return r.Status == StatusTrash }

// Fingerprint returns the fingerprint of r's attributes.
func (r *RemoteResource) Fingerprint() string { return r.Attributes.Fingerprint() }

// PageSummary is one entry of the remote page listing. The listing includes
// trashed pages.
type PageSummary struct {
	ID       int    `json:"id"`
	ParentID int    `json:"parent_id"`
	Title    string `json:"title"`
	Status   Status `json:"status"`
}

// PathIndex maps a canonical page path to the resource at that path.
type PathIndex map[string]*RemoteResource

// Clone returns a shallow copy of the index. Resources are shared.
func (idx PathIndex) Clone() PathIndex {
	out := make(PathIndex, len(idx))
	maps.Copy(out, idx)
	return out
}

// Action is what the synchronizer did with a desired page.
type Action string

const (
	ActionCreated Action = "created"
	ActionEdited  Action = "edited"
)

// ChangeRecord reports one applied change.
type ChangeRecord struct {
	Path   string `json:"path"`
	ID     int    `json:"id"`
	Action Action `json:"action"`
}
