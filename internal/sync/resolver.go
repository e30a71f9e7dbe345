package sync

import (
	"cmp"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/njoerd114/pressrelay/internal/model"
)

// ResolvePaths builds the canonical path of every resource from its parent
// chain. A root page's path is its slug; any other page's path is its
// parent's path, a slash and its slug.
//
// Every parent referenced must be present in resources, so the listing has
// to include trashed pages. When two resources resolve to the same path the
// active one is kept over a trashed one, and otherwise the higher id wins.
func ResolvePaths(resources []*model.RemoteResource) (model.PathIndex, error) {
	byID := make(map[int]*model.RemoteResource, len(resources))
	for _, r := range resources {
		byID[r.ID] = r
	}

	ordered := slices.Clone(resources)
	slices.SortFunc(ordered, func(a, b *model.RemoteResource) int { return cmp.Compare(a.ID, b.ID) })

	memo := make(map[int]string, len(resources))
	index := make(model.PathIndex, len(resources))
	for _, r := range ordered {
		path, err := resolvePath(r, byID, memo)
		if err != nil {
			return nil, err
		}
		if prev, ok := index[path]; ok && !replaces(r, prev) {
			continue
		}
		index[path] = r
	}
	return index, nil
}

// replaces reports whether next should take over a path already held by
// prev. Resources arrive in ascending id order.
func replaces(next, prev *model.RemoteResource) bool {
	if prev.IsTrashed() != next.IsTrashed() {
		return prev.IsTrashed()
	}
	return true
}

// resolvePath walks upward from r until it reaches a root page or an
// ancestor whose path is already memoised, then fills in the memo on the way
// back down.
func resolvePath(r *model.RemoteResource, byID map[int]*model.RemoteResource, memo map[int]string) (string, error) {
	var chain []*model.RemoteResource
	seen := mapset.NewThreadUnsafeSet[int]()
	base := ""
	for cur := r; ; {
		if p, ok := memo[cur.ID]; ok {
			base = p
			break
		}
		if !seen.Add(cur.ID) {
			return "", fmt.Errorf("page %d: %w through page %d", r.ID, ErrParentCycle, cur.ID)
		}
		chain = append(chain, cur)
		if cur.ParentID == 0 {
			break
		}
		parent, ok := byID[cur.ParentID]
		if !ok {
			return "", &MissingParentError{ID: cur.ID, ParentID: cur.ParentID}
		}
		cur = parent
	}
	for i := len(chain) - 1; i >= 0; i-- {
		base = model.JoinPath(base, chain[i].Slug)
		memo[chain[i].ID] = base
	}
	return base, nil
}
