package wordpress

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/njoerd114/pressrelay/internal/model"
)

// XML-RPC method names.
const (
	methodGetPageList   = "wp.getPageList"
	methodGetPage       = "wp.getPage"
	methodGetPages      = "wp.getPages"
	methodNewPage       = "wp.newPage"
	methodEditPage      = "wp.editPage"
	methodDeletePage    = "wp.deletePage"
	methodGetPosts      = "wp.getPosts"
	methodGetPost       = "wp.getPost"
	methodGetAuthors    = "wp.getAuthors"
	methodGetCategories = "wp.getCategories"
	methodGetTags       = "wp.getTags"
)

// Listing keys. wp.getPageList uses different names than wp.getPage.
const (
	listKeyTitle    = "page_title"
	listKeyParentID = "page_parent_id"
	listKeyStatus   = "post_status"
)

// asStruct asserts that an XML-RPC value is a struct.
func asStruct(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected struct, got %T", v)
	}
	return m, nil
}

// asStructs asserts that an XML-RPC value is an array of structs.
func asStructs(v any) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]map[string]any, 0, len(arr))
	for i, el := range arr {
		m, err := asStruct(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// toResource converts a wp.getPage struct into a RemoteResource. The struct
// itself becomes the attribute map so that every server field is carried
// through an edit.
func toResource(raw map[string]any) (*model.RemoteResource, error) {
	id, err := requiredID(raw, model.KeyPageID)
	if err != nil {
		return nil, err
	}
	parentID, err := cast.ToIntE(raw[model.KeyParentID])
	if err != nil {
		return nil, fmt.Errorf("page %d: parsing %s: %w", id, model.KeyParentID, err)
	}
	return &model.RemoteResource{
		ID:         id,
		ParentID:   parentID,
		Slug:       cast.ToString(raw[model.KeySlug]),
		Status:     model.Status(cast.ToString(raw[model.KeyStatus])),
		Attributes: model.Attributes(raw),
	}, nil
}

// toSummary converts one wp.getPageList entry.
func toSummary(raw map[string]any) (model.PageSummary, error) {
	id, err := requiredID(raw, model.KeyPageID)
	if err != nil {
		return model.PageSummary{}, err
	}
	status := cast.ToString(raw[listKeyStatus])
	if status == "" {
		status = cast.ToString(raw[model.KeyStatus])
	}
	return model.PageSummary{
		ID:       id,
		ParentID: cast.ToInt(raw[listKeyParentID]),
		Title:    cast.ToString(raw[listKeyTitle]),
		Status:   model.Status(status),
	}, nil
}

// requiredID reads a positive integer id that may arrive as an XML-RPC
// int or string.
func requiredID(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	id, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %v: %w", key, v, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid %s %d", key, id)
	}
	return id, nil
}

// contentStruct prepares attributes for the wire. XML-RPC has no nil, so
// nil values are dropped.
func contentStruct(attrs model.Attributes) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
