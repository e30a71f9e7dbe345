package wordpress

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/rpc"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/spf13/cast"

	"github.com/njoerd114/pressrelay/internal/model"
)

// Caller issues a single XML-RPC method call. Defining it as an interface
// allows a fake endpoint to be injected in tests.
type Caller interface {
	Call(ctx context.Context, method string, args []any, reply any) error
	Close() error
}

// xmlrpcCaller adapts [xmlrpc.Client] to [Caller]. The underlying client is
// not context-aware, so a cancelled call is abandoned rather than aborted.
type xmlrpcCaller struct {
	client *xmlrpc.Client
}

func (c *xmlrpcCaller) Call(ctx context.Context, method string, args []any, reply any) error {
	call := c.client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-call.Done:
		return done.Error
	}
}

func (c *xmlrpcCaller) Close() error {
	return c.client.Close()
}

// Options tunes an [Adapter].
type Options struct {
	// BlogID is sent as the first parameter of every call. Single-site
	// installs ignore it.
	BlogID int

	// Delay is slept after every page or post detail fetch.
	Delay time.Duration

	// RetryAttempts bounds retries of read-only calls. Mutations are never
	// retried. Defaults to 3.
	RetryAttempts int

	// Timeout bounds each HTTP round trip. Defaults to 30s.
	Timeout time.Duration
}

// Adapter provides page operations on a WordPress site through XML-RPC.
// Create one with [NewAdapter] or [NewAdapterWithCaller].
type Adapter struct {
	rpc      Caller
	user     string
	password string
	opts     Options
	logger   *slog.Logger
}

// EndpointURL returns the XML-RPC endpoint for a site URL.
func EndpointURL(siteURL string) string {
	return strings.TrimRight(siteURL, "/") + "/xmlrpc.php"
}

// NewAdapter creates an Adapter talking to siteURL's xmlrpc.php.
func NewAdapter(siteURL, user, password string, opts Options, logger *slog.Logger) (*Adapter, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.Timeout}).DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
	}
	client, err := xmlrpc.NewClient(EndpointURL(siteURL), transport)
	if err != nil {
		return nil, fmt.Errorf("create XML-RPC client: %w", err)
	}
	return NewAdapterWithCaller(&xmlrpcCaller{client: client}, user, password, opts, logger), nil
}

// NewAdapterWithCaller creates an Adapter with a caller-supplied [Caller].
func NewAdapterWithCaller(c Caller, user, password string, opts Options, logger *slog.Logger) *Adapter {
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = defaultMaxAttempts
	}
	return &Adapter{rpc: c, user: user, password: password, opts: opts, logger: logger}
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.rpc.Close()
}

// read performs a read-only call with retry.
func (a *Adapter) read(ctx context.Context, method string, args []any) (any, error) {
	var reply any
	err := Retry(ctx, a.opts.RetryAttempts, func() error {
		reply = nil
		return classify(method, a.rpc.Call(ctx, method, args, &reply))
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// write performs a mutating call exactly once. A cancelled ctx stops the
// call from being sent; once sent, the call runs to completion regardless of
// ctx so the caller always learns the remote outcome.
func (a *Adapter) write(ctx context.Context, method string, args []any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var reply any
	if err := classify(method, a.rpc.Call(context.WithoutCancel(ctx), method, args, &reply)); err != nil {
		return nil, err
	}
	return reply, nil
}

// pause sleeps the configured delay, returning early if ctx is cancelled.
func (a *Adapter) pause(ctx context.Context) error {
	if a.opts.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(a.opts.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// --- Pages -------------------------------------------------------------------

// ListPages returns every page including trashed ones (wp.getPageList).
func (a *Adapter) ListPages(ctx context.Context) ([]model.PageSummary, error) {
	reply, err := a.read(ctx, methodGetPageList, []any{a.opts.BlogID, a.user, a.password})
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	raws, err := asStructs(reply)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	out := make([]model.PageSummary, 0, len(raws))
	for _, raw := range raws {
		s, err := toSummary(raw)
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// GetPage fetches the full detail of one page (wp.getPage).
func (a *Adapter) GetPage(ctx context.Context, id int) (*model.RemoteResource, error) {
	reply, err := a.read(ctx, methodGetPage, []any{a.opts.BlogID, id, a.user, a.password})
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", id, err)
	}
	raw, err := asStruct(reply)
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", id, err)
	}
	res, err := toResource(raw)
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", id, err)
	}
	if err := a.pause(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// GetPages returns up to max non-trashed pages with full detail (wp.getPages).
func (a *Adapter) GetPages(ctx context.Context, max int) ([]*model.RemoteResource, error) {
	reply, err := a.read(ctx, methodGetPages, []any{a.opts.BlogID, a.user, a.password, max})
	if err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}
	raws, err := asStructs(reply)
	if err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}
	out := make([]*model.RemoteResource, 0, len(raws))
	for _, raw := range raws {
		res, err := toResource(raw)
		if err != nil {
			return nil, fmt.Errorf("get pages: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}

// NewPage creates and publishes a page (wp.newPage) and returns its id.
// Comment and ping flags default to disabled. Cancelling ctx after the
// request is sent does not abandon it; the id is still returned.
func (a *Adapter) NewPage(ctx context.Context, attrs model.Attributes) (int, error) {
	content := contentStruct(attrs.WithCreateDefaults())
	const publish = true
	reply, err := a.write(ctx, methodNewPage, []any{a.opts.BlogID, a.user, a.password, content, publish})
	if err != nil {
		return 0, fmt.Errorf("new page %q: %w", attrs.Title(), err)
	}
	id, err := cast.ToIntE(reply)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("new page %q: unexpected id %v", attrs.Title(), reply)
	}
	a.logger.Debug("page created", "id", id, "title", attrs.Title())
	return id, nil
}

// EditPage replaces the full attribute set of a page (wp.editPage). Keys
// missing from attrs are cleared by the server; callers merge over the
// current snapshot first.
func (a *Adapter) EditPage(ctx context.Context, id int, attrs model.Attributes) (bool, error) {
	reply, err := a.write(ctx, methodEditPage, []any{a.opts.BlogID, id, a.user, a.password, contentStruct(attrs)})
	if err != nil {
		return false, fmt.Errorf("edit page %d: %w", id, err)
	}
	return cast.ToBool(reply), nil
}

// DeletePage moves a page to the trash, or removes it if already trashed
// (wp.deletePage).
func (a *Adapter) DeletePage(ctx context.Context, id int) (bool, error) {
	reply, err := a.write(ctx, methodDeletePage, []any{a.opts.BlogID, a.user, a.password, id})
	if err != nil {
		return false, fmt.Errorf("delete page %d: %w", id, err)
	}
	return cast.ToBool(reply), nil
}

// DeleteAll deletes every listed page and returns the ids it deleted. It
// stops at the first failure.
func (a *Adapter) DeleteAll(ctx context.Context) ([]int, error) {
	pages, err := a.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []int
	for _, p := range pages {
		a.logger.Info("deleting page", "id", p.ID, "title", p.Title, "status", p.Status)
		if _, err := a.DeletePage(ctx, p.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, p.ID)
	}
	return deleted, nil
}

// --- Catalogue (read-only) ---------------------------------------------------

// PostFilter narrows wp.getPosts. Zero fields are omitted.
type PostFilter struct {
	PostType   string
	PostStatus string
	Number     int
	Offset     int
}

func (f PostFilter) toStruct() map[string]any {
	m := map[string]any{}
	if f.PostType != "" {
		m["post_type"] = f.PostType
	}
	if f.PostStatus != "" {
		m["post_status"] = f.PostStatus
	}
	if f.Number > 0 {
		m["number"] = f.Number
	}
	if f.Offset > 0 {
		m["offset"] = f.Offset
	}
	return m
}

// GetPosts lists posts (wp.getPosts).
func (a *Adapter) GetPosts(ctx context.Context, filter PostFilter) ([]map[string]any, error) {
	args := []any{a.opts.BlogID, a.user, a.password}
	if f := filter.toStruct(); len(f) > 0 {
		args = append(args, f)
	}
	return a.readList(ctx, methodGetPosts, args)
}

// GetPost fetches one post (wp.getPost).
func (a *Adapter) GetPost(ctx context.Context, id int) (map[string]any, error) {
	reply, err := a.read(ctx, methodGetPost, []any{a.opts.BlogID, a.user, a.password, id})
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	raw, err := asStruct(reply)
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	if err := a.pause(ctx); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetAuthors lists authors (wp.getAuthors).
func (a *Adapter) GetAuthors(ctx context.Context) ([]map[string]any, error) {
	return a.readList(ctx, methodGetAuthors, []any{a.opts.BlogID, a.user, a.password})
}

// GetCategories lists categories (wp.getCategories).
func (a *Adapter) GetCategories(ctx context.Context) ([]map[string]any, error) {
	return a.readList(ctx, methodGetCategories, []any{a.opts.BlogID, a.user, a.password})
}

// GetTags lists tags (wp.getTags).
func (a *Adapter) GetTags(ctx context.Context) ([]map[string]any, error) {
	return a.readList(ctx, methodGetTags, []any{a.opts.BlogID, a.user, a.password})
}

func (a *Adapter) readList(ctx context.Context, method string, args []any) ([]map[string]any, error) {
	reply, err := a.read(ctx, method, args)
	if err != nil {
		return nil, err
	}
	out, err := asStructs(reply)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}
