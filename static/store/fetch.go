package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	rr "github.com/vormadev/rstatic/kit/remoteresource"
	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static"
)

type RouteFetcherFunc func(ctx context.Context, path string) (any, error)

func (f RouteFetcherFunc) FetchRoute(ctx context.Context, path string) (any, error) {
	return f(ctx, path)
}

type SiteFetcherFunc func(ctx context.Context) (any, error)

func (f SiteFetcherFunc) FetchSite(ctx context.Context) (any, error) {
	return f(ctx)
}

// DataFetcher serves routes and site data from resolved pipeline data held
// in the same process.
type DataFetcher struct {
	Data func() static.Data
}

func (f DataFetcher) FetchRoute(_ context.Context, path string) (any, error) {
	data := f.Data()
	for _, r := range data.Routes {
		if routepath.Equal(r.Path, path) {
			return Payload{Data: routeData(r.Data), Template: r.Template}, nil
		}
	}
	return nil, &static.FetchError{Status: http.StatusNotFound, Path: path, Message: (&static.RouteMissingError{Path: path}).Error()}
}

func (f DataFetcher) FetchSite(context.Context) (any, error) {
	return f.Data().Site, nil
}

func routeData(v any) map[string]any {
	obj, err := static.ToObject(v)
	if err != nil {
		return map[string]any{"value": v}
	}
	return obj
}

// HTTPFetcher fetches route info over HTTP, honouring cache headers. In
// development it targets the dev server endpoints; otherwise the exported
// route-info.json and site-info.json files.
type HTTPFetcher struct {
	routes *rr.Resource[*http.Request, *http.Response, any]
	site   *rr.Resource[*http.Request, *http.Response, any]
}

type HTTPFetcherOptions struct {
	BaseURL string
	// Prefix is the dev server route prefix, e.g. /__rstatic__/<version>.
	// An empty prefix selects the exported file layout.
	Prefix string
	Client *http.Client
	Cache  rr.CacheOptions
}

// RouteURL returns the route-info URL for path.
func (o HTTPFetcherOptions) RouteURL(path string) string {
	base := strings.TrimSuffix(o.BaseURL, "/")
	p := routepath.Normalize(path)
	if o.Prefix != "" {
		return base + o.Prefix + "/route" + escapePath(p)
	}
	if p == routepath.Root {
		return base + "/route-info.json"
	}
	return base + escapePath(p) + "/route-info.json"
}

// SiteURL returns the site-info URL.
func (o HTTPFetcherOptions) SiteURL() string {
	base := strings.TrimSuffix(o.BaseURL, "/")
	if o.Prefix != "" {
		return base + o.Prefix + "/site"
	}
	return base + "/site-info.json"
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

func NewHTTPFetcher(opts HTTPFetcherOptions) (*HTTPFetcher, error) {
	decode := func(_ context.Context, body io.Reader) (any, error) {
		var v any
		if err := json.NewDecoder(body).Decode(&v); err != nil {
			return nil, fmt.Errorf("decode route info: %w", err)
		}
		return v, nil
	}
	routes, err := rr.NewHTTP(rr.HTTPOptions[any]{
		Client:        opts.Client,
		URL:           func(key string) (string, error) { return opts.RouteURL(key), nil },
		Decode:        decode,
		CheckResponse: checkResponse,
		Cache:         opts.Cache,
	})
	if err != nil {
		return nil, err
	}
	site, err := rr.NewHTTP(rr.HTTPOptions[any]{
		Client:        opts.Client,
		URL:           func(string) (string, error) { return opts.SiteURL(), nil },
		Decode:        decode,
		CheckResponse: checkResponse,
	})
	if err != nil {
		return nil, err
	}
	return &HTTPFetcher{routes: routes, site: site}, nil
}

func (f *HTTPFetcher) FetchRoute(ctx context.Context, path string) (any, error) {
	p := routepath.Normalize(path)
	v, err := f.routes.Load(ctx, p)
	var fe *static.FetchError
	if errors.As(err, &fe) {
		return nil, &static.FetchError{Status: fe.Status, Path: p, Message: fe.Message}
	}
	return v, err
}

func (f *HTTPFetcher) FetchSite(ctx context.Context) (any, error) {
	return f.site.Load(ctx, siteKey)
}

func (f *HTTPFetcher) ClearAll() {
	f.routes.ClearAll()
	f.site.ClearAll()
}

// checkResponse maps error statuses to *static.FetchError carrying the body
// text as message.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	path := ""
	if resp.Request != nil && resp.Request.URL != nil {
		path = resp.Request.URL.Path
	}
	return &static.FetchError{Status: resp.StatusCode, Path: path, Message: strings.TrimSpace(string(body))}
}
