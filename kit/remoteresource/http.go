package remoteresource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pquerna/cachecontrol"
	"github.com/pquerna/cachecontrol/cacheobject"
)

// HTTPPolicy is a Policy derived from HTTP cache headers.
type HTTPPolicy struct {
	storable     bool
	expires      time.Time
	etag         string
	lastModified string
	now          func() time.Time
}

// NewHTTPPolicy builds a policy from a request/response pair.
func NewHTTPPolicy(req *http.Request, resp *http.Response, opts PolicyOptions) Policy[*http.Request, *http.Response] {
	return newHTTPPolicy(req, resp, opts, time.Now)
}

func newHTTPPolicy(req *http.Request, resp *http.Response, opts PolicyOptions, now func() time.Time) *HTTPPolicy {
	p := &HTTPPolicy{now: now}
	if resp == nil || req == nil {
		return p
	}
	p.etag = resp.Header.Get("ETag")
	p.lastModified = resp.Header.Get("Last-Modified")

	reasons, expires, err := cachecontrol.CachableResponse(req, resp, cachecontrol.Options{
		PrivateCache: !opts.Shared,
	})
	if err != nil {
		return p
	}
	p.storable = len(reasons) == 0
	p.expires = expires
	return p
}

func (p *HTTPPolicy) Storable() bool {
	return p.storable
}

// SatisfiesWithoutRevalidation reports whether the cached response is still
// fresh for req. Requests asking for no-cache, no-store or max-age=0 always
// revalidate.
func (p *HTTPPolicy) SatisfiesWithoutRevalidation(req *http.Request) bool {
	if !p.storable || p.expires.IsZero() {
		return false
	}
	if req != nil {
		if req.Method != http.MethodGet && req.Method != http.MethodHead && req.Method != "" {
			return false
		}
		if cc := req.Header.Get("Cache-Control"); cc != "" {
			dir, err := cacheobject.ParseRequestCacheControl(cc)
			if err == nil && (dir.NoCache || dir.NoStore || dir.MaxAge == 0) {
				return false
			}
		}
	}
	return p.now().Before(p.expires)
}

// Revalidated refreshes the policy from a revalidation response. A 304, or a
// 200 carrying the same validator, leaves the resource unmodified.
func (p *HTTPPolicy) Revalidated(req *http.Request, resp *http.Response) (Policy[*http.Request, *http.Response], bool) {
	if resp == nil {
		return p, false
	}
	modified := true
	switch {
	case resp.StatusCode == http.StatusNotModified:
		modified = false
	case p.etag != "" && resp.Header.Get("ETag") == p.etag:
		modified = false
	case p.etag == "" && p.lastModified != "" && resp.Header.Get("Last-Modified") == p.lastModified:
		modified = false
	}
	if modified {
		return newHTTPPolicy(req, resp, PolicyOptions{}, p.now), true
	}

	refreshed := *p
	merged := resp.Header.Clone()
	if merged == nil {
		merged = http.Header{}
	}
	if merged.Get("ETag") == "" && p.etag != "" {
		merged.Set("ETag", p.etag)
	}
	if merged.Get("Last-Modified") == "" && p.lastModified != "" {
		merged.Set("Last-Modified", p.lastModified)
	}
	synthetic := &http.Response{StatusCode: http.StatusOK, Header: merged, Request: req}
	if _, expires, err := cachecontrol.CachableResponse(req, synthetic, cachecontrol.Options{PrivateCache: true}); err == nil {
		refreshed.expires = expires
	}
	return &refreshed, false
}

// ConditionalHeaders sets If-None-Match / If-Modified-Since from the cached
// validators.
func (p *HTTPPolicy) ConditionalHeaders(h http.Header) {
	if p.etag != "" {
		h.Set("If-None-Match", p.etag)
	}
	if p.lastModified != "" {
		h.Set("If-Modified-Since", p.lastModified)
	}
}

// StatusError is returned for non-success HTTP responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remoteresource: %s responded %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

type HTTPOptions[T any] struct {
	Client *http.Client // Default: http.DefaultClient

	// URL maps a key to the URL to fetch.
	URL func(key string) (string, error)

	// Decode turns a successful response body into T.
	Decode func(ctx context.Context, body io.Reader) (T, error)

	// CheckResponse maps a response to an error. Default: *StatusError for
	// any status >= 400.
	CheckResponse func(resp *http.Response) error

	CreatePolicyOptions func(ctx context.Context, key string) (PolicyOptions, bool, error)
	Cache               CacheOptions
}

// NewHTTP builds a Resource that issues GET requests and honours HTTP caching
// headers, including conditional revalidation.
func NewHTTP[T any](opts HTTPOptions[T]) (*Resource[*http.Request, *http.Response, T], error) {
	if opts.URL == nil || opts.Decode == nil {
		return nil, fmt.Errorf("remoteresource: HTTPOptions.URL and HTTPOptions.Decode are required")
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	check := opts.CheckResponse
	if check == nil {
		check = defaultCheckResponse
	}

	return New(Options[*http.Request, *http.Response, T]{
		CreateRequest: func(ctx context.Context, key string) (*http.Request, error) {
			u, err := opts.URL(key)
			if err != nil {
				return nil, err
			}
			return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		},
		ExecuteRequest: func(ctx context.Context, req *http.Request) (*http.Response, error) {
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusNotModified {
				resp.Body.Close()
				return resp, nil
			}
			if err := check(resp); err != nil {
				resp.Body.Close()
				return nil, err
			}
			return resp, nil
		},
		TransformResponse: func(ctx context.Context, resp *http.Response) (T, error) {
			defer resp.Body.Close()
			return opts.Decode(ctx, resp.Body)
		},
		NewPolicy:           NewHTTPPolicy,
		CreatePolicyOptions: opts.CreatePolicyOptions,
		PrepareRevalidation: func(req *http.Request, cached Policy[*http.Request, *http.Response]) *http.Request {
			hp, ok := cached.(*HTTPPolicy)
			if !ok {
				return req
			}
			req = req.Clone(req.Context())
			hp.ConditionalHeaders(req.Header)
			return req
		},
		NotModified: func(resp *http.Response) bool {
			return resp.StatusCode == http.StatusNotModified
		},
		Cache: opts.Cache,
	})
}

func defaultCheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 400 {
		u := ""
		if resp.Request != nil && resp.Request.URL != nil {
			u = resp.Request.URL.String()
		}
		return &StatusError{StatusCode: resp.StatusCode, URL: u}
	}
	return nil
}
