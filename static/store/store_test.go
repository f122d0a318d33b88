package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vormadev/rstatic/kit/colorlog"
	rr "github.com/vormadev/rstatic/kit/remoteresource"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/reload"
)

type fakeRoutes struct {
	mu     sync.Mutex
	routes map[string]any
	calls  map[string]int
	gate   chan struct{}
}

func (f *fakeRoutes) FetchRoute(_ context.Context, path string) (any, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	v, ok := f.routes[path]
	if !ok {
		return nil, &static.FetchError{Status: http.StatusNotFound, Path: path}
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	return v, nil
}

func (f *fakeRoutes) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

type fixture struct {
	store  *Store
	routes *fakeRoutes
	sites  *atomic.Int32
}

func newFixture(t *testing.T, routes map[string]any) fixture {
	t.Helper()
	fr := &fakeRoutes{routes: routes, calls: map[string]int{}}
	var sites atomic.Int32
	s, err := New(Options{
		Routes: fr,
		Site: SiteFetcherFunc(func(context.Context) (any, error) {
			sites.Add(1)
			return map[string]any{"title": "Site", "meta": map[string]any{"lang": "en", "author": "site"}}, nil
		}),
		Logger: colorlog.Discard(),
		Dev:    true,
	})
	require.NoError(t, err)
	return fixture{store: s, routes: fr, sites: &sites}
}

func await[T any](t *testing.T, read func(ctx context.Context) rr.Result[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rr.Await(ctx, func() rr.Result[T] { return read(ctx) })
}

func page(data map[string]any, template string) map[string]any {
	return map[string]any{"data": data, "template": template}
}

func TestNewRequiresFetchers(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRouteDataMergesSiteData(t *testing.T) {
	f := newFixture(t, map[string]any{
		"/blog": page(map[string]any{"meta": map[string]any{"author": "route"}, "posts": []any{"a"}}, "src/Blog.tsx"),
	})

	first := f.store.RouteData(context.Background(), "blog/")
	assert.True(t, first.IsPending())

	data, err := await(t, func(ctx context.Context) rr.Result[map[string]any] { return f.store.RouteData(ctx, "/blog") })
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title": "Site",
		"meta":  map[string]any{"lang": "en", "author": "route"},
		"posts": []any{"a"},
	}, data)

	template, err := await(t, func(ctx context.Context) rr.Result[string] { return f.store.RouteTemplate(ctx, "/blog") })
	require.NoError(t, err)
	assert.Equal(t, "src/Blog.tsx", template)

	assert.Equal(t, 1, f.routes.count("/blog"))
	assert.Equal(t, int32(1), f.sites.Load())
}

func TestConcurrentReadsShareOneFetch(t *testing.T) {
	f := newFixture(t, map[string]any{"/": page(map[string]any{}, "Home")})
	f.routes.gate = make(chan struct{})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.store.Info(context.Background(), "/")
		}()
	}
	wg.Wait()
	close(f.routes.gate)

	info, err := await(t, func(ctx context.Context) rr.Result[RouteInfo] { return f.store.Info(ctx, "/") })
	require.NoError(t, err)
	assert.Equal(t, Found{Path: "/", Data: map[string]any{}, Template: "Home"}, info)
	assert.Equal(t, 1, f.routes.count("/"))
}

func TestNotFoundFallback(t *testing.T) {
	f := newFixture(t, map[string]any{
		NotFoundPath: page(map[string]any{"missing": true}, "src/404.tsx"),
	})

	info, err := await(t, func(ctx context.Context) rr.Result[RouteInfo] { return f.store.Info(ctx, "/nope") })
	require.NoError(t, err)
	nf, ok := info.(NotFound)
	require.True(t, ok, "got %T", info)
	assert.Equal(t, "src/404.tsx", nf.Template)

	data, err := await(t, func(ctx context.Context) rr.Result[map[string]any] { return f.store.RouteData(ctx, "/nope") })
	require.NoError(t, err)
	assert.Equal(t, true, data["missing"])
	assert.Equal(t, "Site", data["title"])

	assert.Equal(t, 1, f.routes.count("/nope"))
	assert.Equal(t, 1, f.routes.count(NotFoundPath))
}

func TestNotFoundFallbackFailure(t *testing.T) {
	f := newFixture(t, map[string]any{})

	info, err := await(t, func(ctx context.Context) rr.Result[RouteInfo] { return f.store.Info(ctx, NotFoundPath) })
	require.NoError(t, err)
	errored, ok := info.(Errored)
	require.True(t, ok)
	assert.True(t, static.IsNotFound(errored.Err))

	_, err = await(t, func(ctx context.Context) rr.Result[map[string]any] { return f.store.RouteData(ctx, "/nope") })
	var fallback *static.NotFoundFallbackError
	require.ErrorAs(t, err, &fallback)
	assert.Equal(t, "/nope", fallback.Path)

	// Memoized until cleared.
	f.store.RouteData(context.Background(), "/other")
	assert.Equal(t, 1, f.routes.count(NotFoundPath))
}

func TestValidationFailure(t *testing.T) {
	f := newFixture(t, map[string]any{
		"/bad": map[string]any{"data": "nope", "template": 3},
	})
	_, err := await(t, func(ctx context.Context) rr.Result[map[string]any] { return f.store.RouteData(ctx, "/bad") })
	var verr *static.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "/bad", verr.Path)
}

func TestErrorsSurface(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(t, map[string]any{"/x": boom})
	_, err := await(t, func(ctx context.Context) rr.Result[string] { return f.store.RouteTemplate(ctx, "/x") })
	assert.ErrorIs(t, err, boom)
}

func TestPrefetchExclusions(t *testing.T) {
	f := newFixture(t, map[string]any{"/a": page(map[string]any{}, "A")})
	f.store.Exclusions().Add(" /admin/ ", "/private")

	assert.True(t, f.store.Exclusions().Contains("/admin"))
	assert.True(t, f.store.Exclusions().Contains("/private/"))
	assert.False(t, f.store.Exclusions().Contains("/a"))

	res := f.store.Info(context.Background(), "/admin")
	require.True(t, res.IsReady())
	assert.Equal(t, Found{Path: "/admin", Data: map[string]any{}}, res.Value())
	require.NoError(t, f.store.Prefetch(context.Background(), "/admin"))
	assert.Equal(t, 0, f.routes.count("/admin"))

	require.NoError(t, f.store.Prefetch(context.Background(), "/a"))
	assert.True(t, f.store.Info(context.Background(), "/a").IsReady())
}

func TestReloadClearsEverything(t *testing.T) {
	f := newFixture(t, map[string]any{"/": page(map[string]any{"v": 1}, "Home")})
	bus := reload.NewBus()
	unsubscribe := f.store.Attach(bus)
	defer unsubscribe()

	_, err := await(t, func(ctx context.Context) rr.Result[map[string]any] { return f.store.RouteData(ctx, "/") })
	require.NoError(t, err)

	f.routes.mu.Lock()
	f.routes.routes["/"] = page(map[string]any{"v": 2}, "Home")
	f.routes.mu.Unlock()

	bus.Broadcast()
	assert.True(t, f.store.RouteData(context.Background(), "/").IsPending())

	data, err := await(t, func(ctx context.Context) rr.Result[map[string]any] { return f.store.RouteData(ctx, "/") })
	require.NoError(t, err)
	assert.EqualValues(t, 2, data["v"])
	assert.Equal(t, 2, f.routes.count("/"))
	assert.Equal(t, int32(2), f.sites.Load())
}

func TestMatch(t *testing.T) {
	name := func(info RouteInfo) string {
		return Match(info,
			func(Found) string { return "found" },
			func(NotFound) string { return "not-found" },
			func(Errored) string { return "errored" },
		)
	}
	assert.Equal(t, "found", name(Found{}))
	assert.Equal(t, "not-found", name(NotFound{}))
	assert.Equal(t, "errored", name(Errored{}))
}

func TestDataFetcher(t *testing.T) {
	data := static.Data{
		Site:   map[string]any{"name": "x"},
		Routes: []static.ResolvedRoute{{Path: "/about", Template: "About", Data: map[string]any{"a": 1}}},
	}
	f := DataFetcher{Data: func() static.Data { return data }}

	raw, err := f.FetchRoute(context.Background(), "about/")
	require.NoError(t, err)
	assert.Equal(t, Payload{Data: map[string]any{"a": 1}, Template: "About"}, raw)

	_, err = f.FetchRoute(context.Background(), "/missing")
	assert.True(t, static.IsNotFound(err))
	assert.Contains(t, err.Error(), "addPrefetchExcludes")

	site, err := f.FetchSite(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data.Site, site)
}

func TestHTTPFetcherURLs(t *testing.T) {
	dev := HTTPFetcherOptions{BaseURL: "http://localhost:3000/", Prefix: "/__rstatic__/1.0.0"}
	assert.Equal(t, "http://localhost:3000/__rstatic__/1.0.0/route/blog/post", dev.RouteURL("blog/post/"))
	assert.Equal(t, "http://localhost:3000/__rstatic__/1.0.0/site", dev.SiteURL())

	prod := HTTPFetcherOptions{BaseURL: "https://example.com"}
	assert.Equal(t, "https://example.com/route-info.json", prod.RouteURL("/"))
	assert.Equal(t, "https://example.com/blog/route-info.json", prod.RouteURL("/blog"))
	assert.Equal(t, "https://example.com/site-info.json", prod.SiteURL())
}

func TestHTTPFetcher(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/p/route/":
			w.Write([]byte(`{"data":{"home":true},"template":"Home"}`))
		case "/p/site":
			w.Header().Set("Cache-Control", "max-age=60")
			w.Write([]byte(`{"title":"Site"}`))
		default:
			http.Error(w, "Route could not be found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fetcher, err := NewHTTPFetcher(HTTPFetcherOptions{BaseURL: srv.URL, Prefix: "/p", Client: srv.Client()})
	require.NoError(t, err)
	s, err := New(Options{Routes: fetcher, Site: fetcher, Logger: colorlog.Discard()})
	require.NoError(t, err)

	data, err := await(t, func(ctx context.Context) rr.Result[map[string]any] { return s.RouteData(ctx, "/") })
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"home": true, "title": "Site"}, data)

	_, err = fetcher.FetchRoute(context.Background(), "/gone")
	var fe *static.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "/gone", fe.Path)
	assert.Equal(t, "Route could not be found", fe.Message)

	before := hits.Load()
	_, err = fetcher.FetchSite(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, hits.Load(), "fresh site data is served from cache")
}
