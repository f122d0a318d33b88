// Package devserver serves resolved route data, the site data and the HTML
// shell during development, and pushes reload messages to connected
// browsers when watched files change.
package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vormadev/rstatic/kit/htmlutil"
	rr "github.com/vormadev/rstatic/kit/remoteresource"
	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/browser"
	"github.com/vormadev/rstatic/static/pipeline"
	"github.com/vormadev/rstatic/static/plugins"
	"github.com/vormadev/rstatic/static/reload"
	"github.com/vormadev/rstatic/static/store"
)

const (
	// RoutePrefix is the root of the dev server data endpoints.
	RoutePrefix = "/__rstatic__"

	// RouteInfoScriptID is the id of the JSON script carrying the route info
	// of the rendered page.
	RouteInfoScriptID = "__rstatic_route_info__"

	DefaultDebounce = 50 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Prefix is the endpoint prefix for a site version.
func Prefix(version string) string {
	return RoutePrefix + "/" + version
}

type Options struct {
	// State is the starting point of every rebuild: its Config, Stage and
	// Logger are kept, everything else is recomputed.
	State static.State

	// LoadConfig, when set, replaces State.Config before every rebuild after
	// the first.
	LoadConfig func() (static.Config, error)

	Platform *plugins.Registry
	Browser  *browser.Registry

	// Bus receives a broadcast after every rebuild. Default: a new Bus.
	Bus *reload.Bus

	// Watch and Ignore are doublestar patterns relative to the site root.
	// Watch defaults to DefaultWatch. The output directories are always
	// ignored.
	Watch    []string
	Ignore   []string
	Debounce time.Duration

	// DisableWatcher turns off file watching in Run.
	DisableWatcher bool
}

// DefaultWatch lists the patterns watched when Options.Watch is empty.
var DefaultWatch = []string{
	"src/**/*",
	"plugins/**/*",
	"static.config.*",
	".env",
	".env.local",
}

type Server struct {
	opts   Options
	log    *slog.Logger
	prefix string

	mu    sync.RWMutex
	state static.State
	apps  []browser.Plugin

	reloadMu sync.Mutex
	store    *store.Store
	bus      *reload.Bus
	group    singleflight.Group

	manager    *clientManager
	managerCtx context.Context
}

// New runs the first build and starts the message client manager, which
// stops when ctx is done.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Platform == nil {
		opts.Platform = plugins.NewRegistry()
	}
	if opts.Browser == nil {
		opts.Browser = browser.NewRegistry()
	}
	if len(opts.Watch) == 0 {
		opts.Watch = DefaultWatch
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Bus == nil {
		opts.Bus = reload.NewBus()
	}
	opts.State.Stage = static.StageDev

	s := &Server{
		opts:   opts,
		log:    opts.State.Log(),
		prefix: Prefix(opts.State.Config.Version),
		bus:    opts.Bus,
	}

	fetcher := store.DataFetcher{Data: s.data}
	st, err := store.New(store.Options{
		Routes: fetcher,
		Site:   fetcher,
		Logger: s.log,
		Dev:    true,
	})
	if err != nil {
		return nil, err
	}
	s.store = st
	st.Attach(s.bus)

	if err := s.rebuild(ctx, false); err != nil {
		return nil, err
	}

	s.manager = newClientManager()
	s.managerCtx = ctx
	go s.manager.start(ctx)
	return s, nil
}

// State returns the current pipeline state.
func (s *Server) State() static.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Store returns the data store backed by the current state.
func (s *Server) Store() *store.Store {
	return s.store
}

// Bus returns the reload bus broadcast after every rebuild.
func (s *Server) Bus() *reload.Bus {
	return s.bus
}

func (s *Server) data() static.Data {
	return s.State().Data
}

func (s *Server) snapshot() (static.State, []browser.Plugin) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.apps
}

func (s *Server) rebuild(ctx context.Context, reloadConfig bool) error {
	base := static.State{
		Stage:   static.StageDev,
		Config:  s.opts.State.Config,
		Plugins: static.NewHooks(),
		Logger:  s.log,
	}
	if reloadConfig && s.opts.LoadConfig != nil {
		cfg, err := s.opts.LoadConfig()
		if err != nil {
			return err
		}
		base.Config = cfg
	}

	next, err := pipeline.Run(ctx, base, pipeline.DevSteps(s.opts.Platform)...)
	if err != nil {
		return err
	}

	var known []static.ResolvedPlugin
	for _, p := range next.Data.Plugins {
		if !p.HasApp() {
			continue
		}
		if !s.opts.Browser.Has(p.Name) {
			s.log.Debug("Plugin app side only runs in the bundle", "plugin", p.Name)
			continue
		}
		known = append(known, p)
	}
	apps, err := s.opts.Browser.FromResolved(known)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state, s.apps = next, apps
	s.mu.Unlock()
	return nil
}

// Reload re-runs the pipeline, swaps in the new state, clears the store
// through the reload bus and tells connected browsers to reload.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	if err := s.rebuild(ctx, true); err != nil {
		return err
	}
	s.bus.Broadcast()
	s.manager.send(ctx, reload.Message{Type: reload.TypeReload})
	s.log.Info("Reloaded", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Handler serves the data endpoints under Prefix and renders every other
// path as a page.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route(s.prefix, func(r chi.Router) {
		r.Get("/", s.handleHelp)
		r.Get("/message-port", s.handleMessagePort)
		r.Get("/site", s.handleSite)
		r.Get("/route/*", s.handleRoute)
	})
	r.Get("/*", s.servePage)
	return r
}

// MessageHandler serves the reload websocket.
func (s *Server) MessageHandler() http.Handler {
	r := chi.NewRouter()
	r.Get(reload.EventsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		websocketHandler(s.managerCtx, s.manager)(w, r)
	})
	return r
}

// Run serves the page and message servers on the configured ports and
// watches files until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.State().Config.DevServer
	pageLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return err
	}
	msgLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.MessagePort)))
	if err != nil {
		pageLn.Close()
		return err
	}
	return s.Serve(ctx, pageLn, msgLn)
}

// Serve is Run on existing listeners.
func (s *Server) Serve(ctx context.Context, pageLn, msgLn net.Listener) error {
	var w *Watcher
	if !s.opts.DisableWatcher {
		var err error
		if w, err = s.newWatcher(); err != nil {
			return errors.Join(err, pageLn.Close(), msgLn.Close())
		}
	}

	pages := &http.Server{Handler: s.Handler()}
	messages := &http.Server{Handler: s.MessageHandler()}

	g, gctx := errgroup.WithContext(ctx)
	serve := func(srv *http.Server, ln net.Listener) {
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	serve(pages, pageLn)
	serve(messages, msgLn)
	s.log.Info("Dev server started", "url", "http://"+pageLn.Addr().String(), "messages", msgLn.Addr().String())

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(pages.Shutdown(shutdownCtx), messages.Shutdown(shutdownCtx))
	})

	if w != nil {
		g.Go(func() error {
			defer w.Close()
			w.Run(gctx, s.opts.Debounce, func(events []fsnotify.Event) {
				for _, evt := range events {
					s.log.Info("File changed", "op", evt.Op.String(), "file", evt.Name)
				}
				if err := s.Reload(gctx); err != nil {
					s.log.Error("Reload failed", "error", err)
				}
			})
			return nil
		})
	}
	err := g.Wait()
	if s.managerCtx.Err() != nil {
		s.manager.wait()
	}
	return err
}

func (s *Server) newWatcher() (*Watcher, error) {
	paths := s.State().Config.Paths
	ignore := append([]string{paths.Dist, paths.Temp, paths.Artifacts.Dir}, s.opts.Ignore...)
	return NewWatcher(paths.Root, s.opts.Watch, ignore, s.log)
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		s.prefix + "/":             "This help",
		s.prefix + "/message-port": "The port of the reload websocket server",
		s.prefix + "/site":         "Site data",
		s.prefix + "/route/{path}": "Route info (data and template) for a path",
	})
}

func (s *Server) handleMessagePort(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, reload.PortResponse{Port: s.State().Config.DevServer.MessagePort})
}

func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	site := s.State().Data.Site
	if site == nil {
		site = map[string]any{}
	}
	writeJSON(w, http.StatusOK, site)
}

// handleRoute serves the route info of the path after /route. Concurrent
// requests for one path share a single encoding.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	path := routepath.Normalize(chi.URLParam(r, "*"))
	v, err, _ := s.group.Do(path, func() (any, error) {
		return s.routeJSON(path)
	})
	if err != nil {
		var missing *static.RouteMissingError
		if errors.As(err, &missing) {
			http.Error(w, missing.Error(), http.StatusNotFound)
			return
		}
		s.log.Error("Route info failed", "path", path, "error", err)
		http.Error(w, static.PublicMessage(err, true), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(v.([]byte))
}

func (s *Server) routeJSON(path string) ([]byte, error) {
	for _, route := range s.data().Routes {
		if !routepath.Equal(route.Path, path) {
			continue
		}
		data, err := static.ToObject(route.Data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(store.Payload{Data: data, Template: route.Template})
	}
	return nil, &static.RouteMissingError{Path: path}
}

// pageInfo is the route info injected into the rendered page.
type pageInfo struct {
	Path     string         `json:"path"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
	SiteData map[string]any `json:"siteData"`
	NotFound bool           `json:"notFound,omitempty"`
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	_, apps := s.snapshot()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, browser.ComposeRoutes(s.renderRoute, apps))
	})
	browser.ComposeRoot(inner, apps).ServeHTTP(w, r)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, render browser.RenderFunc) {
	ctx := r.Context()
	path := routepath.Normalize(r.URL.Path)

	info, err := rr.Await(ctx, func() rr.Result[store.RouteInfo] { return s.store.Info(ctx, path) })
	if err != nil {
		http.Error(w, static.PublicMessage(err, true), http.StatusInternalServerError)
		return
	}
	status := store.Match(info,
		func(store.Found) int { return http.StatusOK },
		func(store.NotFound) int { return http.StatusNotFound },
		func(store.Errored) int { return http.StatusInternalServerError },
	)

	var buf bytes.Buffer
	if err := render(&buf, r, path); err != nil {
		s.log.Error("Render failed", "path", path, "error", err)
		http.Error(w, static.PublicMessage(err, true), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderRoute writes the index HTML with the route info of path injected
// before </head>.
func (s *Server) renderRoute(w io.Writer, r *http.Request, path string) error {
	ctx := r.Context()
	info, err := rr.Await(ctx, func() rr.Result[store.RouteInfo] { return s.store.Info(ctx, path) })
	if err != nil {
		return err
	}
	site, err := rr.Await(ctx, func() rr.Result[map[string]any] { return s.store.SiteData(ctx) })
	if err != nil {
		return err
	}

	page := pageInfo{Path: path, SiteData: site}
	err = store.Match(info,
		func(f store.Found) error {
			page.Template, page.Data = f.Template, f.Data
			return nil
		},
		func(nf store.NotFound) error {
			page.Template, page.Data, page.NotFound = nf.Template, nf.Data, true
			return nil
		},
		func(e store.Errored) error { return e.Err },
	)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(page)
	if err != nil {
		return err
	}
	script := htmlutil.JSONScript(RouteInfoScriptID, payload)
	rendered, err := htmlutil.RenderElement(&script)
	if err != nil {
		return err
	}

	html := s.State().Artifacts.IndexHTML
	if i := strings.LastIndex(html, "</head>"); i >= 0 {
		html = html[:i] + string(rendered) + "\n" + html[i:]
	} else {
		html = string(rendered) + html
	}
	_, err = io.WriteString(w, html)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
