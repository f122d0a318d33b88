package static

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidHook   = errors.New("static: invalid hook")
	ErrInvalidPlugin = errors.New("static: invalid plugin")
)

// FetchError reports a failed route or site data request.
type FetchError struct {
	Status  int
	Path    string
	Message string
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("fetch %s: %d %s", e.Path, e.Status, msg)
}

func (e *FetchError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsNotFound reports whether err carries a not-found fetch condition.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.NotFound()
}

// ValidationError reports a route-info payload with the wrong shape.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid route info for %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PluginNotResolvedError lists every location tried for a plugin.
type PluginNotResolvedError struct {
	Name  string
	Tried []string
}

func (e *PluginNotResolvedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plugin %q could not be resolved. Tried:", e.Name)
	for _, p := range e.Tried {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}

type IndexRouteNotDefinedError struct{}

func (IndexRouteNotDefinedError) Error() string {
	return `Define a route with the path "/".

There is no route with a path of / which means that there is no index route.
An index route is required, even if it is just a redirect to the actual home.`
}

// RouteMissingError is served by the dev server for unknown routes.
type RouteMissingError struct {
	Path string
}

func (e *RouteMissingError) Error() string {
	return fmt.Sprintf(`Route could not be found for: %s

If you remove this route, it will no longer be available. If this route is not
meant to be statically rendered, consider adding it to the prefetch exclusions:
addPrefetchExcludes(['%s'])`, e.Path, e.Path)
}

// NotFoundFallbackError is returned when a path is not found and the /404
// route itself could not be loaded.
type NotFoundFallbackError struct {
	Path string
	Err  error
}

func (e *NotFoundFallbackError) Error() string {
	return fmt.Sprintf("route %s not found and /404 failed to load: %v", e.Path, e.Err)
}

func (e *NotFoundFallbackError) Unwrap() error { return e.Err }

// PublicError carries a message safe to show to site visitors alongside the
// underlying error.
type PublicError struct {
	Public string
	Err    error
}

func (e *PublicError) Error() string { return e.Err.Error() }
func (e *PublicError) Unwrap() error { return e.Err }

// PublicMessage returns the message to show for err. Development shows the full
// error; production shows only public messages.
func PublicMessage(err error, isDev bool) string {
	if err == nil {
		return ""
	}
	if isDev {
		return err.Error()
	}
	var pe *PublicError
	if errors.As(err, &pe) && pe.Public != "" {
		return pe.Public
	}
	if IsNotFound(err) {
		return http.StatusText(http.StatusNotFound)
	}
	return "Something went wrong."
}
