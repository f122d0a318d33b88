package routecontext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/browser"
	"github.com/vormadev/rstatic/static/plugins"
)

func TestRootStoresNormalizedPath(t *testing.T) {
	var got routepath.Path
	var ok bool
	h := browser.ComposeRoot(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	}), []browser.Plugin{Plugin()})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/blog//post/", nil))
	require.True(t, ok)
	assert.Equal(t, routepath.Path("/blog/post"), got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	platform := plugins.NewRegistry()
	reg := browser.NewRegistry()
	Register(platform, reg)

	b, ok := platform.Builtins()[Name]
	require.True(t, ok)
	assert.False(t, b.Platform)
	assert.True(t, b.App)

	list, err := reg.FromResolved([]static.ResolvedPlugin{{Name: Name, App: "builtin:" + Name + "/app"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Name, list[0].Name)
}
