package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "pages", "docs"), 0o755))
	for _, f := range []string{"index.js", filepath.Join("docs", "intro.js")} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "src", "pages", f), []byte("export default 1"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "static.config.yaml"), []byte(`
data:
  title: Docs
routes:
  - path: /
    template: src/pages/index.js
plugins:
  - "@rstatic/plugin-logging"
  - ["@rstatic/plugin-source-filesystem", {location: ./pages}]
`), 0o644))

	var stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"build", "-root", root, "-silent"}, &stderr))

	dist := filepath.Join(root, "dist")
	assert.FileExists(t, filepath.Join(dist, "index.html"))
	raw, err := os.ReadFile(filepath.Join(dist, "docs", "intro", "route-info.json"))
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "src/pages/docs/intro.js", info["template"])

	raw, err = os.ReadFile(filepath.Join(dist, "site-info.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Docs"}`, string(raw))
}

func TestUsage(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), nil, &stderr)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, stderr.String(), "usage: rstatic")

	err = run(context.Background(), []string{"deploy"}, &stderr)
	assert.ErrorContains(t, err, `unknown command "deploy"`)
}
