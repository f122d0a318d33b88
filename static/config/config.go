// Package config loads the site configuration from static.config.* files,
// .env files and the environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/vormadev/rstatic/kit/colorlog"
	"github.com/vormadev/rstatic/static"
)

// Files are the configuration file names searched in the root, in order.
var Files = []string{
	"static.config.json",
	"static.config.yaml",
	"static.config.yml",
	"static.config.toml",
}

// EnvFiles are loaded in order; later files take precedence over earlier ones
// but never over variables already set in the process.
var EnvFiles = []string{".env", ".env.local"}

const DefaultVersion = "dev"

// deprecatedKeys maps old top-level keys to their replacement.
var deprecatedKeys = []struct{ old, key string }{
	{"getRoutes", "routes"},
	{"getSiteData", "data"},
	{"siteData", "data"},
	{"getData", "data"},
}

type Options struct {
	Root string

	// Stage defaults to the stage selected by RSTATIC_ENV.
	Stage static.Stage

	// Overrides are applied over the file configuration. Routes, Data and
	// Plugins replace the file values when set.
	Overrides static.Config

	Logger *slog.Logger
}

// Defaults returns the configuration used for unset values.
func Defaults() static.Config {
	return static.Config{
		Version:  DefaultVersion,
		SiteRoot: "/",
		Document: static.Document{Lang: "en"},
		DevServer: static.DevServerConfig{
			Host:        "localhost",
			Port:        3000,
			MessagePort: 4000,
		},
	}
}

// Load reads the environment files and the first configuration file found in
// opts.Root, then layers overrides, environment and defaults.
func Load(opts Options) (static.Config, static.Stage, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if err := LoadEnv(root); err != nil {
		return static.Config{}, "", err
	}

	var cfg static.Config
	if path, ok := Find(root); ok {
		raw, err := ReadFile(path)
		if err != nil {
			return static.Config{}, "", err
		}
		if cfg, err = FromMap(raw, log); err != nil {
			return static.Config{}, "", fmt.Errorf("config %s: %w", path, err)
		}
		log.Debug("Loaded configuration", "file", path)
	} else {
		log.Debug("No configuration file found", "root", root)
	}

	cfg, err := apply(cfg, opts.Overrides)
	if err != nil {
		return static.Config{}, "", err
	}
	applyEnv(&cfg)
	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return static.Config{}, "", fmt.Errorf("apply config defaults: %w", err)
	}

	if cfg.Paths.Root == "" {
		cfg.Paths.Root = root
	}
	if abs, err := filepath.Abs(cfg.Paths.Root); err == nil {
		cfg.Paths.Root = abs
	}
	cfg.Paths = cfg.Paths.ResolvePaths()

	stage := opts.Stage
	if stage == "" {
		stage = static.StageProd
		if static.IsDevelopment() {
			stage = static.StageDev
		}
	}
	return cfg, stage, nil
}

// Find returns the first configuration file present in root.
func Find(root string) (string, bool) {
	for _, name := range Files {
		p := filepath.Join(root, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// ReadFile decodes a configuration file by extension.
func ReadFile(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		err = dec.Decode(&raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &raw)
	case ".toml":
		_, err = toml.Decode(string(b), &raw)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return normalize(raw).(map[string]any), nil
}

// LoadEnv loads EnvFiles from root without overriding variables that are
// already set.
func LoadEnv(root string) error {
	values := map[string]string{}
	for _, name := range EnvFiles {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		m, err := godotenv.Read(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		for k, v := range m {
			values[k] = v
		}
	}
	for k, v := range values {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// FromMap converts decoded configuration into a static.Config. Deprecated
// keys are mapped to their replacement with a warning.
func FromMap(raw map[string]any, log *slog.Logger) (static.Config, error) {
	raw = migrate(raw, log)

	var cfg static.Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, err
	}
	if cfg.Bundle == nil {
		if wp, ok := raw["webpack"].(map[string]any); ok {
			cfg.Bundle = wp
		}
	}
	return cfg, nil
}

func migrate(raw map[string]any, log *slog.Logger) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, d := range deprecatedKeys {
		v, ok := out[d.old]
		if !ok {
			continue
		}
		delete(out, d.old)
		if _, exists := out[d.key]; exists {
			log.Warn("Ignoring deprecated config key, its replacement is set", "key", d.old, "replacement", d.key)
			continue
		}
		log.Warn("Config key is deprecated", "key", d.old, "replacement", d.key)
		out[d.key] = v
	}
	return out
}

// apply layers o over cfg.
func apply(cfg static.Config, o static.Config) (static.Config, error) {
	routes, data, plugins := o.Routes, o.Data, o.Plugins
	o.Routes, o.Data, o.Plugins = nil, nil, nil
	if err := mergo.Merge(&cfg, o, mergo.WithOverride); err != nil {
		return cfg, fmt.Errorf("apply config overrides: %w", err)
	}
	if routes != nil {
		cfg.Routes = routes
	}
	if data != nil {
		cfg.Data = data
	}
	if plugins != nil {
		cfg.Plugins = plugins
	}
	return cfg, nil
}

func applyEnv(cfg *static.Config) {
	cfg.Silent = cfg.Silent || static.EnvBool(static.EnvSilent)
	cfg.Verbose = cfg.Verbose || static.EnvBool(static.EnvVerbose)
	if h := os.Getenv(static.EnvDevHost); h != "" {
		cfg.DevServer.Host = h
	}
	if p := static.EnvInt(static.EnvDevPort); p > 0 {
		cfg.DevServer.Port = p
	}
	if p := static.EnvInt(static.EnvMessagePort); p > 0 {
		cfg.DevServer.MessagePort = p
	}
}

// NewLogger returns the logger configured by cfg.
func NewLogger(cfg static.Config) *slog.Logger {
	return colorlog.New("rstatic", colorlog.Options{Silent: cfg.Silent, Verbose: cfg.Verbose})
}

// NewState returns the initial pipeline state for cfg.
func NewState(cfg static.Config, stage static.Stage, log *slog.Logger) static.State {
	if log == nil {
		log = NewLogger(cfg)
	}
	return static.State{
		Stage:   stage,
		Config:  cfg,
		Plugins: static.NewHooks(),
		Logger:  log,
	}
}

// normalize makes decoded values JSON-shaped: map[string]any and []any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			t[k] = normalize(vv)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[fmt.Sprint(k)] = normalize(vv)
		}
		return m
	case []map[string]any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = normalize(vv)
		}
		return s
	case []any:
		for i, vv := range t {
			t[i] = normalize(vv)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}
