package static

import (
	"context"
	"fmt"
)

// Hook transforms its input. A nil Hook is the identity.
type Hook[T any] func(ctx context.Context, in T) (T, error)

// Run calls h, treating nil as the identity.
func (h Hook[T]) Run(ctx context.Context, in T) (T, error) {
	if h == nil {
		return in, nil
	}
	return h(ctx, in)
}

// PassThrough is the identity hook.
func PassThrough[T any]() Hook[T] {
	return func(_ context.Context, in T) (T, error) { return in, nil }
}

// Chain returns a hook that runs current and feeds its output into next.
func Chain[T any](current, next Hook[T]) Hook[T] {
	if next == nil {
		return current
	}
	if current == nil {
		return next
	}
	return func(ctx context.Context, in T) (T, error) {
		out, err := current(ctx, in)
		if err != nil {
			return out, err
		}
		return next(ctx, out)
	}
}

type RoutesArgs struct {
	State  State
	Routes []RouteRecord
}

type ResolvedRoutesArgs struct {
	State  State
	Routes []ResolvedRoute
}

type SiteArgs struct {
	State State
	Data  map[string]any
}

type DocumentArgs struct {
	State    State
	Document Document
}

type HTMLArgs struct {
	State State
	HTML  string
}

type BundleArgs struct {
	State  State
	Config map[string]any
}

type ArtifactArgs struct {
	State    State
	Artifact Artifact
}

// Hooks is the fixed set of platform hook slots.
type Hooks struct {
	BeforeIndexHTML               Hook[DocumentArgs]
	BeforeIndexHTMLOutput         Hook[HTMLArgs]
	BeforeWebpack                 Hook[BundleArgs]
	AfterWebpack                  Hook[BundleArgs]
	BeforeRoutes                  Hook[State]
	BeforeRoutesResolve           Hook[RoutesArgs]
	AfterRoutes                   Hook[ResolvedRoutesArgs]
	BeforeSiteData                Hook[State]
	AfterSiteData                 Hook[SiteArgs]
	BeforeDirectories             Hook[State]
	AfterDirectories              Hook[State]
	BeforePluginArtifacts         Hook[State]
	BeforePluginArtifactsOutput   Hook[ArtifactArgs]
	BeforeTemplateArtifacts       Hook[State]
	BeforeTemplateArtifactsOutput Hook[ArtifactArgs]
}

const (
	HookBeforeIndexHTML               = "beforeIndexHtml"
	HookBeforeIndexHTMLOutput         = "beforeIndexHtmlOutput"
	HookBeforeWebpack                 = "beforeWebpack"
	HookAfterWebpack                  = "afterWebpack"
	HookBeforeRoutes                  = "beforeRoutes"
	HookBeforeRoutesResolve           = "beforeRoutesResolve"
	HookAfterRoutes                   = "afterRoutes"
	HookBeforeSiteData                = "beforeSiteData"
	HookAfterSiteData                 = "afterSiteData"
	HookBeforeDirectories             = "beforeDirectories"
	HookAfterDirectories              = "afterDirectories"
	HookBeforePluginArtifacts         = "beforePluginArtifacts"
	HookBeforePluginArtifactsOutput   = "beforePluginArtifactsOutput"
	HookBeforeTemplateArtifacts       = "beforeTemplateArtifacts"
	HookBeforeTemplateArtifactsOutput = "beforeTemplateArtifactsOutput"
)

// HookNames lists every hook slot in declaration order.
var HookNames = []string{
	HookBeforeIndexHTML,
	HookBeforeIndexHTMLOutput,
	HookBeforeWebpack,
	HookAfterWebpack,
	HookBeforeRoutes,
	HookBeforeRoutesResolve,
	HookAfterRoutes,
	HookBeforeSiteData,
	HookAfterSiteData,
	HookBeforeDirectories,
	HookAfterDirectories,
	HookBeforePluginArtifacts,
	HookBeforePluginArtifactsOutput,
	HookBeforeTemplateArtifacts,
	HookBeforeTemplateArtifactsOutput,
}

// NewHooks returns a Hooks with every slot set to the identity.
func NewHooks() Hooks {
	return Hooks{
		BeforeIndexHTML:               PassThrough[DocumentArgs](),
		BeforeIndexHTMLOutput:         PassThrough[HTMLArgs](),
		BeforeWebpack:                 PassThrough[BundleArgs](),
		AfterWebpack:                  PassThrough[BundleArgs](),
		BeforeRoutes:                  PassThrough[State](),
		BeforeRoutesResolve:           PassThrough[RoutesArgs](),
		AfterRoutes:                   PassThrough[ResolvedRoutesArgs](),
		BeforeSiteData:                PassThrough[State](),
		AfterSiteData:                 PassThrough[SiteArgs](),
		BeforeDirectories:             PassThrough[State](),
		AfterDirectories:              PassThrough[State](),
		BeforePluginArtifacts:         PassThrough[State](),
		BeforePluginArtifactsOutput:   PassThrough[ArtifactArgs](),
		BeforeTemplateArtifacts:       PassThrough[State](),
		BeforeTemplateArtifactsOutput: PassThrough[ArtifactArgs](),
	}
}

// Then composes h with next slot by slot: h runs first.
func (h Hooks) Then(next Hooks) Hooks {
	return Hooks{
		BeforeIndexHTML:               Chain(h.BeforeIndexHTML, next.BeforeIndexHTML),
		BeforeIndexHTMLOutput:         Chain(h.BeforeIndexHTMLOutput, next.BeforeIndexHTMLOutput),
		BeforeWebpack:                 Chain(h.BeforeWebpack, next.BeforeWebpack),
		AfterWebpack:                  Chain(h.AfterWebpack, next.AfterWebpack),
		BeforeRoutes:                  Chain(h.BeforeRoutes, next.BeforeRoutes),
		BeforeRoutesResolve:           Chain(h.BeforeRoutesResolve, next.BeforeRoutesResolve),
		AfterRoutes:                   Chain(h.AfterRoutes, next.AfterRoutes),
		BeforeSiteData:                Chain(h.BeforeSiteData, next.BeforeSiteData),
		AfterSiteData:                 Chain(h.AfterSiteData, next.AfterSiteData),
		BeforeDirectories:             Chain(h.BeforeDirectories, next.BeforeDirectories),
		AfterDirectories:              Chain(h.AfterDirectories, next.AfterDirectories),
		BeforePluginArtifacts:         Chain(h.BeforePluginArtifacts, next.BeforePluginArtifacts),
		BeforePluginArtifactsOutput:   Chain(h.BeforePluginArtifactsOutput, next.BeforePluginArtifactsOutput),
		BeforeTemplateArtifacts:       Chain(h.BeforeTemplateArtifacts, next.BeforeTemplateArtifacts),
		BeforeTemplateArtifactsOutput: Chain(h.BeforeTemplateArtifactsOutput, next.BeforeTemplateArtifactsOutput),
	}
}

// Set assigns fn to the slot called name. It reports false for unknown names
// and returns ErrInvalidHook when fn has the wrong shape for the slot.
func (h *Hooks) Set(name string, fn any) (bool, error) {
	var err error
	switch name {
	case HookBeforeIndexHTML:
		err = assign(&h.BeforeIndexHTML, name, fn)
	case HookBeforeIndexHTMLOutput:
		err = assign(&h.BeforeIndexHTMLOutput, name, fn)
	case HookBeforeWebpack:
		err = assign(&h.BeforeWebpack, name, fn)
	case HookAfterWebpack:
		err = assign(&h.AfterWebpack, name, fn)
	case HookBeforeRoutes:
		err = assign(&h.BeforeRoutes, name, fn)
	case HookBeforeRoutesResolve:
		err = assign(&h.BeforeRoutesResolve, name, fn)
	case HookAfterRoutes:
		err = assign(&h.AfterRoutes, name, fn)
	case HookBeforeSiteData:
		err = assign(&h.BeforeSiteData, name, fn)
	case HookAfterSiteData:
		err = assign(&h.AfterSiteData, name, fn)
	case HookBeforeDirectories:
		err = assign(&h.BeforeDirectories, name, fn)
	case HookAfterDirectories:
		err = assign(&h.AfterDirectories, name, fn)
	case HookBeforePluginArtifacts:
		err = assign(&h.BeforePluginArtifacts, name, fn)
	case HookBeforePluginArtifactsOutput:
		err = assign(&h.BeforePluginArtifactsOutput, name, fn)
	case HookBeforeTemplateArtifacts:
		err = assign(&h.BeforeTemplateArtifacts, name, fn)
	case HookBeforeTemplateArtifactsOutput:
		err = assign(&h.BeforeTemplateArtifactsOutput, name, fn)
	default:
		return false, nil
	}
	return true, err
}

func assign[T any](dst *Hook[T], name string, fn any) error {
	switch f := fn.(type) {
	case nil:
		*dst = nil
	case Hook[T]:
		*dst = f
	case func(context.Context, T) (T, error):
		*dst = f
	case func(T) (T, error):
		*dst = func(_ context.Context, in T) (T, error) { return f(in) }
	case func(T) T:
		*dst = func(_ context.Context, in T) (T, error) { return f(in), nil }
	default:
		var zero T
		return fmt.Errorf("%w: %s must be func(context.Context, %T) (%T, error), got %T", ErrInvalidHook, name, zero, zero, fn)
	}
	return nil
}
