package static

import (
	"context"
	"encoding/json"
	"fmt"
)

// maxResolveDepth bounds repeated function unwrapping.
const maxResolveDepth = 32

// Resolve unwraps a resolvable value. Functions are called, and their results
// resolved again, until a non-function value results. Supported function
// shapes:
//
//	func() any
//	func() (any, error)
//	func(context.Context) (any, error)
//	func(context.Context) any
//	<-chan any (a single value is received)
func Resolve(ctx context.Context, v any) (any, error) {
	for range maxResolveDepth {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, isFunc, err := step(ctx, v)
		if err != nil {
			return nil, err
		}
		if !isFunc {
			return v, nil
		}
		v = next
	}
	return nil, fmt.Errorf("static: value still resolves to a function after %d calls", maxResolveDepth)
}

func step(ctx context.Context, v any) (any, bool, error) {
	switch f := v.(type) {
	case func() any:
		return f(), true, nil
	case func() (any, error):
		out, err := f()
		return out, true, err
	case func(context.Context) (any, error):
		out, err := f(ctx)
		return out, true, err
	case func(context.Context) any:
		return f(ctx), true, nil
	case <-chan any:
		select {
		case out := <-f:
			return out, true, nil
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	default:
		return v, false, nil
	}
}

// ResolveObject resolves v and converts it into a JSON object. Nil becomes an
// empty object.
func ResolveObject(ctx context.Context, v any) (map[string]any, error) {
	resolved, err := Resolve(ctx, v)
	if err != nil {
		return nil, err
	}
	return ToObject(resolved)
}

// ToObject converts v into a JSON object, round-tripping through JSON for
// struct values.
func ToObject(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("static: encode %T: %w", v, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("static: %T is not an object: %w", v, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// ResolveRouteConfigs resolves v into a list of route configs. It accepts
// []RouteConfig, []*RouteConfig, a single RouteConfig, or a resolvable
// producing one of these. Nil yields no routes.
func ResolveRouteConfigs(ctx context.Context, v any) ([]RouteConfig, error) {
	resolved, err := Resolve(ctx, v)
	if err != nil {
		return nil, err
	}
	switch t := resolved.(type) {
	case nil:
		return nil, nil
	case []RouteConfig:
		return t, nil
	case []*RouteConfig:
		out := make([]RouteConfig, 0, len(t))
		for _, r := range t {
			if r != nil {
				out = append(out, *r)
			}
		}
		return out, nil
	case RouteConfig:
		return []RouteConfig{t}, nil
	case *RouteConfig:
		if t == nil {
			return nil, nil
		}
		return []RouteConfig{*t}, nil
	case []any:
		out := make([]RouteConfig, 0, len(t))
		for i, item := range t {
			rc, err := RouteConfigFrom(item)
			if err != nil {
				return nil, fmt.Errorf("route %d: %w", i, err)
			}
			out = append(out, rc)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("static: cannot use %T as routes", resolved)
	}
}

// RouteConfigFrom converts decoded configuration (a map) into a RouteConfig.
func RouteConfigFrom(v any) (RouteConfig, error) {
	switch t := v.(type) {
	case RouteConfig:
		return t, nil
	case *RouteConfig:
		return *t, nil
	case map[string]any:
		rc := RouteConfig{Data: t["data"], GetData: t["getData"], Children: t["children"]}
		if p, ok := t["path"].(string); ok {
			rc.Path = p
		} else if t["path"] != nil {
			return rc, fmt.Errorf("static: route path must be a string, got %T", t["path"])
		}
		if tpl, ok := t["template"].(string); ok {
			rc.Template = tpl
		}
		return rc, nil
	default:
		return RouteConfig{}, fmt.Errorf("static: cannot use %T as a route", v)
	}
}
