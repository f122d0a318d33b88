// Package remoteresource provides a generic keyed fetch cache. Reads never
// block: a miss starts (or joins) a single in-flight load for the key and
// returns a Pending handle that the caller's scheduler waits on before
// retrying. Freshness and revalidation are delegated to a pluggable Policy.
package remoteresource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 512
	DefaultCacheTTL  = time.Hour
)

var (
	errNilPending  = errors.New("remoteresource: pending result without handle")
	errMissingFunc = errors.New("remoteresource: CreateRequest, ExecuteRequest and TransformResponse are required")
)

// PolicyOptions are consulted when building a policy for a fresh response.
type PolicyOptions struct {
	// Shared treats the cache as a shared (proxy) cache rather than a private one.
	Shared bool
}

// Policy answers freshness and revalidation questions for a cached entry.
type Policy[Req, Resp any] interface {
	Storable() bool
	SatisfiesWithoutRevalidation(req Req) bool
	// Revalidated returns the policy to keep after a revalidation response and
	// whether the underlying resource changed.
	Revalidated(req Req, resp Resp) (Policy[Req, Resp], bool)
}

type CacheOptions struct {
	Size int           // Default: 512
	TTL  time.Duration // Default: 1 hour
}

type Options[Req, Resp, T any] struct {
	CreateRequest     func(ctx context.Context, key string) (Req, error)
	ExecuteRequest    func(ctx context.Context, req Req) (Resp, error)
	TransformResponse func(ctx context.Context, resp Resp) (T, error)

	// NewPolicy builds a policy for a fresh response. When nil, nothing is cached.
	NewPolicy func(req Req, resp Resp, opts PolicyOptions) Policy[Req, Resp]

	// CreatePolicyOptions optionally overrides policy options per key. Returning
	// false selects the defaults (a private cache).
	CreatePolicyOptions func(ctx context.Context, key string) (PolicyOptions, bool, error)

	// PrepareRevalidation optionally decorates a request for a stale cached
	// entry, e.g. with conditional headers.
	PrepareRevalidation func(req Req, cached Policy[Req, Resp]) Req

	// NotModified optionally reports that resp carries no body and the cached
	// item should be reused as-is.
	NotModified func(resp Resp) bool

	Cache CacheOptions
}

type entry[Req, Resp, T any] struct {
	policy Policy[Req, Resp]
	item   T
}

type generation struct {
	epoch uint64
	key   uint64
}

type call[T any] struct {
	pending *Pending
	value   T
	gen     generation
	// waiters counts Reads handed this call's pending handle that have not
	// yet collected the value. Guarded by Resource.mu.
	waiters int
}

// Resource is a keyed fetch cache. It is safe for concurrent use.
type Resource[Req, Resp, T any] struct {
	opts  Options[Req, Resp, T]
	cache *expirable.LRU[string, entry[Req, Resp, T]]

	mu       sync.Mutex
	errs     map[string]error
	inflight map[string]*call[T]
	settled  map[string]*call[T]
	gens     map[string]uint64
	epoch    uint64
}

func New[Req, Resp, T any](opts Options[Req, Resp, T]) (*Resource[Req, Resp, T], error) {
	if opts.CreateRequest == nil || opts.ExecuteRequest == nil || opts.TransformResponse == nil {
		return nil, errMissingFunc
	}
	if opts.Cache.Size <= 0 {
		opts.Cache.Size = DefaultCacheSize
	}
	if opts.Cache.TTL <= 0 {
		opts.Cache.TTL = DefaultCacheTTL
	}
	return &Resource[Req, Resp, T]{
		opts:     opts,
		cache:    expirable.NewLRU[string, entry[Req, Resp, T]](opts.Cache.Size, nil, opts.Cache.TTL),
		errs:     make(map[string]error),
		inflight: make(map[string]*call[T]),
		settled:  make(map[string]*call[T]),
		gens:     make(map[string]uint64),
	}, nil
}

// Read returns the value for key if it is available without network
// activity. A stored error for key is returned as Failed until cleared.
// Otherwise a load is started (or joined) and its handle is returned.
//
// Every Read that was handed a load's pending handle receives that load's
// value on retry, even when the response was not storable.
func (r *Resource[Req, Resp, T]) Read(ctx context.Context, key string) Result[T] {
	r.mu.Lock()
	if err, ok := r.errs[key]; ok {
		r.mu.Unlock()
		return Failed[T](err)
	}
	if c, ok := r.inflight[key]; ok {
		c.waiters++
		r.mu.Unlock()
		return Suspend[T](c.pending)
	}
	if c, ok := r.settled[key]; ok {
		if c.waiters--; c.waiters <= 0 {
			delete(r.settled, key)
		}
		r.mu.Unlock()
		return Ready(c.value)
	}
	cached, hasCached := r.cache.Get(key)
	r.mu.Unlock()

	if hasCached {
		req, err := r.opts.CreateRequest(ctx, key)
		if err == nil && cached.policy.SatisfiesWithoutRevalidation(req) {
			return Ready(cached.item)
		}
	}

	return Suspend[T](r.start(ctx, key, true).pending)
}

// Load starts or joins the load for key and waits for it. Unlike Read it
// always returns the loaded value, storable or not.
func (r *Resource[Req, Resp, T]) Load(ctx context.Context, key string) (T, error) {
	r.mu.Lock()
	if err, ok := r.errs[key]; ok {
		r.mu.Unlock()
		var zero T
		return zero, err
	}
	r.mu.Unlock()

	c := r.start(ctx, key, false)
	if err := c.pending.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	if err := c.pending.Err(); err != nil {
		var zero T
		return zero, err
	}
	return c.value, nil
}

// Preload triggers the load for key and waits for it to settle, swallowing the
// pending signal. Load failures are returned.
func (r *Resource[Req, Resp, T]) Preload(ctx context.Context, key string) error {
	_, err := r.Load(ctx, key)
	return err
}

// Clear drops the cache entry, stored error and in-flight reference for key.
// A load already in flight for key is orphaned: its result is never written.
func (r *Resource[Req, Resp, T]) Clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.errs, key)
	delete(r.inflight, key)
	delete(r.settled, key)
	r.gens[key]++
	r.cache.Remove(key)
}

// ClearAll drops every entry, error and in-flight reference.
func (r *Resource[Req, Resp, T]) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.errs)
	clear(r.inflight)
	clear(r.settled)
	r.epoch++
	r.cache.Purge()
}

// Len reports the number of cached entries.
func (r *Resource[Req, Resp, T]) Len() int {
	return r.cache.Len()
}

// genFor must be called with r.mu held.
func (r *Resource[Req, Resp, T]) genFor(key string) generation {
	return generation{epoch: r.epoch, key: r.gens[key]}
}

// start joins or starts the load for key. wait registers the caller as a
// waiter that will collect the value through Read.
func (r *Resource[Req, Resp, T]) start(ctx context.Context, key string, wait bool) *call[T] {
	r.mu.Lock()
	if c, ok := r.inflight[key]; ok {
		if wait {
			c.waiters++
		}
		r.mu.Unlock()
		return c
	}
	c := &call[T]{pending: newPending(), gen: r.genFor(key)}
	if wait {
		c.waiters = 1
	}
	delete(r.settled, key)
	r.inflight[key] = c
	r.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	go func() {
		v, err := r.load(loadCtx, key, c)
		r.settle(key, c, v, err)
	}()
	return c
}

func (r *Resource[Req, Resp, T]) settle(key string, c *call[T], v T, err error) {
	c.value = v

	r.mu.Lock()
	current := r.inflight[key] == c && r.genFor(key) == c.gen
	if r.inflight[key] == c {
		delete(r.inflight, key)
	}
	if current {
		if err != nil {
			r.errs[key] = err
		} else if c.waiters > 0 {
			r.settled[key] = c
		}
	}
	r.mu.Unlock()

	c.pending.settle(err)
}

func (r *Resource[Req, Resp, T]) load(ctx context.Context, key string, c *call[T]) (T, error) {
	var zero T

	req, err := r.opts.CreateRequest(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("create request for %q: %w", key, err)
	}

	cached, hasCached := r.cache.Peek(key)
	if hasCached && cached.policy.SatisfiesWithoutRevalidation(req) {
		return cached.item, nil
	}

	policyOpts, err := r.policyOptions(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("create cache policy options for %q: %w", key, err)
	}

	if hasCached && r.opts.PrepareRevalidation != nil {
		req = r.opts.PrepareRevalidation(req, cached.policy)
	}

	resp, err := r.opts.ExecuteRequest(ctx, req)
	if err != nil {
		return zero, err
	}

	if hasCached && r.opts.NotModified != nil && r.opts.NotModified(resp) {
		refreshed, _ := cached.policy.Revalidated(req, resp)
		r.store(key, c, entry[Req, Resp, T]{policy: refreshed, item: cached.item})
		return cached.item, nil
	}

	item, err := r.opts.TransformResponse(ctx, resp)
	if err != nil {
		return zero, err
	}

	if r.opts.NewPolicy == nil {
		return item, nil
	}
	policy := r.opts.NewPolicy(req, resp, policyOpts)
	if !policy.Storable() {
		return item, nil
	}

	if hasCached {
		if refreshed, modified := cached.policy.Revalidated(req, resp); !modified {
			r.store(key, c, entry[Req, Resp, T]{policy: refreshed, item: item})
			return item, nil
		}
	}

	r.store(key, c, entry[Req, Resp, T]{policy: policy, item: item})
	return item, nil
}

// store writes e only if the key has not been cleared since c started.
func (r *Resource[Req, Resp, T]) store(key string, c *call[T], e entry[Req, Resp, T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.genFor(key) != c.gen {
		return
	}
	r.cache.Add(key, e)
}

func (r *Resource[Req, Resp, T]) policyOptions(ctx context.Context, key string) (PolicyOptions, error) {
	if r.opts.CreatePolicyOptions != nil {
		opts, ok, err := r.opts.CreatePolicyOptions(ctx, key)
		if err != nil {
			return PolicyOptions{}, err
		}
		if ok {
			return opts, nil
		}
	}
	return PolicyOptions{Shared: false}, nil
}
