package remoteresource

import "context"

type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Pending is a handle to an in-flight operation. It is a control signal, not an
// error: callers wait for it to settle and then retry the read that produced it.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) settle(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the operation settles.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation settles or ctx is done. It returns only the
// context error; the outcome of the operation is observed by retrying the read.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the operation's error once settled, nil otherwise.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Result is the outcome of a synchronous read: Ready, Pending or Failed.
type Result[T any] struct {
	status  Status
	value   T
	pending *Pending
	err     error
}

func Ready[T any](v T) Result[T] {
	return Result[T]{status: StatusReady, value: v}
}

func Suspend[T any](p *Pending) Result[T] {
	return Result[T]{status: StatusPending, pending: p}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{status: StatusFailed, err: err}
}

func (r Result[T]) Status() Status    { return r.status }
func (r Result[T]) Value() T          { return r.value }
func (r Result[T]) Pending() *Pending { return r.pending }
func (r Result[T]) Err() error        { return r.err }
func (r Result[T]) IsReady() bool     { return r.status == StatusReady }
func (r Result[T]) IsPending() bool   { return r.status == StatusPending }
func (r Result[T]) IsFailed() bool    { return r.status == StatusFailed }

// Await is a minimal scheduler: it invokes read until it yields Ready or
// Failed, waiting on each Pending handle in between.
func Await[T any](ctx context.Context, read func() Result[T]) (T, error) {
	for {
		r := read()
		switch r.status {
		case StatusReady:
			return r.value, nil
		case StatusFailed:
			var zero T
			return zero, r.err
		}
		if r.pending == nil {
			var zero T
			return zero, errNilPending
		}
		if err := r.pending.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
}
