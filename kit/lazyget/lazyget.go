// Package lazyget memoizes expensive initializers, such as compiled schemas,
// behind a getter that runs the initializer at most once.
package lazyget

import "sync"

// ErrCache holds the outcome of an initializer that can fail. A failed
// initializer is not retried: the error is returned to every caller.
type ErrCache[T any] struct {
	val  T
	err  error
	once sync.Once
}

func (v *ErrCache[T]) Get(initFunc func() (T, error)) (T, error) {
	v.once.Do(func() { v.val, v.err = initFunc() })
	return v.val, v.err
}

func NewErr[T any](fn func() (T, error)) func() (T, error) {
	var v ErrCache[T]
	return func() (T, error) { return v.Get(fn) }
}
