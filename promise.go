package amqp091

import (
	"context"
	"sync"
)

// promise is a one-shot completion handle. The producing side resolves or
// rejects it exactly once; redundant completions are dropped. Waiters
// select on done.
type promise[T any] struct {
	once sync.Once
	done chan struct{}

	val T
	err error
}

func newPromise[T any]() *promise[T] {
	return &promise[T]{done: make(chan struct{})}
}

func (p *promise[T]) resolve(v T) {
	p.once.Do(func() {
		p.val = v
		close(p.done)
	})
}

func (p *promise[T]) reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *promise[T]) complete(v T, err error) {
	if err != nil {
		p.reject(err)
		return
	}
	p.resolve(v)
}

// await blocks until the promise completes or ctx is done. Abandoning an
// await does not cancel the underlying operation.
func (p *promise[T]) await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
