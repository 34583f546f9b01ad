package queue

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs a fixed number of workers over a Queue. The first worker
// error cancels the group's context; Wait returns that error.
type Pool[T any] struct {
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// Run launches noWorkers goroutines, each looping Pop until the queue
// drains, calling work for every item. A work error cancels the group
// context; the surviving workers still receive the remaining items so
// that ordering handshakes (the coder section) keep advancing, and the
// work function decides how cheaply to skip them.
func Run[T any](parent context.Context, q *Queue[T], noWorkers int, work func(ctx context.Context, item T) error) *Pool[T] {
	ctx, cancel := context.WithCancel(parent)
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < noWorkers; i++ {
		g.Go(func() error {
			for {
				item, ok := q.Pop()
				if !ok {
					return nil
				}
				if err := work(ctx, item); err != nil {
					return err
				}
			}
		})
	}

	return &Pool[T]{g: g, ctx: ctx, cancel: cancel}
}

// Wait blocks until every worker has exited and returns the first error
// observed, if any. Callers must MarkProducerDone on the queue first or
// Wait blocks forever.
func (p *Pool[T]) Wait() error {
	err := p.g.Wait()
	p.cancel()
	return err
}
