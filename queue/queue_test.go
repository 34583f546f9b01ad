package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueDrainsInOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	q.MarkProducerDone()

	for i := 0; i < 10; i++ {
		item, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, item)
	}
	_, ok := q.Pop()
	require.False(t, ok, "Pop after drain should report done")
}

func TestPoolProcessesEverything(t *testing.T) {
	q := New[int]()
	var sum atomic.Int64

	pool := Run(context.Background(), q, 8, func(_ context.Context, item int) error {
		sum.Add(int64(item))
		return nil
	})

	total := int64(0)
	for i := 1; i <= 1000; i++ {
		q.Push(i)
		total += int64(i)
	}
	q.MarkProducerDone()

	require.NoError(t, pool.Wait())
	require.Equal(t, total, sum.Load())
}

func TestPoolSurfacesFirstError(t *testing.T) {
	q := New[int]()
	boom := errors.New("boom")

	pool := Run(context.Background(), q, 4, func(_ context.Context, item int) error {
		if item == 7 {
			return boom
		}
		return nil
	})

	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	q.MarkProducerDone()

	require.ErrorIs(t, pool.Wait(), boom)
}

func TestCoderSectionOrdersParts(t *testing.T) {
	s := NewCoderSection()
	const stream = uint32(3)
	const parts = 50

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := parts - 1; i >= 0; i-- {
		wg.Add(1)
		go func(part int) {
			defer wg.Done()
			s.Enter(stream, part)
			mu.Lock()
			order = append(order, part)
			mu.Unlock()
			s.Leave(stream, part)
		}(i)
	}
	wg.Wait()

	require.Len(t, order, parts)
	for i, part := range order {
		require.Equal(t, i, part, "parts must append in increasing index order")
	}
}
