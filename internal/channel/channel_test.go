package channel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair[T any] struct {
	name string
	make func() (Sender[T], Receiver[T])
}

func pairs() []pair[int] {
	return []pair[int]{
		{name: "unbounded", make: Unbounded[int]},
		{name: "bounded", make: func() (Sender[int], Receiver[int]) { return Bounded[int](64) }},
	}
}

func TestChannel_SendReceiveFIFO(t *testing.T) {
	for _, p := range pairs() {
		t.Run(p.name, func(t *testing.T) {
			tx, rx := p.make()

			for i := 1; i <= 3; i++ {
				require.NoError(t, tx.TrySend(i))
			}
			assert.Equal(t, 3, rx.Len())

			for i := 1; i <= 3; i++ {
				v, err := rx.TryRecv()
				require.NoError(t, err)
				assert.Equal(t, i, v)
			}

			_, err := rx.TryRecv()
			assert.ErrorIs(t, err, ErrEmpty)
		})
	}
}

func TestChannel_ReceiverClosed(t *testing.T) {
	for _, p := range pairs() {
		t.Run(p.name, func(t *testing.T) {
			tx, rx := p.make()
			require.NoError(t, tx.TrySend(1))

			rx.Close()
			rx.Close()

			assert.ErrorIs(t, tx.TrySend(2), ErrDisconnected)
			assert.ErrorIs(t, tx.Clone().TrySend(3), ErrDisconnected)
			assert.Equal(t, 0, rx.Len(), "queued values are discarded")
		})
	}
}

func TestChannel_AllSendersClosed(t *testing.T) {
	for _, p := range pairs() {
		t.Run(p.name, func(t *testing.T) {
			tx, rx := p.make()
			clone := tx.Clone()

			require.NoError(t, tx.TrySend(1))
			require.NoError(t, clone.TrySend(2))

			tx.Close()
			_, err := rx.TryRecv()
			require.NoError(t, err, "one slot is still open")

			clone.Close()
			clone.Close()

			v, err := rx.TryRecv()
			require.NoError(t, err, "values sent before disconnect are still delivered")
			assert.Equal(t, 2, v)

			_, err = rx.TryRecv()
			assert.ErrorIs(t, err, ErrDisconnected)
		})
	}
}

func TestChannel_EmptyWhileSenderAlive(t *testing.T) {
	for _, p := range pairs() {
		t.Run(p.name, func(t *testing.T) {
			tx, rx := p.make()
			defer tx.Close()

			_, err := rx.TryRecv()
			assert.ErrorIs(t, err, ErrEmpty)
		})
	}
}

func TestChannel_SendOnClosedSlot(t *testing.T) {
	for _, p := range pairs() {
		t.Run(p.name, func(t *testing.T) {
			tx, rx := p.make()
			keep := tx.Clone()
			defer keep.Close()

			tx.Close()
			assert.ErrorIs(t, tx.TrySend(1), ErrDisconnected)

			_, err := rx.TryRecv()
			assert.ErrorIs(t, err, ErrEmpty)
		})
	}
}

func TestBounded_Full(t *testing.T) {
	tx, rx := Bounded[int](2)

	require.NoError(t, tx.TrySend(1))
	require.NoError(t, tx.TrySend(2))
	assert.ErrorIs(t, tx.TrySend(3), ErrFull)

	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.NoError(t, tx.TrySend(3))
}

func TestBounded_MinimumCapacity(t *testing.T) {
	tx, _ := Bounded[int](0)

	require.NoError(t, tx.TrySend(1))
	assert.ErrorIs(t, tx.TrySend(2), ErrFull)
}

func TestUnbounded_NeverFull(t *testing.T) {
	tx, rx := Unbounded[int]()

	for i := 0; i < 100_000; i++ {
		require.NoError(t, tx.TrySend(i))
	}
	assert.Equal(t, 100_000, rx.Len())
}

func TestUnbounded_ConcurrentSenders(t *testing.T) {
	const producers = 16
	const perProducer = 500

	tx, rx := Unbounded[[2]int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		clone := tx.Clone()
		go func(p int) {
			defer wg.Done()
			defer clone.Close()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, clone.TrySend([2]int{p, i}))
			}
		}(p)
	}
	wg.Wait()
	tx.Close()

	next := make([]int, producers)
	total := 0
	for {
		v, err := rx.TryRecv()
		if err != nil {
			assert.ErrorIs(t, err, ErrDisconnected)
			break
		}
		assert.Equal(t, next[v[0]], v[1], "producer %d out of order", v[0])
		next[v[0]] = v[1] + 1
		total++
	}
	assert.Equal(t, producers*perProducer, total)
}
