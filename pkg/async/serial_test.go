package async_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/pkg/async"
)

func TestSerial_RunsInOrder(t *testing.T) {
	t.Parallel()

	var s async.Serial
	var got []int

	for i := range 5 {
		s.Push(func() { got = append(got, i) })
	}
	assert.Equal(t, 5, s.Pending())

	s.Drain()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Zero(t, s.Pending())
}

func TestSerial_ReentrantPushRunsAfterCurrent(t *testing.T) {
	t.Parallel()

	var s async.Serial
	var got []string

	s.Do(func() {
		got = append(got, "outer-start")
		s.Do(func() { got = append(got, "nested") })
		got = append(got, "outer-end")
	})

	assert.Equal(t, []string{"outer-start", "outer-end", "nested"}, got)
}

func TestSerial_IgnoresNil(t *testing.T) {
	t.Parallel()

	var s async.Serial
	s.Push(nil)
	assert.Zero(t, s.Pending())
	s.Drain()
}

func TestSerial_NeverRunsConcurrently(t *testing.T) {
	t.Parallel()

	var s async.Serial
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		total   int
	)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Do(func() {
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()

				mu.Lock()
				active--
				total++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 50, total)
	assert.Equal(t, 1, maxSeen)
}
