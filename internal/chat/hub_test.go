package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technologicalMayhem/chat-app/internal/apperr"
	"github.com/technologicalMayhem/chat-app/internal/models"
	"github.com/technologicalMayhem/chat-app/internal/store/memory"
)

func newTestHub(t *testing.T, maxWaiters int) (*Hub, *Log) {
	t.Helper()
	messages := memory.NewMessageStore()
	hub, err := NewHub(context.Background(), messages, maxWaiters)
	require.NoError(t, err)
	return hub, NewLog(messages, hub)
}

func TestAwaitNewFastPath(t *testing.T) {
	t.Parallel()
	hub, log := newTestHub(t, 0)

	_, err := log.Append(context.Background(), 1, "already here")
	require.NoError(t, err)

	start := time.Now()
	msgs, err := hub.AwaitNew(context.Background(), 0, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "already here", msgs[0].Text)
	assert.Less(t, time.Since(start), time.Second, "fast path must not wait")
}

func TestAwaitNewWokenByAppend(t *testing.T) {
	t.Parallel()
	hub, log := newTestHub(t, 0)

	results := make(chan []models.Message, 1)
	go func() {
		msgs, err := hub.AwaitNew(context.Background(), 0, 5*time.Second)
		if err != nil {
			results <- nil
			return
		}
		results <- msgs
	}()

	// Wait until the poller is actually parked before appending.
	require.Eventually(t, func() bool { return hub.Pending() == 1 },
		time.Second, time.Millisecond)

	_, err := log.Append(context.Background(), 7, "wake up")
	require.NoError(t, err)

	select {
	case msgs := <-results:
		require.Len(t, msgs, 1)
		assert.Equal(t, "wake up", msgs[0].Text)
		assert.Equal(t, int64(7), msgs[0].UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was never woken")
	}

	assert.Equal(t, 0, hub.Pending())
}

// The classic missed-wakeup race: an append landing between the "nothing
// new" check and waiter registration must still be delivered before the
// deadline. Hammer the interleaving; any lost wakeup shows up as a poll
// that returns empty despite a qualifying message existing.
func TestAwaitNewNoMissedWakeup(t *testing.T) {
	t.Parallel()
	hub, log := newTestHub(t, 0)

	for i := 0; i < 100; i++ {
		cursor := hub.LastID()

		type result struct {
			msgs []models.Message
			err  error
		}
		resCh := make(chan result, 1)
		go func() {
			msgs, err := hub.AwaitNew(context.Background(), cursor, 3*time.Second)
			resCh <- result{msgs, err}
		}()

		_, err := log.Append(context.Background(), 1, "racer")
		require.NoError(t, err)

		select {
		case res := <-resCh:
			require.NoError(t, res.err)
			require.NotEmpty(t, res.msgs, "append raced past the waiter and was lost")
			assert.Greater(t, res.msgs[0].ID, cursor)
		case <-time.After(2 * time.Second):
			t.Fatal("poll did not resolve after a qualifying append")
		}
	}
}

func TestAwaitNewTimeout(t *testing.T) {
	t.Parallel()
	hub, _ := newTestHub(t, 0)

	timeout := 100 * time.Millisecond
	start := time.Now()
	msgs, err := hub.AwaitNew(context.Background(), 0, timeout)
	elapsed := time.Since(start)

	require.NoError(t, err, "an empty interval is not an error")
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, elapsed, timeout, "must not return early")
	assert.Equal(t, 0, hub.Pending(), "timed-out waiter must be removed")
}

func TestWaitersResolvedIndependently(t *testing.T) {
	t.Parallel()
	hub, log := newTestHub(t, 0)

	_, err := log.Append(context.Background(), 1, "first")
	require.NoError(t, err)
	firstID := hub.LastID()

	type result struct {
		msgs []models.Message
		err  error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)

	// Two parked pollers at the same cursor; one append must resolve
	// both, and neither may block the other.
	go func() {
		msgs, err := hub.AwaitNew(context.Background(), firstID, 5*time.Second)
		resA <- result{msgs, err}
	}()
	go func() {
		msgs, err := hub.AwaitNew(context.Background(), firstID, 5*time.Second)
		resB <- result{msgs, err}
	}()
	require.Eventually(t, func() bool { return hub.Pending() == 2 },
		time.Second, time.Millisecond)

	_, err = log.Append(context.Background(), 2, "second")
	require.NoError(t, err)

	for _, ch := range []chan result{resA, resB} {
		select {
		case res := <-ch:
			require.NoError(t, res.err)
			require.Len(t, res.msgs, 1)
			assert.Equal(t, "second", res.msgs[0].Text)
		case <-time.After(2 * time.Second):
			t.Fatal("a waiter was not resolved by the append")
		}
	}
}

func TestAwaitNewDifferentCursorsOneAppend(t *testing.T) {
	t.Parallel()
	hub, log := newTestHub(t, 0)

	_, err := log.Append(context.Background(), 1, "first")
	require.NoError(t, err)

	type result struct {
		msgs []models.Message
		err  error
	}
	behind := make(chan result, 1)
	current := make(chan result, 1)

	go func() {
		msgs, err := hub.AwaitNew(context.Background(), 0, 5*time.Second)
		behind <- result{msgs, err}
	}()
	go func() {
		msgs, err := hub.AwaitNew(context.Background(), hub.LastID(), 5*time.Second)
		current <- result{msgs, err}
	}()

	// The cursor-0 poll resolves on the fast path with "first". The
	// current-cursor poll parks until the next append.
	res := <-behind
	require.NoError(t, res.err)
	require.Len(t, res.msgs, 1)
	assert.Equal(t, "first", res.msgs[0].Text)

	require.Eventually(t, func() bool { return hub.Pending() == 1 },
		time.Second, time.Millisecond)
	_, err = log.Append(context.Background(), 2, "second")
	require.NoError(t, err)

	res = <-current
	require.NoError(t, res.err)
	require.Len(t, res.msgs, 1)
	assert.Equal(t, "second", res.msgs[0].Text)
}

func TestAwaitNewBatchedAppends(t *testing.T) {
	t.Parallel()
	hub, log := newTestHub(t, 0)

	done := make(chan []models.Message, 1)
	go func() {
		msgs, _ := hub.AwaitNew(context.Background(), 0, 5*time.Second)
		done <- msgs
	}()
	require.Eventually(t, func() bool { return hub.Pending() == 1 },
		time.Second, time.Millisecond)

	// Several appends in quick succession: the waiter reads at wake
	// time, so it must see a prefix-complete, ordered batch — never
	// just the message that triggered the wake, never out of order.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Append(context.Background(), 1, "burst")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs := <-done
	require.NotEmpty(t, msgs)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID, "batch must ascend by id")
	}
	assert.Equal(t, int64(1), msgs[0].ID, "batch must start right after the cursor")
}

func TestAwaitNewContextCancelRemovesWaiter(t *testing.T) {
	t.Parallel()
	hub, _ := newTestHub(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := hub.AwaitNew(ctx, 0, 30*time.Second)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return hub.Pending() == 1 },
		time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}
	assert.Equal(t, 0, hub.Pending(), "disconnect must free the pending slot")
}

func TestAwaitNewWaiterBound(t *testing.T) {
	t.Parallel()
	hub, _ := newTestHub(t, 1)

	go hub.AwaitNew(context.Background(), 0, 5*time.Second)
	require.Eventually(t, func() bool { return hub.Pending() == 1 },
		time.Second, time.Millisecond)

	_, err := hub.AwaitNew(context.Background(), 0, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrHubFull))
}

func TestConcurrentAppendsStrictOrder(t *testing.T) {
	t.Parallel()
	_, log := newTestHub(t, 0)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Append(context.Background(), 1, "concurrent")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := log.Since(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, msgs, n)

	seen := make(map[int64]bool)
	for i, msg := range msgs {
		assert.False(t, seen[msg.ID], "duplicate id %d", msg.ID)
		seen[msg.ID] = true
		if i > 0 {
			assert.Greater(t, msg.ID, msgs[i-1].ID)
		}
	}
}

// commitLagStore assigns sequence ids immediately but makes the row
// readable only after a delay for odd ids, imitating a backend where id
// assignment and the commit that makes the row visible are separate
// steps that interleave across writers.
type commitLagStore struct {
	lag time.Duration

	mu      sync.Mutex
	nextID  int64
	visible []models.Message
}

func (s *commitLagStore) Append(_ context.Context, userID int64, text string) (*models.Message, error) {
	s.mu.Lock()
	s.nextID++
	msg := models.Message{ID: s.nextID, CreatedAt: time.Now(), Text: text, UserID: userID}
	s.mu.Unlock()

	if msg.ID%2 == 1 {
		time.Sleep(s.lag)
	}

	s.mu.Lock()
	s.visible = append(s.visible, msg)
	s.mu.Unlock()
	return &msg, nil
}

func (s *commitLagStore) Since(_ context.Context, cursor int64, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Message{}
	for _, m := range s.visible {
		if m.ID > cursor {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *commitLagStore) LastID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last int64
	for _, m := range s.visible {
		if m.ID > last {
			last = m.ID
		}
	}
	return last, nil
}

// A poller that advances its cursor after every wake must never skip an
// id whose write was still in flight when a higher id was announced.
// Each round races a slow (odd) id against a fast (even) one; every
// message has to reach the consumer exactly once, in id order.
func TestNoLossWhenWritesCommitOutOfOrder(t *testing.T) {
	t.Parallel()

	lagged := &commitLagStore{lag: 20 * time.Millisecond}
	hub, err := NewHub(context.Background(), lagged, 0)
	require.NoError(t, err)
	log := NewLog(lagged, hub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	const pairs = 10
	done := make(chan struct{})
	var collected []models.Message
	go func() {
		defer close(done)
		var cursor int64
		for len(collected) < 2*pairs {
			msgs, err := hub.AwaitNew(ctx, cursor, 500*time.Millisecond)
			if ctx.Err() != nil {
				return
			}
			if !assert.NoError(t, err) {
				return
			}
			collected = append(collected, msgs...)
			if len(msgs) > 0 {
				cursor = msgs[len(msgs)-1].ID
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				_, err := log.Append(context.Background(), 1, "racing")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer never saw every message; a committed id was skipped")
	}

	require.Len(t, collected, 2*pairs)
	for i, msg := range collected {
		assert.Equal(t, int64(i+1), msg.ID)
	}
}
