// Package chat holds the delivery core: the append-only message log and
// the hub that parks long-poll requests until something new arrives.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/technologicalMayhem/chat-app/internal/apperr"
	"github.com/technologicalMayhem/chat-app/internal/models"
	"github.com/technologicalMayhem/chat-app/internal/store"
)

// waiter is one parked poll request: the cursor the caller already has
// and a channel to wake it on. The channel is buffered so Advance never
// blocks on a waiter, and each waiter is signalled at most once.
type waiter struct {
	cursor int64
	wake   chan struct{}
}

// Hub coordinates appenders and pollers.
//
// The single mutex covers both the waiter set and lastID. That is the
// whole missed-wakeup defense: AwaitNew checks lastID and registers under
// one critical section, Advance bumps lastID and wakes under the same
// one, so an append can never slip between "nothing new yet" and "I'm
// registered".
type Hub struct {
	messages store.MessageStore

	mu         sync.Mutex
	lastID     int64
	waiters    map[*waiter]struct{}
	maxWaiters int
}

// NewHub seeds lastID from the store so cursors from before a restart
// resolve correctly.
func NewHub(ctx context.Context, messages store.MessageStore, maxWaiters int) (*Hub, error) {
	last, err := messages.LastID(ctx)
	if err != nil {
		return nil, err
	}
	return &Hub{
		messages:   messages,
		lastID:     last,
		waiters:    make(map[*waiter]struct{}),
		maxWaiters: maxWaiters,
	}, nil
}

// AwaitNew blocks until a message with id > cursor exists, then returns
// everything after the cursor in id order. An elapsed timeout returns an
// empty, non-nil slice and no error: "nothing new yet" is a normal
// answer, the caller just polls again. A cancelled ctx (client gone)
// deregisters the waiter and returns the context error.
func (h *Hub) AwaitNew(ctx context.Context, cursor int64, timeout time.Duration) ([]models.Message, error) {
	// Fast path: data already exists, no need to park.
	msgs, err := h.messages.Since(ctx, cursor, 0)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		return msgs, nil
	}

	w := &waiter{cursor: cursor, wake: make(chan struct{}, 1)}

	h.mu.Lock()
	if h.lastID > cursor {
		// An append raced in after the Since above. Don't park — the
		// data is there, re-read it.
		h.mu.Unlock()
		return h.messages.Since(ctx, cursor, 0)
	}
	if h.maxWaiters > 0 && len(h.waiters) >= h.maxWaiters {
		h.mu.Unlock()
		return nil, apperr.ErrHubFull
	}
	h.waiters[w] = struct{}{}
	h.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.wake:
		// Re-query at wake time rather than handing over the triggering
		// message: if several appends raced, the waiter gets all of them
		// in order instead of a partial view.
		return h.messages.Since(ctx, cursor, 0)
	case <-timer.C:
		h.remove(w)
		// The wake may have landed in the same instant the timer fired.
		// Prefer delivering data over reporting an empty interval.
		select {
		case <-w.wake:
			return h.messages.Since(ctx, cursor, 0)
		default:
		}
		return []models.Message{}, nil
	case <-ctx.Done():
		h.remove(w)
		return nil, ctx.Err()
	}
}

// Advance records a newly assigned sequence id and wakes every waiter
// whose cursor it satisfies. Waiters are woken independently; a slow
// reader delays nobody because the wake channels are buffered.
func (h *Hub) Advance(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id > h.lastID {
		h.lastID = id
	}
	for w := range h.waiters {
		if w.cursor < h.lastID {
			delete(h.waiters, w)
			select {
			case w.wake <- struct{}{}:
			default:
			}
		}
	}
}

// LastID returns the highest sequence id the hub has observed.
func (h *Hub) LastID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastID
}

// Pending returns the number of parked waiters.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}

func (h *Hub) remove(w *waiter) {
	h.mu.Lock()
	delete(h.waiters, w)
	h.mu.Unlock()
}
