package chat

import (
	"context"
	"sync"

	"github.com/technologicalMayhem/chat-app/internal/models"
	"github.com/technologicalMayhem/chat-app/internal/store"
)

// Log is the write side of the delivery core. It pairs every append with
// a hub advance, so "stored but nobody woken" is not an observable state:
// by the time Append returns, every waiter whose cursor the new message
// satisfies has been signalled.
type Log struct {
	messages store.MessageStore
	hub      *Hub

	// mu serializes the append+advance pair so ids become visible and
	// are announced in assignment order. Backends that assign the id
	// inside the write (a database sequence) can otherwise commit a
	// lower id after a higher one has been announced, and a poller
	// woken for the higher id would skip the lower one for good.
	mu sync.Mutex
}

func NewLog(messages store.MessageStore, hub *Hub) *Log {
	return &Log{messages: messages, hub: hub}
}

// Append stores a message and wakes qualifying waiters.
//
// The store assigns the sequence id; Advance then publishes it under the
// hub lock. A waiter registering concurrently either sees the bumped
// lastID before parking or is parked already and gets woken. Appends are
// serialized: Advance(id) is only ever called once every id below it is
// stored and readable, so a wake-time Since never has a gap in front of
// the cursor it lands on.
func (l *Log) Append(ctx context.Context, userID int64, text string) (*models.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg, err := l.messages.Append(ctx, userID, text)
	if err != nil {
		return nil, err
	}
	l.hub.Advance(msg.ID)
	return msg, nil
}

// Since returns all messages after the cursor, ascending by id.
func (l *Log) Since(ctx context.Context, cursor int64) ([]models.Message, error) {
	return l.messages.Since(ctx, cursor, 0)
}
