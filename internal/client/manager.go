package client

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technologicalMayhem/chat-app/internal/models"
)

// ErrNoSuchSession is returned for operations on an unknown slot.
var ErrNoSuchSession = errors.New("no such session")

// Manager owns the set of client sessions and everything the UI reads:
// which slot is focused, which slots exist, and the id-to-username cache.
// One mutex serializes all of that. Sessions themselves stay independent
// — each poll loop touches only its own Session, so a stalled server for
// one login never delays input or delivery on another.
type Manager struct {
	api         *API
	pollTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[int]*Session
	nextSlot int
	focus    int
	names    map[int64]string

	// nudge coalesces change notifications for the UI: a buffered
	// single-slot channel, so notifying is never blocking and a burst
	// of updates collapses into one redraw.
	nudge chan struct{}
}

func NewManager(api *API, pollTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		api:         api,
		pollTimeout: pollTimeout,
		logger:      logger,
		sessions:    make(map[int]*Session),
		names:       make(map[int64]string),
		nudge:       make(chan struct{}, 1),
	}
}

// Nudge returns a channel that receives after any visible change. The UI
// waits on it and re-renders.
func (m *Manager) Nudge() <-chan struct{} {
	return m.nudge
}

func (m *Manager) notify() {
	select {
	case m.nudge <- struct{}{}:
	default:
	}
}

// Open registers (optionally) and logs in a new session, assigns it the
// next slot handle, and focuses it. Slots are never reused.
func (m *Manager) Open(ctx context.Context, username, password string, register bool) (int, error) {
	if register {
		if _, err := m.api.Register(ctx, username, password); err != nil {
			return 0, err
		}
	}

	sess := NewSession(m.api, username, m.pollTimeout, m.notify, m.logger)
	if err := sess.Login(ctx, password); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.nextSlot++
	slot := m.nextSlot
	m.sessions[slot] = sess
	m.focus = slot
	m.mu.Unlock()

	m.notify()
	return slot, nil
}

// Close logs the slot's session out and removes it. Focus moves to the
// nearest remaining slot.
func (m *Manager) Close(slot int) {
	m.mu.Lock()
	sess, ok := m.sessions[slot]
	if ok {
		delete(m.sessions, slot)
		if m.focus == slot {
			m.focus = m.nearestSlotLocked(slot)
		}
	}
	m.mu.Unlock()

	if ok {
		sess.Logout()
		m.notify()
	}
}

// CloseAll logs every session out; used on client shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.sessions = make(map[int]*Session)
	m.focus = 0
	m.mu.Unlock()

	for _, sess := range all {
		sess.Logout()
	}
}

// Slots returns the open slot handles in ascending order.
func (m *Manager) Slots() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots := make([]int, 0, len(m.sessions))
	for slot := range m.sessions {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// Focused returns the focused slot handle, 0 when no session is open.
func (m *Manager) Focused() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focus
}

// SwitchFocus moves focus to the given slot if it exists.
func (m *Manager) SwitchFocus(slot int) {
	m.mu.Lock()
	if _, ok := m.sessions[slot]; ok {
		m.focus = slot
	}
	m.mu.Unlock()
	m.notify()
}

// CycleFocus moves focus forward (+1) or backward (-1) through the open
// slots, wrapping around.
func (m *Manager) CycleFocus(direction int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots := make([]int, 0, len(m.sessions))
	for slot := range m.sessions {
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return
	}
	sort.Ints(slots)

	idx := 0
	for i, slot := range slots {
		if slot == m.focus {
			idx = i
			break
		}
	}
	idx = (idx + direction + len(slots)) % len(slots)
	m.focus = slots[idx]
}

// MessagesFor returns a consistent snapshot of the slot's conversation.
// The snapshot is a copy; the poll loop can keep appending while the UI
// renders it.
func (m *Manager) MessagesFor(slot int) []models.Message {
	sess := m.session(slot)
	if sess == nil {
		return nil
	}
	return sess.Snapshot()
}

// SendInput posts text through the slot's own session. Input is always
// routed by explicit handle — the focused slot is resolved by the caller
// at keystroke time via Focused(), never guessed here.
func (m *Manager) SendInput(ctx context.Context, slot int, text string) error {
	sess := m.session(slot)
	if sess == nil {
		return ErrNoSuchSession
	}
	return sess.Post(ctx, text)
}

// SessionInfo reports a slot's username, lifecycle state, and
// connectivity for the tab bar.
func (m *Manager) SessionInfo(slot int) (username string, state State, connected bool, ok bool) {
	sess := m.session(slot)
	if sess == nil {
		return "", StateLoggedOut, false, false
	}
	return sess.Username(), sess.State(), sess.Connected(), true
}

// Name resolves a user id to a display name from the local cache,
// falling back to a stable placeholder for ids not resolved yet.
func (m *Manager) Name(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.names[id]; ok && name != "" {
		return name
	}
	return placeholderName(id)
}

// EnsureNames fetches usernames for any message authors missing from the
// cache, using the slot's token. Called off the render path.
func (m *Manager) EnsureNames(ctx context.Context, slot int, msgs []models.Message) {
	sess := m.session(slot)
	if sess == nil {
		return
	}

	m.mu.Lock()
	var missing []int64
	seen := make(map[int64]struct{})
	for _, msg := range msgs {
		if _, ok := m.names[msg.UserID]; ok {
			continue
		}
		if _, dup := seen[msg.UserID]; dup {
			continue
		}
		seen[msg.UserID] = struct{}{}
		missing = append(missing, msg.UserID)
	}
	m.mu.Unlock()

	if len(missing) == 0 {
		return
	}

	names, err := m.api.ResolveUsers(ctx, sess.Token(), missing)
	if err != nil {
		m.logger.Debug("failed to resolve usernames", zap.Error(err))
		return
	}

	m.mu.Lock()
	for id, name := range names {
		m.names[id] = name
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) session(slot int) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[slot]
}

// nearestSlotLocked picks the focus replacement after closing a slot:
// the highest remaining slot below it, else the lowest above.
func (m *Manager) nearestSlotLocked(closed int) int {
	below, above := 0, 0
	for slot := range m.sessions {
		if slot < closed && slot > below {
			below = slot
		}
		if slot > closed && (above == 0 || slot < above) {
			above = slot
		}
	}
	if below != 0 {
		return below
	}
	return above
}

func placeholderName(id int64) string {
	return "user#" + strconv.FormatInt(id, 10)
}
