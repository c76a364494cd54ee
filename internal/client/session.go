package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technologicalMayhem/chat-app/internal/apperr"
	"github.com/technologicalMayhem/chat-app/internal/models"
)

// State is a client session's lifecycle position.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	default:
		return "logged out"
	}
}

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 15 * time.Second
)

// Session is one authenticated login against one server. It owns its
// token, cursor, and message slice exclusively; the only writer to any
// of them is the session's own poll loop (plus Login/Logout, which run
// before the loop starts and after it stops). Everyone else reads
// through copying snapshot accessors.
type Session struct {
	api         *API
	username    string
	pollTimeout time.Duration
	logger      *zap.Logger

	// notify nudges the owner (the Manager) that visible state changed.
	// Must never block.
	notify func()

	mu        sync.Mutex
	state     State
	token     string
	cursor    int64
	messages  []models.Message
	connected bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(api *API, username string, pollTimeout time.Duration, notify func(), logger *zap.Logger) *Session {
	if notify == nil {
		notify = func() {}
	}
	return &Session{
		api:         api,
		username:    username,
		pollTimeout: pollTimeout,
		notify:      notify,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Login authenticates and, on success, starts the poll loop. The loop
// re-issues the next poll the moment one returns; with the server
// holding each poll open until data arrives, that is what makes
// delivery feel live over a request/response transport.
func (s *Session) Login(ctx context.Context, password string) error {
	s.setState(StateAuthenticating)

	token, err := s.api.Login(ctx, s.username, password)
	if err != nil {
		s.setState(StateLoggedOut)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.token = token
	s.state = StateActive
	s.connected = true
	s.cancel = cancel
	s.mu.Unlock()
	s.notify()

	go s.pollLoop(loopCtx, token)
	return nil
}

func (s *Session) pollLoop(ctx context.Context, token string) {
	defer close(s.done)

	backoff := backoffBase
	for {
		s.mu.Lock()
		cursor := s.cursor
		s.mu.Unlock()

		msgs, err := s.api.PollEvents(ctx, token, cursor, s.pollTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				// Token revoked or expired behind our back; retrying
				// can't fix that. The session is dead.
				s.logger.Warn("session no longer valid", zap.String("username", s.username))
				s.setState(StateLoggedOut)
				return
			}

			// Transient failure: mark disconnected, back off, keep the
			// session alive. The user sees a connectivity indicator,
			// not a dead tab.
			s.setConnected(false)
			s.logger.Debug("poll failed, backing off",
				zap.String("username", s.username),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, backoffCap)
			continue
		}

		backoff = backoffBase
		s.deliver(msgs)
	}
}

// deliver appends a poll batch and advances the cursor. The server
// returns messages in ascending id order starting past our cursor, so
// the local slice stays ordered and the cursor never moves backwards.
func (s *Session) deliver(msgs []models.Message) {
	s.mu.Lock()
	wasDisconnected := !s.connected
	s.connected = true
	if len(msgs) > 0 {
		s.messages = append(s.messages, msgs...)
		s.cursor = msgs[len(msgs)-1].ID
	}
	s.mu.Unlock()

	if len(msgs) > 0 || wasDisconnected {
		s.notify()
	}
}

func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify()
}

// Post sends a message through this session. The posted message is not
// appended locally here — it arrives through the poll loop like
// everyone else's, which keeps ordering authority with the server.
func (s *Session) Post(ctx context.Context, text string) error {
	s.mu.Lock()
	token := s.token
	state := s.state
	s.mu.Unlock()

	if state != StateActive {
		return apperr.ErrUnauthorized
	}
	_, err := s.api.PostMessage(ctx, token, text)
	return err
}

// Logout stops the poll loop immediately and revokes the token
// best-effort in the background; the UI never waits on the server to
// acknowledge a logout.
func (s *Session) Logout() {
	s.mu.Lock()
	token := s.token
	cancel := s.cancel
	s.token = ""
	s.state = StateLoggedOut
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.notify()

	if token == "" {
		return
	}
	go func() {
		ctx, cancelReq := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancelReq()
		if err := s.api.Logout(ctx, token); err != nil {
			s.logger.Debug("best-effort logout failed",
				zap.String("username", s.username), zap.Error(err))
		}
	}()
}

// Snapshot returns a copy of the received messages; the caller can hold
// it across renders without racing the poll loop.
func (s *Session) Snapshot() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Username() string { return s.username }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Token returns the current session token, empty when logged out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
