package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/technologicalMayhem/chat-app/internal/api"
	"github.com/technologicalMayhem/chat-app/internal/auth"
	"github.com/technologicalMayhem/chat-app/internal/chat"
	"github.com/technologicalMayhem/chat-app/internal/session"
	"github.com/technologicalMayhem/chat-app/internal/store/memory"
)

type sessionHarness struct {
	api      *API
	server   *httptest.Server
	registry *session.MemoryRegistry
	log      *chat.Log
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := memory.NewUserStore()
	messages := memory.NewMessageStore()
	registry := session.NewMemoryRegistry(time.Hour)

	hub, err := chat.NewHub(context.Background(), messages, 64)
	require.NoError(t, err)
	log := chat.NewLog(messages, hub)
	hasher := &auth.BcryptHasher{Cost: bcrypt.MinCost}
	logger := zap.NewNop()

	router := api.NewRouter(
		api.NewAuthHandler(users, registry, hasher, logger),
		api.NewMessageHandler(log, hub, registry, users, time.Second, logger),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	apiClient := NewAPI(srv.URL)
	_, err = apiClient.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	return &sessionHarness{
		api:      apiClient,
		server:   srv,
		registry: registry,
		log:      log,
	}
}

func TestSessionLoginFailureStaysLoggedOut(t *testing.T) {
	t.Parallel()
	h := newSessionHarness(t)

	sess := NewSession(h.api, "alice", time.Second, nil, zap.NewNop())
	err := sess.Login(context.Background(), "wrong-password")
	require.Error(t, err)
	assert.Equal(t, StateLoggedOut, sess.State())
	assert.Empty(t, sess.Token())
}

func TestSessionDeliversAndAdvancesCursor(t *testing.T) {
	t.Parallel()
	h := newSessionHarness(t)

	sess := NewSession(h.api, "alice", time.Second, nil, zap.NewNop())
	require.NoError(t, sess.Login(context.Background(), "secret"))
	t.Cleanup(sess.Logout)

	require.NoError(t, sess.Post(context.Background(), "one"))
	require.Eventually(t, func() bool {
		return len(sess.Snapshot()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(1), sess.Cursor())

	require.NoError(t, sess.Post(context.Background(), "two"))
	require.Eventually(t, func() bool {
		return len(sess.Snapshot()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// Cursor only ever moves forward, tracking the highest seen id.
	assert.Equal(t, int64(2), sess.Cursor())
	msgs := sess.Snapshot()
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)
}

func TestSessionSurvivesServerLoss(t *testing.T) {
	t.Parallel()
	h := newSessionHarness(t)

	sess := NewSession(h.api, "alice", 200*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, sess.Login(context.Background(), "secret"))
	t.Cleanup(sess.Logout)

	h.server.Close()

	// The poll loop flips to disconnected and backs off, but the
	// session does not die: still Active, ready for the server to come
	// back.
	require.Eventually(t, func() bool {
		return !sess.Connected()
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, StateActive, sess.State())
}

func TestSessionEndsWhenTokenRevoked(t *testing.T) {
	t.Parallel()
	h := newSessionHarness(t)

	sess := NewSession(h.api, "alice", 200*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, sess.Login(context.Background(), "secret"))

	// Revoke behind the session's back; the next poll gets a 401 and
	// the session gives up instead of retrying forever.
	require.NoError(t, h.registry.Revoke(context.Background(), sess.Token()))

	require.Eventually(t, func() bool {
		return sess.State() == StateLoggedOut
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLogoutIsPrompt(t *testing.T) {
	t.Parallel()
	h := newSessionHarness(t)

	sess := NewSession(h.api, "alice", 30*time.Second, nil, zap.NewNop())
	require.NoError(t, sess.Login(context.Background(), "secret"))

	// The poll loop is parked on a long wait; Logout must not wait it
	// out.
	start := time.Now()
	sess.Logout()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateLoggedOut, sess.State())

	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop kept running after logout")
	}
}

func TestPostAfterLogout(t *testing.T) {
	t.Parallel()
	h := newSessionHarness(t)

	sess := NewSession(h.api, "alice", time.Second, nil, zap.NewNop())
	require.NoError(t, sess.Login(context.Background(), "secret"))
	sess.Logout()

	err := sess.Post(context.Background(), "too late")
	require.Error(t, err)
}
