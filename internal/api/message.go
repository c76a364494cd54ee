package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/technologicalMayhem/chat-app/internal/apperr"
	"github.com/technologicalMayhem/chat-app/internal/chat"
	"github.com/technologicalMayhem/chat-app/internal/session"
	"github.com/technologicalMayhem/chat-app/internal/store"
)

// statusClientClosedRequest is nginx's convention for a client that
// disconnected before the response was written.
const statusClientClosedRequest = 499

// MessageHandler serves posting and long-poll delivery.
type MessageHandler struct {
	log      *chat.Log
	hub      *chat.Hub
	sessions session.Registry
	users    store.UserStore
	logger   *zap.Logger

	// pollTimeout is both the default and the cap for /events waits.
	pollTimeout time.Duration
}

func NewMessageHandler(log *chat.Log, hub *chat.Hub, sessions session.Registry, users store.UserStore, pollTimeout time.Duration, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		log:         log,
		hub:         hub,
		sessions:    sessions,
		users:       users,
		logger:      logger,
		pollTimeout: pollTimeout,
	}
}

type postMessageRequest struct {
	Token string `json:"token"`
	Text  string `json:"text" binding:"required"`
}

type resolveUsersRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// Create handles POST /messages.
func (h *MessageHandler) Create(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := h.authenticate(c, req.Token)
	if err != nil {
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "message text must not be empty"})
		return
	}

	msg, err := h.log.Append(c.Request.Context(), userID, req.Text)
	if err != nil {
		h.logger.Error("failed to append message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Events handles GET /events?token&cursor&timeout — the long-poll
// endpoint. It answers with whatever exists past the cursor, or parks
// the request until an append satisfies it or the timeout runs out. An
// empty list is the normal "nothing new yet" answer, never an error.
func (h *MessageHandler) Events(c *gin.Context) {
	// Polling only needs a valid session, not the identity behind it:
	// the conversation is global, cursors are client-owned.
	_, err := h.authenticate(c, c.Query("token"))
	if err != nil {
		return
	}

	var cursor int64
	if raw := c.Query("cursor"); raw != "" {
		cursor, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'cursor' parameter"})
			return
		}
	}

	timeout, ok := h.parseTimeout(c)
	if !ok {
		return
	}

	msgs, err := h.hub.AwaitNew(c.Request.Context(), cursor, timeout)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrHubFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is at capacity, retry later"})
		case errors.Is(err, context.Canceled):
			// Client went away while parked; the waiter is already
			// deregistered. The explicit status keeps abandoned polls
			// distinguishable from successful ones in access logs.
			c.AbortWithStatus(statusClientClosedRequest)
		default:
			h.logger.Error("failed to await events", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch events"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ResolveUsers handles POST /users: bulk id-to-username resolution so
// clients can label messages without a server-side join on every poll.
// Unknown ids map to null.
func (h *MessageHandler) ResolveUsers(c *gin.Context) {
	var req resolveUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	names, err := h.users.ResolveNames(c.Request.Context(), req.IDs)
	if err != nil {
		h.logger.Error("failed to resolve usernames", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve users"})
		return
	}

	out := make(map[int64]*string, len(names))
	for id, name := range names {
		if name == "" {
			out[id] = nil
			continue
		}
		n := name
		out[id] = &n
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// authenticate validates the session token and writes the error response
// itself on failure, so handlers can bail with a bare return.
func (h *MessageHandler) authenticate(c *gin.Context, explicit string) (int64, error) {
	token := requestToken(c, explicit)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
		return 0, apperr.ErrUnauthorized
	}

	userID, err := h.sessions.Validate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return 0, apperr.ErrUnauthorized
		}
		h.logger.Error("failed to validate session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session validation failed"})
		return 0, err
	}
	return userID, nil
}

// parseTimeout reads the timeout query parameter, accepting either a Go
// duration ("2s") or plain seconds ("2"). Missing means the server
// default; anything above the cap is clamped, not rejected.
func (h *MessageHandler) parseTimeout(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("timeout")
	if raw == "" {
		return h.pollTimeout, true
	}

	timeout, err := time.ParseDuration(raw)
	if err != nil {
		secs, serr := strconv.Atoi(raw)
		if serr != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'timeout' parameter"})
			return 0, false
		}
		timeout = time.Duration(secs) * time.Second
	}
	if timeout < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'timeout' parameter"})
		return 0, false
	}
	if timeout > h.pollTimeout {
		timeout = h.pollTimeout
	}
	return timeout, true
}
