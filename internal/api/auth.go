package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/technologicalMayhem/chat-app/internal/apperr"
	"github.com/technologicalMayhem/chat-app/internal/auth"
	"github.com/technologicalMayhem/chat-app/internal/session"
	"github.com/technologicalMayhem/chat-app/internal/store"
)

// AuthHandler serves registration, login, and logout. Register and login
// are the only endpoints that see a plaintext password; it goes straight
// into the hasher and nowhere else.
type AuthHandler struct {
	users    store.UserStore
	sessions session.Registry
	hasher   auth.Hasher
	logger   *zap.Logger
}

func NewAuthHandler(users store.UserStore, sessions session.Registry, hasher auth.Hasher, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, hasher: hasher, logger: logger}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=1"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must not be blank"})
		return
	}

	salt, err := auth.NewSalt()
	if err != nil {
		h.logger.Error("failed to generate salt", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	hash, err := h.hasher.Hash(req.Password, salt)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), username, salt, hash)
	if err != nil {
		if errors.Is(err, apperr.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username is already taken"})
			return
		}
		h.logger.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user_id": user.ID})
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, cred, err := h.users.GetByName(c.Request.Context(), req.Username)
	if err != nil {
		h.logger.Error("failed to look up user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	// One message for both unknown user and wrong password, so the
	// response doesn't reveal which usernames exist.
	if user == nil || !h.hasher.Verify(req.Password, cred.Salt, cred.HashedPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Logout handles POST /logout. Revocation is idempotent, so a stale or
// already-revoked token still gets a 204.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	token := requestToken(c, req.Token)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}

	if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
		h.logger.Error("failed to revoke session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

// requestToken picks the session token out of a request: an explicit
// body/query value wins, otherwise a standard Bearer header is accepted.
func requestToken(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
