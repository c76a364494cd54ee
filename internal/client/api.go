// Package client implements the chat client: a thin HTTP wrapper around
// the server API, the per-login Session with its long-poll loop, and the
// Manager that coordinates any number of concurrent sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/technologicalMayhem/chat-app/internal/apperr"
	"github.com/technologicalMayhem/chat-app/internal/models"
)

// API talks to one chat server. It is stateless and goroutine-safe; every
// session shares one instance.
type API struct {
	base string
	http *http.Client
}

func NewAPI(base string) *API {
	return &API{
		base: base,
		// No client-wide timeout: /events legitimately hangs for the
		// poll duration. Each call carries its own context deadline.
		http: &http.Client{},
	}
}

type registerResponse struct {
	UserID int64 `json:"user_id"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message models.Message `json:"message"`
}

type eventsResponse struct {
	Messages []models.Message `json:"messages"`
}

type usersResponse struct {
	Users map[int64]*string `json:"users"`
}

// Register creates an account and returns the new user id.
func (a *API) Register(ctx context.Context, username, password string) (int64, error) {
	var resp registerResponse
	err := a.post(ctx, "/register", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusCreated, &resp)
	if err != nil {
		return 0, err
	}
	return resp.UserID, nil
}

// Login authenticates and returns a session token.
func (a *API) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := a.post(ctx, "/login", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusOK, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Logout revokes the token. Safe to call with an already-dead token.
func (a *API) Logout(ctx context.Context, token string) error {
	return a.post(ctx, "/logout", map[string]string{"token": token}, http.StatusNoContent, nil)
}

// PostMessage appends a message as the session behind the token.
func (a *API) PostMessage(ctx context.Context, token, text string) (*models.Message, error) {
	var resp messageResponse
	err := a.post(ctx, "/messages", map[string]string{
		"token": token,
		"text":  text,
	}, http.StatusCreated, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// PollEvents long-polls for messages past the cursor. An empty slice
// means the server timeout elapsed with nothing new — poll again. The
// HTTP deadline is the poll timeout plus a grace period so the server,
// not the transport, decides when the wait is over.
func (a *API) PollEvents(ctx context.Context, token string, cursor int64, timeout time.Duration) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	q := url.Values{}
	q.Set("token", token)
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("timeout", timeout.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}

	var resp eventsResponse
	if err := a.do(req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ResolveUsers maps user ids to usernames; ids the server no longer
// knows come back as empty strings.
func (a *API) ResolveUsers(ctx context.Context, token string, ids []int64) (map[int64]string, error) {
	var resp usersResponse
	err := a.postAuth(ctx, "/users", token, map[string][]int64{"ids": ids}, http.StatusOK, &resp)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(resp.Users))
	for id, name := range resp.Users {
		if name != nil {
			names[id] = *name
		} else {
			names[id] = ""
		}
	}
	return names, nil
}

func (a *API) post(ctx context.Context, path string, body any, wantStatus int, out any) error {
	return a.postAuth(ctx, path, "", body, wantStatus, out)
}

func (a *API) postAuth(ctx context.Context, path, token string, body any, wantStatus int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return a.do(req, wantStatus, out)
}

func (a *API) do(req *http.Request, wantStatus int, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return apperr.ErrUnauthorized
		case http.StatusConflict:
			return apperr.ErrUsernameTaken
		default:
			return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
