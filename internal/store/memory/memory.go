// Package memory provides in-process implementations of the store
// interfaces. They back the test suite and the STORE=memory development
// mode; nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/technologicalMayhem/chat-app/internal/apperr"
	"github.com/technologicalMayhem/chat-app/internal/models"
)

type UserStore struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]*record
	byID   map[int64]*record
}

type record struct {
	user models.User
	cred models.Credential
}

func NewUserStore() *UserStore {
	return &UserStore{
		byName: make(map[string]*record),
		byID:   make(map[int64]*record),
	}
}

func (s *UserStore) CreateUser(ctx context.Context, username, salt, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return nil, apperr.ErrUsernameTaken
	}

	// nextID only ever grows, even if users are removed later.
	s.nextID++
	rec := &record{
		user: models.User{ID: s.nextID, Username: username},
		cred: models.Credential{
			ID:             s.nextID,
			UserID:         s.nextID,
			Salt:           salt,
			HashedPassword: passwordHash,
		},
	}
	s.byName[username] = rec
	s.byID[rec.user.ID] = rec

	u := rec.user
	return &u, nil
}

func (s *UserStore) GetByName(ctx context.Context, username string) (*models.User, *models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byName[username]
	if !ok {
		return nil, nil, nil
	}
	u, c := rec.user, rec.cred
	return &u, &c, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	u := rec.user
	return &u, nil
}

func (s *UserStore) ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if rec, ok := s.byID[id]; ok {
			names[id] = rec.user.Username
		} else {
			names[id] = ""
		}
	}
	return names, nil
}

// MessageStore keeps the log as a slice ordered by id. Append returns a
// copy; readers never see a message mid-write.
type MessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []models.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func (s *MessageStore) Append(ctx context.Context, userID int64, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := models.Message{
		ID:        s.nextID,
		CreatedAt: time.Now().UTC(),
		Text:      text,
		UserID:    userID,
	}
	s.messages = append(s.messages, msg)

	out := msg
	return &out, nil
}

func (s *MessageStore) Since(ctx context.Context, cursor int64, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, 0)
	for _, msg := range s.messages {
		if msg.ID > cursor {
			out = append(out, msg)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MessageStore) LastID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return 0, nil
	}
	return s.messages[len(s.messages)-1].ID, nil
}
