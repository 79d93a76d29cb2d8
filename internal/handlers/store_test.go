package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/luiggisao1/turbonote/internal/storage"
)

// memStore mimics the postgres store closely enough for handler tests:
// case-insensitive unique emails, owner-scoped note access, monotonic
// blacklisting, keyset pagination.
type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*storage.User
	tokens map[uuid.UUID]*storage.RefreshToken
	notes  map[uuid.UUID]*storage.Note

	// each write gets a strictly later timestamp so list order is stable
	lastStamp time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]*storage.User{},
		tokens:    map[uuid.UUID]*storage.RefreshToken{},
		notes:     map[uuid.UUID]*storage.Note{},
		lastStamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) nextStamp() time.Time {
	m.lastStamp = m.lastStamp.Add(time.Second)
	return m.lastStamp
}

func (m *memStore) CreateUser(ctx context.Context, email, username, passwordHash string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			return nil, storage.ErrDuplicateEmail
		}
	}

	user := &storage.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    m.nextStamp(),
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (m *memStore) RecordRefreshToken(ctx context.Context, tokenID uuid.UUID, userID uuid.UUID, issuedAt, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[tokenID] = &storage.RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *memStore) GetRefreshToken(ctx context.Context, tokenID uuid.UUID) (*storage.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return token, nil
}

func (m *memStore) BlacklistRefreshToken(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenID]
	if !ok || token.BlacklistedAt != nil {
		return false, nil
	}
	now := m.nextStamp()
	token.BlacklistedAt = &now
	return true, nil
}

func (m *memStore) BlacklistAllRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, token := range m.tokens {
		if token.UserID == userID && token.BlacklistedAt == nil {
			now := m.nextStamp()
			token.BlacklistedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *memStore) CreateNote(ctx context.Context, userID uuid.UUID, title, content, category string) (*storage.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := m.nextStamp()
	note := &storage.Note{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		Category:  category,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	m.notes[note.ID] = note
	return note, nil
}

func (m *memStore) GetNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID) (*storage.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	return note, nil
}

func (m *memStore) UpdateNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID, title, content, category *string) (*storage.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	if title != nil {
		note.Title = *title
	}
	if content != nil {
		note.Content = *content
	}
	if category != nil {
		note.Category = *category
	}
	note.UpdatedAt = m.nextStamp()
	return note, nil
}

func (m *memStore) DeleteNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return false, nil
	}
	delete(m.notes, noteID)
	return true, nil
}

func (m *memStore) ListNotes(ctx context.Context, userID uuid.UUID, category string, limit int, cursor string) ([]storage.Note, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	var after uuid.UUID
	if cursor != "" {
		id, err := uuid.Parse(cursor)
		if err != nil {
			return nil, "", storage.ErrInvalidCursor
		}
		after = id
	}

	var all []storage.Note
	for _, note := range m.notes {
		if note.UserID != userID {
			continue
		}
		if category != "" && note.Category != category {
			continue
		}
		all = append(all, *note)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := 0
	if after != uuid.Nil {
		for i, note := range all {
			if note.ID == after {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	var nextCursor string
	if end < len(all) {
		nextCursor = all[end-1].ID.String()
	} else {
		end = len(all)
	}

	return all[start:end], nextCursor, nil
}

func (m *memStore) CountNotes(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, note := range m.notes {
		if note.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) CountNotesByCategory(ctx context.Context, userID uuid.UUID) ([]storage.CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := map[string]int64{}
	for _, note := range m.notes {
		if note.UserID == userID {
			totals[note.Category]++
		}
	}

	items := make([]storage.CategoryCount, 0, len(totals))
	for category, total := range totals {
		items = append(items, storage.CategoryCount{Category: category, Total: total})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Total != items[j].Total {
			return items[i].Total > items[j].Total
		}
		return items[i].Category < items[j].Category
	})
	return items, nil
}
