package storage

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	FirstName    string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshToken is a ledger row for one issued refresh token. Rows are never
// deleted by the request path; BlacklistedAt moves NULL -> set exactly once.
type RefreshToken struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	IssuedAt      time.Time
	ExpiresAt     time.Time
	BlacklistedAt *time.Time
}

func (t *RefreshToken) Blacklisted() bool {
	return t.BlacklistedAt != nil
}

type Note struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	Content   string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CategoryCount struct {
	Category string
	Total    int64
}
