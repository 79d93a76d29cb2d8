package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrInvalidCursor  = errors.New("invalid cursor")
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, username, password_hash, created_at)
		VALUES (lower($1), $2, $3, now())
		RETURNING id, email, username, first_name, last_name, password_hash, created_at
	`, email, username, passwordHash)

	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.FirstName, &user.LastName, &user.PasswordHash, &user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, username, first_name, last_name, password_hash, created_at
		FROM users
		WHERE email = lower($1)
	`, email)

	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.FirstName, &user.LastName, &user.PasswordHash, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, username, first_name, last_name, password_hash, created_at
		FROM users
		WHERE id = $1
	`, userID)

	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.FirstName, &user.LastName, &user.PasswordHash, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) RecordRefreshToken(ctx context.Context, tokenID uuid.UUID, userID uuid.UUID, issuedAt, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, tokenID, userID, issuedAt, expiresAt)
	return err
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenID uuid.UUID) (*RefreshToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, issued_at, expires_at, blacklisted_at
		FROM refresh_tokens
		WHERE id = $1
	`, tokenID)

	var token RefreshToken
	if err := row.Scan(&token.ID, &token.UserID, &token.IssuedAt, &token.ExpiresAt, &token.BlacklistedAt); err != nil {
		return nil, err
	}
	return &token, nil
}

// BlacklistRefreshToken marks one ledger row. The single conditional UPDATE is
// the atomicity boundary: concurrent logouts of the same token race safely and
// exactly one of them reports newly=true. Unknown token ids are the caller's
// problem; here they just report newly=false.
func (s *Store) BlacklistRefreshToken(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET blacklisted_at = now()
		WHERE id = $1 AND blacklisted_at IS NULL
	`, tokenID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// BlacklistAllRefreshTokens blacklists every outstanding token of one user in
// a single transaction and returns how many rows flipped.
func (s *Store) BlacklistAllRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	cmd, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET blacklisted_at = now()
		WHERE user_id = $1 AND blacklisted_at IS NULL
	`, userID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// DeleteExpiredRefreshTokens removes ledger rows already past expiry. Meant
// for the sweep command, never called from the request path.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (s *Store) CreateNote(ctx context.Context, userID uuid.UUID, title, content, category string) (*Note, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO notes (user_id, title, content, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, user_id, title, content, category, created_at, updated_at
	`, userID, title, content, category)

	var note Note
	if err := row.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.Category, &note.CreatedAt, &note.UpdatedAt); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *Store) GetNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID) (*Note, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, content, category, created_at, updated_at
		FROM notes
		WHERE id = $1 AND user_id = $2
	`, noteID, userID)

	var note Note
	if err := row.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.Category, &note.CreatedAt, &note.UpdatedAt); err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateNote applies a partial update; nil fields keep their current value.
func (s *Store) UpdateNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID, title, content, category *string) (*Note, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE notes
		SET title = COALESCE($3, title),
		    content = COALESCE($4, content),
		    category = COALESCE($5, category),
		    updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, title, content, category, created_at, updated_at
	`, noteID, userID, title, content, category)

	var note Note
	if err := row.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.Category, &note.CreatedAt, &note.UpdatedAt); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *Store) DeleteNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID) (bool, error) {
	cmd, err := s.pool.Exec(ctx, `
		DELETE FROM notes
		WHERE id = $1 AND user_id = $2
	`, noteID, userID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) ListNotes(ctx context.Context, userID uuid.UUID, category string, limit int, cursor string) ([]Note, string, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, user_id, title, content, category, created_at, updated_at
		FROM notes
		WHERE user_id = $1
	`
	args := []any{userID}

	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}

	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		args = append(args, ts, id)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	items := make([]Note, 0, limit)
	var nextCursor string
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.Category, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, "", err
		}
		items = append(items, note)
	}

	if len(items) > limit {
		last := items[limit-1]
		items = items[:limit]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
	}

	return items, nextCursor, rows.Err()
}

func (s *Store) CountNotes(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notes WHERE user_id = $1
	`, userID).Scan(&count)
	return count, err
}

func (s *Store) CountNotesByCategory(ctx context.Context, userID uuid.UUID) ([]CategoryCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, COUNT(*) AS total
		FROM notes
		WHERE user_id = $1
		GROUP BY category
		ORDER BY total DESC, category
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CategoryCount
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Total); err != nil {
			return nil, err
		}
		items = append(items, cc)
	}
	return items, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func encodeCursor(ts time.Time, id uuid.UUID) string {
	payload := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id.String())
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return ts, id, nil
}
