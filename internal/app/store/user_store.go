/*
Package store contains the Postgres repositories backing the HTTP API and the
collaboration layer. Each repository wraps the shared pgx pool with plain SQL;
absent rows surface as db.ErrNotFound.
*/
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArchSirius/log3900-server/internal/app/db"
	"github.com/ArchSirius/log3900-server/internal/app/user"
)

// UserStore persists user accounts, friendships and play statistics.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore constructs a UserStore over the shared pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// CreateUser inserts a new account. A duplicate username surfaces through
// db.IsUniqueViolation on the returned error.
func (s *UserStore) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Name, u.Email, u.Hash, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

// GetUser loads an account by id, friends included.
func (s *UserStore) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByUsername loads an account by username, friends included.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *UserStore) getUser(ctx context.Context, column, value string) (*user.User, error) {
	u := &user.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, name, email, password_hash, played_games, played_time, created_at, updated_at
		FROM users WHERE `+column+` = $1`,
		value,
	).Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Hash,
		&u.Stats.PlayedGames, &u.Stats.PlayedTime, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}

	friends, err := s.friendIDs(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Friends = friends
	return u, nil
}

func (s *UserStore) friendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT friend_id FROM user_friends WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	friends := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		friends = append(friends, id)
	}
	return friends, rows.Err()
}

// ListUsers returns every account's public reference, username-ordered.
func (s *UserStore) ListUsers(ctx context.Context) ([]user.Ref, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []user.Ref{}
	for rows.Next() {
		var ref user.Ref
		if err := rows.Scan(&ref.ID, &ref.Username); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UpdateProfile overwrites the account's mutable profile fields.
func (s *UserStore) UpdateProfile(ctx context.Context, u *user.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET username = $2, name = $3, email = $4, updated_at = now()
		WHERE id = $1`,
		u.ID, u.Username, u.Name, u.Email,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the account's password hash.
func (s *UserStore) UpdatePassword(ctx context.Context, userID, hash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		userID, hash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// AddFriend records a one-directional friendship. Re-adding is a no-op.
func (s *UserStore) AddFriend(ctx context.Context, userID, friendID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_friends (user_id, friend_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		userID, friendID,
	)
	return err
}

// RemoveFriend deletes the friendship record, if present.
func (s *UserStore) RemoveFriend(ctx context.Context, userID, friendID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM user_friends WHERE user_id = $1 AND friend_id = $2`,
		userID, friendID,
	)
	return err
}

// AddUserStats increments the account's simulation counters.
func (s *UserStore) AddUserStats(ctx context.Context, userID string, games int, seconds float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET played_games = played_games + $2, played_time = played_time + $3
		WHERE id = $1`,
		userID, games, seconds,
	)
	return err
}
