package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArchSirius/log3900-server/internal/app/chat"
)

// MessageStore persists channels, chat relations, archived messages and the
// pending-message queue.
type MessageStore struct {
	pool *pgxpool.Pool
}

// NewMessageStore constructs a MessageStore over the shared pool.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// EnsureChannel finds or creates the named group channel, granting the
// creator membership on creation. Returns the channel id.
func (s *MessageStore) EnsureChannel(ctx context.Context, name string, creatorID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM channels WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	id = uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO channels (id, name, private) VALUES ($1, $2, FALSE)
		ON CONFLICT (name) DO NOTHING`,
		id, name,
	)
	if err != nil {
		return "", err
	}

	// a concurrent creator may have won the conflict
	if err := tx.QueryRow(ctx,
		`SELECT id FROM channels WHERE name = $1`, name).Scan(&id); err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO channel_users (channel_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		id, creatorID,
	)
	if err != nil {
		return "", err
	}

	return id, tx.Commit(ctx)
}

// EnsureRelationChannel finds or creates the private channel backing the chat
// relation for the unordered user pair. Both argument orders resolve to the
// same channel.
func (s *MessageStore) EnsureRelationChannel(ctx context.Context, userA, userB string) (string, error) {
	a, b := orderPair(userA, userB)

	var channelID string
	err := s.pool.QueryRow(ctx, `
		SELECT channel_id FROM chat_relations WHERE user_a = $1 AND user_b = $2`,
		a, b,
	).Scan(&channelID)
	if err == nil {
		return channelID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	channelID = uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO channels (id, name, private) VALUES ($1, $2, TRUE)
		ON CONFLICT (name) DO NOTHING`,
		channelID, "private:"+a+":"+b,
	)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_relations (id, channel_id, user_a, user_b) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_a, user_b) DO NOTHING`,
		uuid.NewString(), channelID, a, b,
	)
	if err != nil {
		return "", err
	}

	// pick up the winner on a concurrent-create race
	if err := tx.QueryRow(ctx, `
		SELECT channel_id FROM chat_relations WHERE user_a = $1 AND user_b = $2`,
		a, b,
	).Scan(&channelID); err != nil {
		return "", err
	}

	for _, userID := range []string{a, b} {
		if _, err := tx.Exec(ctx, `
			INSERT INTO channel_users (channel_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			channelID, userID,
		); err != nil {
			return "", err
		}
	}

	return channelID, tx.Commit(ctx)
}

func orderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ArchiveMessage durably stores a message and returns it with its resolved
// author.
func (s *MessageStore) ArchiveMessage(ctx context.Context, channelID, authorID, text string) (*chat.Message, error) {
	msg := &chat.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Text:      text,
		CreatedAt: time.Now(),
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, text, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, channelID, text, authorID, msg.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT id, username FROM users WHERE id = $1`, authorID,
	).Scan(&msg.CreatedBy.ID, &msg.CreatedBy.Username); err != nil {
		return nil, err
	}

	return msg, nil
}

// PendMessage queues an archived message for offline delivery.
func (s *MessageStore) PendMessage(ctx context.Context, recipientID, messageID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_messages (id, user_id, message_id) VALUES ($1, $2, $3)`,
		uuid.NewString(), recipientID, messageID,
	)
	return err
}

// DrainPending returns the recipient's pending messages oldest-first and
// deletes them. A crash between read and delete replays them on the next
// call; duplicate delivery is the accepted tradeoff.
func (s *MessageStore) DrainPending(ctx context.Context, recipientID string) ([]chat.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT p.id, m.id, m.channel_id, m.text, u.id, u.username, m.created_at
		FROM pending_messages p
		JOIN messages m ON m.id = p.message_id
		JOIN users u ON u.id = m.created_by
		WHERE p.user_id = $1
		ORDER BY p.created_at, p.id`,
		recipientID,
	)
	if err != nil {
		return nil, err
	}

	messages := []chat.Message{}
	drained := []string{}
	for rows.Next() {
		var pendingID string
		var msg chat.Message
		if err := rows.Scan(&pendingID, &msg.ID, &msg.ChannelID, &msg.Text,
			&msg.CreatedBy.ID, &msg.CreatedBy.Username, &msg.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
		drained = append(drained, pendingID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(drained) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM pending_messages WHERE id = ANY($1)`, drained); err != nil {
			return nil, err
		}
	}

	return messages, tx.Commit(ctx)
}

// ChannelHistory returns the named channel's latest messages oldest-first.
// An unknown channel yields an empty history, not an error.
func (s *MessageStore) ChannelHistory(ctx context.Context, name string, limit int) ([]chat.Message, error) {
	var channelID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM channels WHERE name = $1`, name).Scan(&channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []chat.Message{}, nil
		}
		return nil, err
	}

	return s.channelMessages(ctx, channelID, limit)
}

// RelationHistory returns the private conversation's latest messages for the
// unordered pair, oldest-first. An absent relation yields an empty history.
func (s *MessageStore) RelationHistory(ctx context.Context, userA, userB string, limit int) ([]chat.Message, error) {
	a, b := orderPair(userA, userB)

	var channelID string
	err := s.pool.QueryRow(ctx, `
		SELECT channel_id FROM chat_relations WHERE user_a = $1 AND user_b = $2`,
		a, b,
	).Scan(&channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []chat.Message{}, nil
		}
		return nil, err
	}

	return s.channelMessages(ctx, channelID, limit)
}

func (s *MessageStore) channelMessages(ctx context.Context, channelID string, limit int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel_id, text, author_id, author_username, created_at FROM (
			SELECT m.id, m.channel_id, m.text, u.id AS author_id,
			       u.username AS author_username, m.created_at
			FROM messages m
			JOIN users u ON u.id = m.created_by
			WHERE m.channel_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2
		) latest ORDER BY created_at, id`,
		channelID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.Text,
			&msg.CreatedBy.ID, &msg.CreatedBy.Username, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
