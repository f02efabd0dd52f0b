package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArchSirius/log3900-server/internal/app/db"
	"github.com/ArchSirius/log3900-server/internal/app/zone"
)

// ZoneStore persists zones and their child nodes.
type ZoneStore struct {
	pool *pgxpool.Pool
}

// NewZoneStore constructs a ZoneStore over the shared pool.
func NewZoneStore(pool *pgxpool.Pool) *ZoneStore {
	return &ZoneStore{pool: pool}
}

// CreateZone inserts a zone together with its initial nodes in one
// transaction.
func (s *ZoneStore) CreateZone(ctx context.Context, z *zone.Zone) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO zones (id, name, private, secret_hash, thumbnail, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		z.ID, z.Name, z.Private, z.SecretHash, z.Thumbnail,
		z.CreatedBy, z.UpdatedBy, z.CreatedAt, z.UpdatedAt,
	); err != nil {
		return err
	}

	for _, n := range z.Nodes {
		if err := insertNode(ctx, tx, z.ID, n); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListZones returns every zone without its nodes, newest-first.
func (s *ZoneStore) ListZones(ctx context.Context) ([]*zone.Zone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, private, thumbnail, played_games, played_time,
		       created_by, updated_by, created_at, updated_at
		FROM zones ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []*zone.Zone{}
	for rows.Next() {
		z := &zone.Zone{}
		if err := rows.Scan(&z.ID, &z.Name, &z.Private, &z.Thumbnail,
			&z.Stats.PlayedGames, &z.Stats.PlayedTime,
			&z.CreatedBy, &z.UpdatedBy, &z.CreatedAt, &z.UpdatedAt); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// GetZone loads a zone with its child nodes populated in document order
// (insertion order, ties broken by id).
func (s *ZoneStore) GetZone(ctx context.Context, id string) (*zone.Zone, error) {
	z := &zone.Zone{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, private, secret_hash, thumbnail, played_games, played_time,
		       created_by, updated_by, created_at, updated_at
		FROM zones WHERE id = $1`,
		id,
	).Scan(&z.ID, &z.Name, &z.Private, &z.SecretHash, &z.Thumbnail,
		&z.Stats.PlayedGames, &z.Stats.PlayedTime,
		&z.CreatedBy, &z.UpdatedBy, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, pos_x, pos_y, pos_z, angle, scale_x, scale_y, scale_z,
		       COALESCE(parent_id::text, ''), created_by, updated_by, created_at, updated_at
		FROM nodes WHERE zone_id = $1 ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	z.Nodes = []*zone.Node{}
	for rows.Next() {
		n := &zone.Node{}
		if err := rows.Scan(&n.ID, &n.Type,
			&n.Position.X, &n.Position.Y, &n.Position.Z, &n.Angle,
			&n.Scale.X, &n.Scale.Y, &n.Scale.Z,
			&n.Parent, &n.CreatedBy, &n.UpdatedBy, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		z.Nodes = append(z.Nodes, n)
	}
	return z, rows.Err()
}

// UpdateZone overwrites the zone's mutable metadata.
func (s *ZoneStore) UpdateZone(ctx context.Context, z *zone.Zone) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE zones SET name = $2, private = $3, secret_hash = $4, thumbnail = $5,
		       updated_by = $6, updated_at = now()
		WHERE id = $1`,
		z.ID, z.Name, z.Private, z.SecretHash, z.Thumbnail, z.UpdatedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// DeleteZone removes the zone; child nodes cascade.
func (s *ZoneStore) DeleteZone(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM zones WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// CreateNode appends a node to the zone.
func (s *ZoneStore) CreateNode(ctx context.Context, zoneID string, n *zone.Node) error {
	return insertNode(ctx, s.pool, zoneID, n)
}

// execer abstracts the pool and an open transaction for node inserts.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertNode(ctx context.Context, q execer, zoneID string, n *zone.Node) error {
	parent := any(nil)
	if n.Parent != "" {
		parent = n.Parent
	}
	_, err := q.Exec(ctx, `
		INSERT INTO nodes (id, zone_id, type, pos_x, pos_y, pos_z, angle,
		                   scale_x, scale_y, scale_z, parent_id,
		                   created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		n.ID, zoneID, n.Type,
		n.Position.X, n.Position.Y, n.Position.Z, n.Angle,
		n.Scale.X, n.Scale.Y, n.Scale.Z, parent,
		n.CreatedBy, n.UpdatedBy, n.CreatedAt, n.UpdatedAt,
	)
	return err
}

// SaveNode persists a node's mutated transform and audit fields.
func (s *ZoneStore) SaveNode(ctx context.Context, zoneID string, n *zone.Node) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nodes SET pos_x = $3, pos_y = $4, pos_z = $5, angle = $6,
		       scale_x = $7, scale_y = $8, scale_z = $9,
		       updated_by = $10, updated_at = $11
		WHERE id = $1 AND zone_id = $2`,
		n.ID, zoneID,
		n.Position.X, n.Position.Y, n.Position.Z, n.Angle,
		n.Scale.X, n.Scale.Y, n.Scale.Z,
		n.UpdatedBy, n.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// DeleteNodes removes the given nodes from the zone.
func (s *ZoneStore) DeleteNodes(ctx context.Context, zoneID string, nodeIDs []string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM nodes WHERE zone_id = $1 AND id = ANY($2)`,
		zoneID, nodeIDs,
	)
	return err
}

// TouchZone stamps the zone aggregate's audit fields.
func (s *ZoneStore) TouchZone(ctx context.Context, zoneID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE zones SET updated_by = $2, updated_at = now() WHERE id = $1`,
		zoneID, userID,
	)
	return err
}

// AddZoneStats increments the zone's simulation counters.
func (s *ZoneStore) AddZoneStats(ctx context.Context, zoneID string, games int, seconds float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE zones SET played_games = played_games + $2, played_time = played_time + $3
		WHERE id = $1`,
		zoneID, games, seconds,
	)
	return err
}
