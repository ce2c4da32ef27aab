// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/programmerjake/matrix-appservice-irc/lib/clock"
	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
	"github.com/programmerjake/matrix-appservice-irc/lib/sqlitepool"
)

// Store errors.
var (
	// ErrMappingExists is returned by Insert when the channel is
	// already mapped on that network.
	ErrMappingExists = errors.New("mapping already exists")

	// ErrMappingNotFound is returned by Remove when no mapping
	// matches.
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrMappingImmutable is returned by Remove when the only
	// matching mapping came from the bridge configuration.
	ErrMappingImmutable = errors.New("mapping is defined in configuration")
)

// Store persists room-to-channel mappings in SQLite. Uniqueness is
// enforced per (network, casefolded channel); the channel's original
// case is preserved for display.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// StoreConfig holds the parameters for opening a mapping store.
type StoreConfig struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Clock provides mapping creation timestamps. Required.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

const mappingSchema = `
	CREATE TABLE IF NOT EXISTS mapping (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id     TEXT NOT NULL,
		network     TEXT NOT NULL,
		channel     TEXT NOT NULL,
		channel_key TEXT NOT NULL,
		created_by  TEXT NOT NULL,
		origin      TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_mapping_channel
		ON mapping(network, channel_key);
	CREATE INDEX IF NOT EXISTS idx_mapping_room ON mapping(room_id);
`

// OpenStore opens (and if needed creates) the mapping database.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("mapping store: Clock is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, mappingSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mapping store: %w", err)
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Find returns the mapping for a channel on a network, or false.
func (s *Store) Find(ctx context.Context, network string, channel ident.ChannelName) (Mapping, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Mapping{}, false, fmt.Errorf("mapping store: find: %w", err)
	}
	defer s.pool.Put(conn)

	var mapping Mapping
	found := false
	err = sqlitex.Execute(conn,
		`SELECT room_id, network, channel, created_by, origin, created_at
		 FROM mapping WHERE network = ? AND channel_key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{network, channel.Key()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := scanMapping(stmt)
				if err != nil {
					return err
				}
				mapping = scanned
				found = true
				return nil
			},
		})
	if err != nil {
		return Mapping{}, false, fmt.Errorf("mapping store: find: %w", err)
	}
	return mapping, found, nil
}

// FindByRoom returns all mappings for a Matrix room in creation order.
// The result is non-nil even when empty.
func (s *Store) FindByRoom(ctx context.Context, roomID ident.RoomID) ([]Mapping, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("mapping store: find by room: %w", err)
	}
	defer s.pool.Put(conn)

	mappings := []Mapping{}
	err = sqlitex.Execute(conn,
		`SELECT room_id, network, channel, created_by, origin, created_at
		 FROM mapping WHERE room_id = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := scanMapping(stmt)
				if err != nil {
					return err
				}
				mappings = append(mappings, scanned)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("mapping store: find by room: %w", err)
	}
	return mappings, nil
}

// Insert commits a new mapping. Returns ErrMappingExists if the
// channel is already mapped on that network, regardless of origin.
func (s *Store) Insert(ctx context.Context, mapping Mapping) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("mapping store: insert: %w", err)
	}
	defer s.pool.Put(conn)

	err = s.insert(conn, mapping)
	if err != nil {
		return err
	}

	s.logger.Info("mapping committed",
		"room_id", mapping.RoomID.String(),
		"network", mapping.Network,
		"channel", mapping.Channel.String(),
		"origin", string(mapping.Origin),
	)
	return nil
}

func (s *Store) insert(conn *sqlite.Conn, mapping Mapping) error {
	createdAt := mapping.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	err := sqlitex.Execute(conn,
		`INSERT INTO mapping
		 (room_id, network, channel, channel_key, created_by, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				mapping.RoomID.String(),
				mapping.Network,
				mapping.Channel.String(),
				mapping.Channel.Key(),
				mapping.CreatedBy,
				string(mapping.Origin),
				createdAt.Unix(),
			},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return ErrMappingExists
		}
		return fmt.Errorf("mapping store: insert: %w", err)
	}
	return nil
}

// Remove deletes the provisioned mapping between a room and a channel.
// Returns ErrMappingNotFound if no mapping links them, and
// ErrMappingImmutable if the link exists but came from configuration.
func (s *Store) Remove(ctx context.Context, roomID ident.RoomID, network string, channel ident.ChannelName) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("mapping store: remove: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("mapping store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var origin string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT origin FROM mapping
		 WHERE room_id = ? AND network = ? AND channel_key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String(), network, channel.Key()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				origin = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("mapping store: remove: %w", err)
	}
	if !found {
		return ErrMappingNotFound
	}
	if Origin(origin) == OriginConfig {
		return ErrMappingImmutable
	}

	err = sqlitex.Execute(conn,
		`DELETE FROM mapping
		 WHERE room_id = ? AND network = ? AND channel_key = ? AND origin = ?`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String(), network, channel.Key(), string(OriginProvisioned)},
		})
	if err != nil {
		return fmt.Errorf("mapping store: remove: %w", err)
	}

	s.logger.Info("mapping removed",
		"room_id", roomID.String(),
		"network", network,
		"channel", channel.String(),
	)
	return nil
}

// SeedConfigMappings replaces all config-origin mappings with the
// given set. Called at startup so the store mirrors the configuration
// file. A config mapping whose channel is already mapped (by a
// surviving provisioned link, or by an earlier entry in the seed set)
// is skipped with a warning; the existing mapping wins.
func (s *Store) SeedConfigMappings(ctx context.Context, mappings []Mapping) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("mapping store: seed: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("mapping store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		"DELETE FROM mapping WHERE origin = ?",
		&sqlitex.ExecOptions{Args: []any{string(OriginConfig)}})
	if err != nil {
		return fmt.Errorf("mapping store: seed: %w", err)
	}

	for _, mapping := range mappings {
		mapping.Origin = OriginConfig
		insertErr := s.insert(conn, mapping)
		if errors.Is(insertErr, ErrMappingExists) {
			s.logger.Warn("config mapping skipped, channel is already mapped",
				"network", mapping.Network,
				"channel", mapping.Channel.String(),
				"room_id", mapping.RoomID.String(),
			)
			continue
		}
		if insertErr != nil {
			err = insertErr
			return err
		}
	}

	return nil
}

func scanMapping(stmt *sqlite.Stmt) (Mapping, error) {
	roomID, err := ident.ParseRoomID(stmt.ColumnText(0))
	if err != nil {
		return Mapping{}, fmt.Errorf("mapping store: stored room ID: %w", err)
	}
	channel, err := ident.ParseChannelName(stmt.ColumnText(2))
	if err != nil {
		return Mapping{}, fmt.Errorf("mapping store: stored channel: %w", err)
	}
	return Mapping{
		RoomID:    roomID,
		Network:   stmt.ColumnText(1),
		Channel:   channel,
		CreatedBy: stmt.ColumnText(3),
		Origin:    Origin(stmt.ColumnText(4)),
		CreatedAt: time.Unix(stmt.ColumnInt64(5), 0).UTC(),
	}, nil
}
