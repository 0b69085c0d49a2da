package mqtt

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/skyformat99/libmqtt-3/internal/infrastructure/database"
)

// sqliteOpTimeout bounds every store operation.
const sqliteOpTimeout = 5 * time.Second

//go:embed schema/*.sql
var schemaFiles embed.FS

// sqliteStore keeps packets in a SQLite table, one row per key.
type sqliteStore struct {
	path  string
	fault faultFunc

	mu sync.Mutex
	db *database.DB
}

func newSQLiteStore(path string, fault faultFunc) *sqliteStore {
	return &sqliteStore{path: path, fault: fault}
}

func (s *sqliteStore) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return
	}
	db, err := database.Open(database.Config{Path: s.path, WALMode: true})
	if err != nil {
		s.report("open", err)
		return
	}

	schema, err := fs.Sub(schemaFiles, "schema")
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		s.report("open", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	if _, err := db.Migrate(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		s.report("migrate", err)
		return
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		s.report("health", err)
		return
	}
	s.db = db
}

func (s *sqliteStore) Put(key string, m packets.ControlPacket) {
	data, err := encodePacket(m)
	if err != nil {
		s.report("encode "+key, err)
		return
	}
	s.do("put "+key, func(ctx context.Context, db *database.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT OR REPLACE INTO packets (key, data, stored_at) VALUES (?, ?, ?)",
			key, data, time.Now().UnixNano(),
		)
		return err
	})
}

func (s *sqliteStore) Get(key string) packets.ControlPacket {
	var m packets.ControlPacket
	s.do("get "+key, func(ctx context.Context, db *database.DB) error {
		var data []byte
		err := db.QueryRowContext(ctx, "SELECT data FROM packets WHERE key = ?", key).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		m, err = decodePacket(data)
		return err
	})
	return m
}

// All returns the stored keys, oldest first.
func (s *sqliteStore) All() []string {
	var keys []string
	s.do("list", func(ctx context.Context, db *database.DB) error {
		rows, err := db.QueryContext(ctx, "SELECT key FROM packets ORDER BY stored_at, rowid")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	return keys
}

func (s *sqliteStore) Del(key string) {
	s.do("delete "+key, func(ctx context.Context, db *database.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM packets WHERE key = ?", key)
		return err
	})
}

func (s *sqliteStore) Reset() {
	s.do("reset", func(ctx context.Context, db *database.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM packets")
		return err
	})
}

func (s *sqliteStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.report("close", err)
	}
	s.db = nil
}

func (s *sqliteStore) do(what string, op func(ctx context.Context, db *database.DB) error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()

	if db == nil {
		s.report(what, errStoreClosed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	if err := op(ctx, db); err != nil {
		s.report(what, err)
	}
}

func (s *sqliteStore) report(what string, err error) {
	if s.fault != nil {
		s.fault(fmt.Errorf("%w: sqlite %s: %w", ErrPersistFailed, what, err))
	}
}
