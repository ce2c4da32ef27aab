// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPoolRoundTrip(t *testing.T) {
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		PoolSize: 2,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn,
				"CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)", nil)
		},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	conn, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}

	err = sqlitex.Execute(conn, "INSERT INTO kv (k, v) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"channel", "#lobby"},
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	pool.Put(conn)

	conn, err = pool.Take(ctx)
	if err != nil {
		t.Fatalf("second Take failed: %v", err)
	}
	defer pool.Put(conn)

	var got string
	err = sqlitex.Execute(conn, "SELECT v FROM kv WHERE k = ?", &sqlitex.ExecOptions{
		Args: []any{"channel"},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			got = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if got != "#lobby" {
		t.Errorf("read back %q, want %q", got, "#lobby")
	}
}

func TestOnConnectErrorSurfacesFromTake(t *testing.T) {
	bad := errors.New("schema failure")
	pool, err := Open(Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		PoolSize:  1,
		OnConnect: func(*sqlite.Conn) error { return bad },
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Take(context.Background()); err == nil {
		t.Fatal("expected Take to surface the OnConnect error")
	}
}
