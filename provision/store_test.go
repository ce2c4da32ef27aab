// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/programmerjake/matrix-appservice-irc/lib/clock"
	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
)

func mustRoom(t *testing.T, raw string) ident.RoomID {
	t.Helper()
	roomID, err := ident.ParseRoomID(raw)
	if err != nil {
		t.Fatalf("ParseRoomID(%q) failed: %v", raw, err)
	}
	return roomID
}

func mustChannel(t *testing.T, raw string) ident.ChannelName {
	t.Helper()
	channel, err := ident.ParseChannelName(raw)
	if err != nil {
		t.Fatalf("ParseChannelName(%q) failed: %v", raw, err)
	}
	return channel
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(StoreConfig{
		Path:     filepath.Join(t.TempDir(), "mappings.db"),
		PoolSize: 1,
		Clock:    clock.Fake(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertAndFind(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	err := store.Insert(ctx, Mapping{
		RoomID:    mustRoom(t, "!foo:bar"),
		Network:   "irc.example",
		Channel:   mustChannel(t, "#SomeCaps"),
		CreatedBy: "@alice:bar",
		Origin:    OriginProvisioned,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Lookup is case-insensitive; the stored case is preserved.
	mapping, found, err := store.Find(ctx, "irc.example", mustChannel(t, "#somecaps"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !found {
		t.Fatal("mapping not found")
	}
	if mapping.Channel.String() != "#SomeCaps" {
		t.Errorf("stored channel = %q, want original case", mapping.Channel.String())
	}
	if mapping.CreatedBy != "@alice:bar" || mapping.Origin != OriginProvisioned {
		t.Errorf("unexpected mapping: %+v", mapping)
	}
	if mapping.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}

	_, found, err = store.Find(ctx, "irc.other", mustChannel(t, "#somecaps"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found {
		t.Error("channel should not exist on another network")
	}
}

func TestInsertConflict(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := Mapping{
		RoomID:  mustRoom(t, "!foo:bar"),
		Network: "irc.example",
		Channel: mustChannel(t, "#lobby"),
		Origin:  OriginProvisioned,
	}
	if err := store.Insert(ctx, base); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Same channel, different case and different room: still a conflict.
	conflict := base
	conflict.RoomID = mustRoom(t, "!other:bar")
	conflict.Channel = mustChannel(t, "#LOBBY")
	if err := store.Insert(ctx, conflict); !errors.Is(err, ErrMappingExists) {
		t.Fatalf("Insert conflict = %v, want ErrMappingExists", err)
	}

	// Same channel on a different network is fine.
	elsewhere := base
	elsewhere.Network = "irc.other"
	if err := store.Insert(ctx, elsewhere); err != nil {
		t.Fatalf("Insert on other network failed: %v", err)
	}
}

func TestFindByRoomOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	roomID := mustRoom(t, "!foo:bar")

	for _, channel := range []string{"#first", "#second", "#third"} {
		err := store.Insert(ctx, Mapping{
			RoomID:  roomID,
			Network: "irc.example",
			Channel: mustChannel(t, channel),
			Origin:  OriginProvisioned,
		})
		if err != nil {
			t.Fatalf("Insert %s failed: %v", channel, err)
		}
	}

	mappings, err := store.FindByRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("FindByRoom failed: %v", err)
	}
	if len(mappings) != 3 {
		t.Fatalf("got %d mappings, want 3", len(mappings))
	}
	for i, want := range []string{"#first", "#second", "#third"} {
		if mappings[i].Channel.String() != want {
			t.Errorf("mappings[%d] = %q, want %q (creation order)", i, mappings[i].Channel.String(), want)
		}
	}

	empty, err := store.FindByRoom(ctx, mustRoom(t, "!empty:bar"))
	if err != nil {
		t.Fatalf("FindByRoom failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("FindByRoom for unmapped room = %v, want empty non-nil slice", empty)
	}
}

func TestRemove(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	roomID := mustRoom(t, "!foo:bar")
	channel := mustChannel(t, "#lobby")

	t.Run("not found", func(t *testing.T) {
		err := store.Remove(ctx, roomID, "irc.example", channel)
		if !errors.Is(err, ErrMappingNotFound) {
			t.Fatalf("Remove = %v, want ErrMappingNotFound", err)
		}
	})

	t.Run("provisioned mapping removed", func(t *testing.T) {
		err := store.Insert(ctx, Mapping{
			RoomID: roomID, Network: "irc.example", Channel: channel,
			Origin: OriginProvisioned,
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := store.Remove(ctx, roomID, "irc.example", mustChannel(t, "#LOBBY")); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if _, found, _ := store.Find(ctx, "irc.example", channel); found {
			t.Error("mapping still present after Remove")
		}
	})

	t.Run("config mapping immutable", func(t *testing.T) {
		err := store.Insert(ctx, Mapping{
			RoomID: roomID, Network: "irc.example", Channel: channel,
			Origin: OriginConfig,
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		err = store.Remove(ctx, roomID, "irc.example", channel)
		if !errors.Is(err, ErrMappingImmutable) {
			t.Fatalf("Remove = %v, want ErrMappingImmutable", err)
		}
		if _, found, _ := store.Find(ctx, "irc.example", channel); !found {
			t.Error("config mapping must survive Remove")
		}
	})
}

func TestSeedConfigMappings(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seed := []Mapping{
		{RoomID: mustRoom(t, "!foo:bar"), Network: "irc.example", Channel: mustChannel(t, "#static")},
		{RoomID: mustRoom(t, "!baz:bar"), Network: "irc.example", Channel: mustChannel(t, "#other")},
	}
	if err := store.SeedConfigMappings(ctx, seed); err != nil {
		t.Fatalf("SeedConfigMappings failed: %v", err)
	}

	mapping, found, err := store.Find(ctx, "irc.example", mustChannel(t, "#static"))
	if err != nil || !found {
		t.Fatalf("seeded mapping missing: %v", err)
	}
	if mapping.Origin != OriginConfig {
		t.Errorf("origin = %q, want config", mapping.Origin)
	}

	// Re-seeding with a smaller set drops the stale config mapping.
	if err := store.SeedConfigMappings(ctx, seed[:1]); err != nil {
		t.Fatalf("re-seed failed: %v", err)
	}
	if _, found, _ := store.Find(ctx, "irc.example", mustChannel(t, "#other")); found {
		t.Error("stale config mapping survived re-seed")
	}

	// A provisioned mapping shadows a colliding config mapping.
	err = store.Insert(ctx, Mapping{
		RoomID: mustRoom(t, "!live:bar"), Network: "irc.example",
		Channel: mustChannel(t, "#claimed"), Origin: OriginProvisioned,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	seed = append(seed, Mapping{
		RoomID: mustRoom(t, "!cfg:bar"), Network: "irc.example",
		Channel: mustChannel(t, "#claimed"),
	})
	if err := store.SeedConfigMappings(ctx, seed); err != nil {
		t.Fatalf("seed with collision failed: %v", err)
	}
	mapping, _, err = store.Find(ctx, "irc.example", mustChannel(t, "#claimed"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if mapping.Origin != OriginProvisioned {
		t.Errorf("provisioned mapping lost to config seed: %+v", mapping)
	}
}
