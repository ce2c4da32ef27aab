// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/programmerjake/matrix-appservice-irc/lib/testutil"
)

func TestServeAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok")
	})
	server := New(Config{Address: "127.0.0.1:0", Handler: handler})

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")

	response, err := http.Get("http://" + server.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "serve exit"); err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
}

func TestServeBadAddress(t *testing.T) {
	server := New(Config{Address: "256.0.0.1:99999", Handler: http.NotFoundHandler()})
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
