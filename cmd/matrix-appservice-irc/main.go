// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

// Command matrix-appservice-irc runs the provisioning service of the
// Matrix/IRC bridge: the HTTP API through which Matrix users link
// rooms to IRC channels, subject to channel operator approval.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/programmerjake/matrix-appservice-irc/config"
	"github.com/programmerjake/matrix-appservice-irc/irc"
	"github.com/programmerjake/matrix-appservice-irc/lib/clock"
	"github.com/programmerjake/matrix-appservice-irc/lib/httpserver"
	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
	"github.com/programmerjake/matrix-appservice-irc/matrix"
	"github.com/programmerjake/matrix-appservice-irc/provision"
)

func main() {
	flagSet := pflag.NewFlagSet("matrix-appservice-irc", pflag.ContinueOnError)
	configPath := flagSet.String("config", "config.yaml", "path to the bridge configuration file")
	demo := flagSet.Bool("demo", false, "use in-memory IRC networks instead of live connections")
	debug := flagSet.Bool("debug", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *demo, logger); err != nil {
		logger.Error("bridge failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, demo bool, logger *slog.Logger) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := provision.OpenStore(provision.StoreConfig{
		Path:   cfg.Database,
		Clock:  clock.Real(),
		Logger: logger.With("component", "store"),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SeedConfigMappings(ctx, configMappings(cfg)); err != nil {
		return err
	}

	client, err := matrix.NewClient(matrix.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger.With("component", "matrix"),
	})
	if err != nil {
		return err
	}
	session, err := client.SessionFromToken(cfg.Homeserver.AccessToken)
	if err != nil {
		return err
	}

	// Confirm the access token works and belongs to the configured bot
	// before accepting requests.
	botUserID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("verifying homeserver access: %w", err)
	}
	if cfg.Homeserver.BotUserID != "" && botUserID.String() != cfg.Homeserver.BotUserID {
		return fmt.Errorf("access token belongs to %s, configuration names %s",
			botUserID, cfg.Homeserver.BotUserID)
	}
	logger.Info("homeserver access verified", "bot_user_id", botUserID.String())

	pool, err := ircPool(cfg, demo)
	if err != nil {
		return err
	}

	networks := make(map[string]provision.NetworkPolicy, len(cfg.Networks))
	for name, network := range cfg.Networks {
		networks[name] = provision.NetworkPolicy{
			BotNick:          network.BotNick,
			ExcludedChannels: network.ExcludedChannels,
		}
	}

	engine := provision.NewEngine(provision.EngineConfig{
		Store:  store,
		Matrix: session,
		IRC:    pool,
		Authorizer: provision.NewAuthorizer(provision.AuthorizerConfig{
			Clock:   clock.Real(),
			Timeout: cfg.RequestTimeout(),
			Logger:  logger.With("component", "authorizer"),
		}),
		Networks: networks,
		Logger:   logger.With("component", "engine"),
	})
	defer engine.Drain()

	server := httpserver.New(httpserver.Config{
		Address: cfg.Provisioning.ListenAddress,
		Handler: provision.NewHandler(provision.HandlerConfig{
			Engine: engine,
			Secret: cfg.Provisioning.Secret,
			Logger: logger.With("component", "api"),
		}),
		Logger: logger.With("component", "http"),
	})

	logger.Info("provisioning API starting",
		"address", cfg.Provisioning.ListenAddress,
		"networks", len(networks),
		"demo", demo,
	)
	return server.Serve(ctx)
}

// ircPool builds the IRC side of the bridge. Demo mode runs entirely
// in memory; operator prompts go nowhere and time out.
func ircPool(cfg *config.Config, demo bool) (irc.Pool, error) {
	names := make([]string, 0, len(cfg.Networks))
	for name := range cfg.Networks {
		names = append(names, name)
	}
	if demo {
		return irc.NewMemoryPool(names...), nil
	}
	return nil, errors.New("live IRC connections are not wired up yet; run with -demo")
}

// configMappings flattens the per-network static mappings from the
// configuration into store seed records. Validate has already vetted
// every identifier.
func configMappings(cfg *config.Config) []provision.Mapping {
	var mappings []provision.Mapping
	for name, network := range cfg.Networks {
		for channel, rooms := range network.Mappings {
			parsedChannel, err := ident.ParseChannelName(channel)
			if err != nil {
				continue
			}
			for _, room := range rooms {
				parsedRoom, err := ident.ParseRoomID(room)
				if err != nil {
					continue
				}
				mappings = append(mappings, provision.Mapping{
					RoomID:    parsedRoom,
					Network:   name,
					Channel:   parsedChannel,
					CreatedBy: "config",
					Origin:    provision.OriginConfig,
				})
			}
		}
	}
	return mappings
}
