// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the bridge configuration.
//
// Configuration is a single file, YAML or JSONC (JSON extended with
// comments and trailing commas), selected by extension. There are no
// environment fallbacks or hidden overrides: the file is the single
// source of truth.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
)

// Config is the top-level bridge configuration.
type Config struct {
	// Homeserver identifies the Matrix homeserver the bridge acts on.
	Homeserver HomeserverConfig `yaml:"homeserver" json:"homeserver"`

	// Provisioning configures the provisioning HTTP API.
	Provisioning ProvisioningConfig `yaml:"provisioning" json:"provisioning"`

	// Database is the path to the SQLite mapping store. Defaults to
	// "provisioning.db" in the working directory.
	Database string `yaml:"database" json:"database"`

	// Networks maps an IRC network hostname (e.g., "irc.example") to
	// its per-network settings.
	Networks map[string]NetworkConfig `yaml:"networks" json:"networks"`
}

// HomeserverConfig identifies the Matrix homeserver and the bridge's
// account on it.
type HomeserverConfig struct {
	// URL is the base URL of the homeserver's client-server API.
	URL string `yaml:"url" json:"url"`

	// Domain is the server name portion of Matrix IDs issued by the
	// homeserver.
	Domain string `yaml:"domain" json:"domain"`

	// BotUserID is the Matrix user the bridge acts as when posting
	// bridging status events.
	BotUserID string `yaml:"bot_user_id" json:"bot_user_id"`

	// AccessToken authenticates the bridge bot to the homeserver.
	AccessToken string `yaml:"access_token" json:"access_token"`
}

// ProvisioningConfig configures the provisioning HTTP API.
type ProvisioningConfig struct {
	// ListenAddress is the TCP address the provisioning API binds.
	ListenAddress string `yaml:"listen_address" json:"listen_address"`

	// Secret is the bearer token callers must present. Required.
	Secret string `yaml:"secret" json:"secret"`

	// RequestTimeout bounds how long a channel operator has to
	// answer an authorization prompt, as a Go duration string.
	// Defaults to "5m".
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// NetworkConfig holds per-IRC-network settings.
type NetworkConfig struct {
	// BotNick is the nick the bridge uses on this network.
	BotNick string `yaml:"bot_nick" json:"bot_nick"`

	// ExcludedChannels lists channels that can never be provisioned.
	// Matching is case-insensitive under IRC casefolding.
	ExcludedChannels []string `yaml:"excluded_channels" json:"excluded_channels"`

	// Mappings are operator-curated static links, channel name to the
	// list of Matrix room IDs it bridges into. Static links cannot be
	// removed through the provisioning API.
	Mappings map[string][]string `yaml:"mappings" json:"mappings"`
}

// Default returns the configuration defaults applied before the file
// is loaded. The file itself is still required.
func Default() *Config {
	return &Config{
		Database: "provisioning.db",
		Provisioning: ProvisioningConfig{
			ListenAddress:  "127.0.0.1:9999",
			RequestTimeout: "5m",
		},
	}
}

// LoadFile loads configuration from path. Files ending in .json or
// .jsonc are parsed as JSONC; anything else is parsed as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	return cfg, nil
}

// RequestTimeout parses the provisioning request timeout. Call after
// Validate; an unparseable value falls back to the default.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provisioning.RequestTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Validate checks the configuration for errors. All problems are
// reported at once via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}
	if c.Homeserver.Domain == "" {
		errs = append(errs, fmt.Errorf("homeserver.domain is required"))
	}
	if c.Homeserver.BotUserID != "" {
		if _, err := ident.ParseUserID(c.Homeserver.BotUserID); err != nil {
			errs = append(errs, fmt.Errorf("homeserver.bot_user_id: %w", err))
		}
	}
	if c.Provisioning.Secret == "" {
		errs = append(errs, fmt.Errorf("provisioning.secret is required"))
	}
	if c.Provisioning.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("provisioning.listen_address is required"))
	}
	if c.Provisioning.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.Provisioning.RequestTimeout); err != nil {
			errs = append(errs, fmt.Errorf("provisioning.request_timeout: %w", err))
		}
	}
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("database is required"))
	}

	for name, network := range c.Networks {
		if _, err := ident.ParseNetworkName(name); err != nil {
			errs = append(errs, fmt.Errorf("networks: %w", err))
		}
		if network.BotNick == "" {
			errs = append(errs, fmt.Errorf("networks[%s].bot_nick is required", name))
		}
		for _, channel := range network.ExcludedChannels {
			if _, err := ident.ParseChannelName(channel); err != nil {
				errs = append(errs, fmt.Errorf("networks[%s].excluded_channels: %w", name, err))
			}
		}
		// A channel bridges to exactly one room, and channel identity
		// is casefolded, so case variants of one channel collide.
		seen := make(map[string]string, len(network.Mappings))
		for channel, rooms := range network.Mappings {
			if _, err := ident.ParseChannelName(channel); err != nil {
				errs = append(errs, fmt.Errorf("networks[%s].mappings: %w", name, err))
			} else {
				key := ident.Fold(channel)
				if other, dup := seen[key]; dup {
					errs = append(errs, fmt.Errorf(
						"networks[%s].mappings: %q and %q name the same channel", name, other, channel))
				}
				seen[key] = channel
			}
			if len(rooms) == 0 {
				errs = append(errs, fmt.Errorf("networks[%s].mappings[%s] has no rooms", name, channel))
			}
			if len(rooms) > 1 {
				errs = append(errs, fmt.Errorf(
					"networks[%s].mappings[%s] lists %d rooms; a channel bridges to one room", name, channel, len(rooms)))
			}
			for _, room := range rooms {
				if _, err := ident.ParseRoomID(room); err != nil {
					errs = append(errs, fmt.Errorf("networks[%s].mappings[%s]: %w", name, channel, err))
				}
			}
		}
	}

	return errors.Join(errs...)
}
