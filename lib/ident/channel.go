// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package ident

import "fmt"

// ChannelName is a validated IRC channel name (e.g., "#lobby"). It
// preserves the case it was parsed with; use Key for the
// case-insensitive comparison form. The zero value is not valid; use
// IsZero to check.
type ChannelName struct {
	name string
}

// ParseChannelName validates and wraps a raw IRC channel name. A
// channel name starts with '#', '&', or '+' and contains no spaces,
// commas, colons, or control characters (RFC 2812 section 1.3).
func ParseChannelName(raw string) (ChannelName, error) {
	if len(raw) < 2 {
		return ChannelName{}, fmt.Errorf("channel name too short: %q", raw)
	}
	if len(raw) > 50 {
		return ChannelName{}, fmt.Errorf("channel name too long: %q", raw)
	}
	if raw[0] != '#' && raw[0] != '&' && raw[0] != '+' {
		return ChannelName{}, fmt.Errorf("channel name must start with '#', '&', or '+': %q", raw)
	}
	for i := 1; i < len(raw); i++ {
		c := raw[i]
		if c <= ' ' || c == ',' || c == ':' || c == 0x7f {
			return ChannelName{}, fmt.Errorf("channel name %q: invalid character at position %d", raw, i)
		}
	}
	return ChannelName{name: raw}, nil
}

// String returns the channel name with its original case.
func (c ChannelName) String() string { return c.name }

// Key returns the RFC 1459 casefolded form of the channel name.
// Channel identity on IRC is case-insensitive under this folding, so
// Key is what mapping uniqueness and lookups compare.
func (c ChannelName) Key() string { return Fold(c.name) }

// IsZero reports whether the ChannelName is the zero value.
func (c ChannelName) IsZero() bool { return c.name == "" }

// Fold lowercases s under RFC 1459 rules: ASCII letters fold as
// usual, and '[', ']', '\', '~' fold to '{', '}', '|', '^'. IRC
// servers treat names equal under this folding as the same name.
func Fold(s string) string {
	folded := []byte(s)
	for i, c := range folded {
		switch {
		case c >= 'A' && c <= 'Z':
			folded[i] = c + ('a' - 'A')
		case c == '[':
			folded[i] = '{'
		case c == ']':
			folded[i] = '}'
		case c == '\\':
			folded[i] = '|'
		case c == '~':
			folded[i] = '^'
		}
	}
	return string(folded)
}
