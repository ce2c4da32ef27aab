// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package ident

import "fmt"

// NetworkName is a validated IRC network hostname (e.g.,
// "irc.example.org"). The grammar is the usual DNS label rule:
// dot-separated labels of letters, digits, and interior hyphens.
// The zero value is not valid; use IsZero to check.
type NetworkName struct {
	name string
}

// ParseNetworkName validates and wraps a raw network hostname.
func ParseNetworkName(raw string) (NetworkName, error) {
	if raw == "" {
		return NetworkName{}, fmt.Errorf("empty network name")
	}
	if len(raw) > 253 {
		return NetworkName{}, fmt.Errorf("network name too long: %q", raw)
	}

	labelStart := 0
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) && raw[i] != '.' {
			continue
		}
		label := raw[labelStart:i]
		if err := validateLabel(label); err != nil {
			return NetworkName{}, fmt.Errorf("network name %q: %w", raw, err)
		}
		labelStart = i + 1
	}

	return NetworkName{name: raw}, nil
}

func validateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("empty hostname label")
	}
	if len(label) > 63 {
		return fmt.Errorf("hostname label %q too long", label)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("hostname label %q starts or ends with '-'", label)
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return fmt.Errorf("hostname label %q: invalid character %q", label, c)
		}
	}
	return nil
}

// String returns the network hostname.
func (n NetworkName) String() string { return n.name }

// IsZero reports whether the NetworkName is the zero value.
func (n NetworkName) IsZero() bool { return n.name == "" }
