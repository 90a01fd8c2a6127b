// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package urlutil provides helpers for composing URLs whose query parameter
// order matters.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// AddOrReplace returns rawURL with its query containing exactly one key=value
// pair. An existing key keeps its position; a new key is appended. All other
// pairs are kept as-is and in order.
func AddOrReplace(rawURL, key, value string) (string, error) {
	const op = "urlutil.AddOrReplace"
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%s: unable to parse %q: %w", op, rawURL, err)
	}
	return AddOrReplaceURL(u, key, value).String(), nil
}

// AddOrReplaceURL is AddOrReplace for an already parsed URL.  u is never
// modified.
func AddOrReplaceURL(u *url.URL, key, value string) *url.URL {
	cp := *u
	if u.User != nil {
		user := *u.User
		cp.User = &user
	}

	pair := QueryEscape(key) + "=" + QueryEscape(value)
	var (
		pairs    []string
		replaced bool
	)
	for _, p := range splitQuery(u.RawQuery) {
		if decodedKey(p) != key {
			pairs = append(pairs, p)
			continue
		}
		if !replaced {
			pairs = append(pairs, pair)
			replaced = true
		}
	}
	if !replaced {
		pairs = append(pairs, pair)
	}
	cp.RawQuery = strings.Join(pairs, "&")
	cp.ForceQuery = false
	return &cp
}

// QueryEscape escapes s for use in a query, encoding spaces as %20 rather
// than "+".
func QueryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func splitQuery(raw string) []string {
	var pairs []string
	for _, p := range strings.Split(raw, "&") {
		if p == "" {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func decodedKey(pair string) string {
	k, _, _ := strings.Cut(pair, "=")
	if dk, err := url.QueryUnescape(k); err == nil {
		return dk
	}
	return k
}
