// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string { return RedactedAccessToken }

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedAccessToken) }

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string { return RedactedRefreshToken }

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedRefreshToken) }

// Token is the result of a successful token endpoint request (authorization
// code exchange or refresh).  The flow never caches a Token; storing it is
// the caller's responsibility.
//
// Token fields are redacted when the Token is printed or marshaled to JSON.
type Token struct {
	AccessToken  AccessToken  `json:"access_token"`
	TokenType    string       `json:"token_type,omitempty"`
	RefreshToken RefreshToken `json:"refresh_token,omitempty"`
	IdToken      IdToken      `json:"id_token,omitempty"`
	Scope        string       `json:"scope,omitempty"`

	// ExpiresIn is the access_token lifetime in seconds, as returned by the
	// provider.  Zero when the provider didn't say.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Expiry is computed from ExpiresIn when the response is received. Zero
	// means the token doesn't expire.
	Expiry time.Time `json:"expiry,omitempty"`
}

// setExpiry computes Expiry from ExpiresIn, relative to now.
func (t *Token) setExpiry(now time.Time) {
	if t.ExpiresIn > 0 {
		t.Expiry = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
}

// DefaultTokenExpirySkew defines a time skew when checking a Token's
// expiration.
const DefaultTokenExpirySkew = 10 * time.Second

// IsExpired will return true if the token's access_token is expired.
// Supports the WithExpirySkew and WithNow options.
func (t *Token) IsExpired(opt ...Option) bool {
	if t == nil || t.Expiry.IsZero() {
		return false
	}
	opts := getTokenOpts(opt...)
	return t.Expiry.Round(0).Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// Valid will ensure that the access_token is not empty or expired.  Supports
// the same options as IsExpired.
func (t *Token) Valid(opt ...Option) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return !t.IsExpired(opt...)
}

// Oauth2Token returns the equivalent golang.org/x/oauth2 token, with the
// id_token available via Extra("id_token").
func (t *Token) Oauth2Token() *oauth2.Token {
	if t == nil {
		return nil
	}
	tk := &oauth2.Token{
		AccessToken:  string(t.AccessToken),
		TokenType:    t.TokenType,
		RefreshToken: string(t.RefreshToken),
		Expiry:       t.Expiry,
	}
	extra := map[string]interface{}{}
	if t.IdToken != "" {
		extra["id_token"] = string(t.IdToken)
	}
	if t.Scope != "" {
		extra["scope"] = t.Scope
	}
	if len(extra) > 0 {
		tk = tk.WithExtra(extra)
	}
	return tk
}

// StaticTokenSource returns a TokenSource that always returns the same token.
// It's meant for use with clients such as oauth2.NewClient.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(t.Oauth2Token())
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: DefaultTokenExpirySkew,
		withNowFunc:    time.Now,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed
// in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
