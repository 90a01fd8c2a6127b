// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed = errors.New("id generation failed")

	// ErrNetworkFailure is returned for every transport, status or decoding
	// failure while executing a request. The underlying cause is always
	// wrapped as well.
	ErrNetworkFailure = errors.New("network failure")

	ErrSessionCancelled          = errors.New("interactive session cancelled")
	ErrSessionPresentationFailed = errors.New("interactive session presentation failed")
	ErrPlatformUnsupported       = errors.New("interactive session unsupported on this platform")
	ErrSessionInProgress         = errors.New("interactive session already in progress")

	// ErrLoginFailed is returned when the provider redirects back with an
	// oauth error response instead of a code.
	ErrLoginFailed = errors.New("login failed")

	// ErrProtocolViolation is a contract violation between the client, its
	// configuration and the provider.  It's never retryable.
	ErrProtocolViolation = errors.New("protocol violation")

	ErrMissingAuthCode       = fmt.Errorf("authorization code is missing: %w", ErrProtocolViolation)
	ErrMissingProviderConfig = fmt.Errorf("provider discovery config is missing: %w", ErrProtocolViolation)
	ErrMalformedURL          = fmt.Errorf("malformed URL: %w", ErrProtocolViolation)

	ErrIdTokenVerificationFailed = errors.New("id_token verification failed")
)

// ResponseError is an unsuccessful response from the provider.  When the
// body is an oauth error response (RFC 6749 section 5.2) Code, Description
// and Uri are populated.
type ResponseError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// Error satisfies the error interface.
func (e *ResponseError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("provider responded %d: %s: %s", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("provider responded %d", e.StatusCode)
	}
}

// AuthenErrorResponse represents Oauth2 error responses returned in the
// redirect.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// LoginError wraps ErrLoginFailed and carries the provider's error response.
type LoginError struct {
	Response AuthenErrorResponse
}

// Error satisfies the error interface.
func (e *LoginError) Error() string {
	if e.Response.Description != "" {
		return fmt.Sprintf("%s: %s: %s", ErrLoginFailed, e.Response.Error, e.Response.Description)
	}
	return fmt.Sprintf("%s: %s", ErrLoginFailed, e.Response.Error)
}

// Unwrap returns ErrLoginFailed
func (e *LoginError) Unwrap() error { return ErrLoginFailed }

// IsRecoverable reports whether err is a failure the caller may retry or
// present to the user, as opposed to a protocol violation.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrProtocolViolation)
}
