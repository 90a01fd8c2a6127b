// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Descriptor is the pure data description of a request: it's everything an
// Executor needs to perform the request.
type Descriptor struct {
	// Method is the http method
	Method string

	// Host overrides the executor's default host when not empty.
	Host string

	// Path is the request path, including the leading /
	Path string

	// Form is sent form-encoded as the request body.  Nil means no body.
	Form url.Values

	// Header contains optional additional request headers
	Header http.Header
}

// URL composes the request URL, using defaultHost when the descriptor
// doesn't override it.
func (d Descriptor) URL(scheme, defaultHost string) *url.URL {
	host := d.Host
	if host == "" {
		host = defaultHost
	}
	return &url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   d.Path,
	}
}

// Request declares a request along with the shape of its expected response.
type Request[R any] interface {
	// Descriptor returns the request's description.
	Descriptor() Descriptor

	// NewResponse allocates the value the response is decoded into.
	NewResponse() *R
}

// Execute performs r using e and returns the decoded response.
func Execute[R any](ctx context.Context, e Executor, r Request[R]) (*R, error) {
	const op = "oidc.Execute"
	if e == nil {
		return nil, fmt.Errorf("%s: executor is nil: %w", op, ErrNilParameter)
	}
	out := r.NewResponse()
	if err := e.Execute(ctx, r.Descriptor(), out); err != nil {
		return nil, err
	}
	return out, nil
}

// DiscoveryRequest requests the provider's discovery document.
type DiscoveryRequest struct{}

var _ Request[ProviderConfig] = DiscoveryRequest{}

// Descriptor implements Request
func (DiscoveryRequest) Descriptor() Descriptor {
	return Descriptor{
		Method: http.MethodGet,
		Path:   DiscoveryPath,
	}
}

// NewResponse implements Request
func (DiscoveryRequest) NewResponse() *ProviderConfig { return &ProviderConfig{} }

// AccessTokenRequest exchanges an authorization code for tokens.
type AccessTokenRequest struct {
	Code        string
	ClientId    string
	RedirectUrl string

	// TokenPath is the token endpoint path.  Defaults to DefaultTokenPath
	TokenPath string
}

var _ Request[Token] = AccessTokenRequest{}

// Descriptor implements Request
func (r AccessTokenRequest) Descriptor() Descriptor {
	return Descriptor{
		Method: http.MethodPost,
		Path:   tokenPath(r.TokenPath),
		Form: url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {r.Code},
			"client_id":    {r.ClientId},
			"redirect_uri": {r.RedirectUrl},
		},
	}
}

// NewResponse implements Request
func (AccessTokenRequest) NewResponse() *Token { return &Token{} }

// RefreshTokenRequest exchanges a refresh_token for new tokens.
type RefreshTokenRequest struct {
	ClientId     string
	RefreshToken RefreshToken

	// TokenPath is the token endpoint path.  Defaults to DefaultTokenPath
	TokenPath string
}

var _ Request[Token] = RefreshTokenRequest{}

// Descriptor implements Request
func (r RefreshTokenRequest) Descriptor() Descriptor {
	return Descriptor{
		Method: http.MethodPost,
		Path:   tokenPath(r.TokenPath),
		Form: url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {r.ClientId},
			"refresh_token": {string(r.RefreshToken)},
		},
	}
}

// NewResponse implements Request
func (RefreshTokenRequest) NewResponse() *Token { return &Token{} }

// LogoutHost is the host the logout request is sent to.
const LogoutHost = "logout"

// LogoutResponse is the (empty) response of a LogoutRequest.
type LogoutResponse struct{}

// LogoutRequest ends the user's session with the provider.  It's presented
// through the interactive session rather than sent by the Executor.
type LogoutRequest struct{}

var _ Request[LogoutResponse] = LogoutRequest{}

// Descriptor implements Request
func (LogoutRequest) Descriptor() Descriptor {
	return Descriptor{
		Method: http.MethodPost,
		Host:   LogoutHost,
		Path:   "",
	}
}

// NewResponse implements Request
func (LogoutRequest) NewResponse() *LogoutResponse { return &LogoutResponse{} }

// URL returns the logout URL: https://logout
func (r LogoutRequest) URL() *url.URL {
	return r.Descriptor().URL("https", "")
}

func tokenPath(p string) string {
	if p == "" {
		return DefaultTokenPath
	}
	return p
}
