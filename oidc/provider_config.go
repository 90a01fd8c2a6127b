// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ProviderConfig is the provider's discovery document.  See:
// https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
type ProviderConfig struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JwksURI               string `json:"jwks_uri,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`

	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported           []string `json:"response_types_supported,omitempty"`
	IdTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// Validate ensures the discovery document can be used to build an
// authorization request.
func (pc *ProviderConfig) Validate() error {
	const op = "ProviderConfig.Validate"
	if pc == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrMissingProviderConfig)
	}
	if pc.AuthorizationEndpoint == "" {
		return fmt.Errorf("%s: authorization_endpoint is empty: %w", op, ErrMalformedURL)
	}
	u, err := url.Parse(pc.AuthorizationEndpoint)
	if err != nil {
		return fmt.Errorf("%s: authorization_endpoint %q is invalid: %v: %w", op, pc.AuthorizationEndpoint, err, ErrMalformedURL)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s: authorization_endpoint %q is not an absolute URL: %w", op, pc.AuthorizationEndpoint, ErrMalformedURL)
	}
	return nil
}

// Endpoint returns the provider's oauth2 endpoints.
func (pc *ProviderConfig) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   pc.AuthorizationEndpoint,
		TokenURL:  pc.TokenEndpoint,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// clone returns a deep copy, so the cached config can't be modified through
// a returned pointer.
func (pc *ProviderConfig) clone() *ProviderConfig {
	if pc == nil {
		return nil
	}
	cp := *pc
	cp.ScopesSupported = append([]string(nil), pc.ScopesSupported...)
	cp.ResponseTypesSupported = append([]string(nil), pc.ResponseTypesSupported...)
	cp.IdTokenSigningAlgValuesSupported = append([]string(nil), pc.IdTokenSigningAlgValuesSupported...)
	return &cp
}

// goOidcConfig converts the document into the go-oidc representation.
func (pc *ProviderConfig) goOidcConfig() *oidc.ProviderConfig {
	return &oidc.ProviderConfig{
		IssuerURL:   pc.Issuer,
		AuthURL:     pc.AuthorizationEndpoint,
		TokenURL:    pc.TokenEndpoint,
		UserInfoURL: pc.UserinfoEndpoint,
		JWKSURL:     pc.JwksURI,
		Algorithms:  pc.IdTokenSigningAlgValuesSupported,
	}
}
