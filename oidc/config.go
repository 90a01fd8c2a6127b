// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hseauth/oidc/internal/httputil"
)

const (
	// DefaultTokenPath is the token endpoint path used when WithTokenPath is
	// not provided.
	DefaultTokenPath = "/token"

	// DiscoveryPath is the well-known path of the provider's discovery
	// document.
	DiscoveryPath = "/.well-known/openid-configuration"
)

// Config represents the client identity used for every flow: who the client
// is, where the provider lives and where the provider should redirect to.  A
// Config is immutable once created by NewConfig.
type Config struct {
	// ClientId is the opaque client identifier issued by the provider.
	ClientId string

	// RedirectScheme is the URL scheme used to receive the browser redirect.
	RedirectScheme string

	// Host is the provider's host (and optional port).  All requests are
	// sent to https://Host unless a request overrides the host.
	Host string

	// RedirectPath is the path component of the redirect URL.
	RedirectPath string

	// TokenPath is the path of the provider's token endpoint.
	TokenPath string

	// SupportedSigningAlgs is a list of algorithms accepted when verifying an
	// id_token.  Defaults to RS256.
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider.
	ProviderCA string

	// Logger is an optional logger.  Defaults to a null logger.
	Logger hclog.Logger

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time

	redirectUrl string
}

// NewConfig composes a new Config for the given client identity.  The
// redirect URL is computed once as: redirectScheme + "://" + host +
// redirectPath.
//
// Supported options:
//   - WithTokenPath
//   - WithSupportedSigningAlgs
//   - WithProviderCA
//   - WithLogger
//   - WithNow
func NewConfig(clientId, redirectScheme, host, redirectPath string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientId:             clientId,
		RedirectScheme:       redirectScheme,
		Host:                 host,
		RedirectPath:         redirectPath,
		TokenPath:            opts.withTokenPath,
		SupportedSigningAlgs: opts.withSupportedSigningAlgs,
		ProviderCA:           opts.withProviderCA,
		Logger:               opts.withLogger,
		NowFunc:              opts.withNowFunc,
		redirectUrl:          redirectScheme + "://" + host + redirectPath,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// RedirectUrl returns the fully qualified redirect URL sent to the provider.
func (c *Config) RedirectUrl() string {
	if c.redirectUrl != "" {
		return c.redirectUrl
	}
	return c.RedirectScheme + "://" + c.Host + c.RedirectPath
}

// Validate the config.  Every problem found is reported, not just the first
// one.  It doesn't verify the Host is reachable.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientId == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if !validScheme(c.RedirectScheme) {
		result = multierror.Append(result, fmt.Errorf("%s: redirect scheme %q is invalid: %w", op, c.RedirectScheme, ErrInvalidParameter))
	}
	switch {
	case c.Host == "":
		result = multierror.Append(result, fmt.Errorf("%s: host is empty: %w", op, ErrInvalidParameter))
	case strings.ContainsAny(c.Host, "/?#@ "):
		result = multierror.Append(result, fmt.Errorf("%s: host %q must not contain a scheme, path, query or userinfo: %w", op, c.Host, ErrInvalidParameter))
	}
	if c.RedirectPath != "" && !strings.HasPrefix(c.RedirectPath, "/") {
		result = multierror.Append(result, fmt.Errorf("%s: redirect path %q must begin with a /: %w", op, c.RedirectPath, ErrInvalidParameter))
	}
	if !strings.HasPrefix(c.TokenPath, "/") {
		result = multierror.Append(result, fmt.Errorf("%s: token path %q must begin with a /: %w", op, c.TokenPath, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("%s: unsupported algorithm %q: %w", op, a, ErrInvalidParameter))
		}
	}
	if result.ErrorOrNil() == nil {
		if _, err := url.Parse(c.RedirectUrl()); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: redirect URL %q is invalid: %w", op, c.RedirectUrl(), ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

// HttpClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	client, err := httputil.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, httputil.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// Now will return the current time which can be overridden by the NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now() // fallback to this default
}

func (c *Config) logger() hclog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return hclog.NewNullLogger()
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && ('0' <= r && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// configOptions is the set of available options
type configOptions struct {
	withTokenPath            string
	withSupportedSigningAlgs []Alg
	withProviderCA           string
	withLogger               hclog.Logger
	withNowFunc              func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withTokenPath:            DefaultTokenPath,
		withSupportedSigningAlgs: []Alg{RS256},
		withLogger:               hclog.NewNullLogger(),
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTokenPath provides an optional token endpoint path for the config.
func WithTokenPath(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTokenPath = path
		}
	}
}

// WithSupportedSigningAlgs provides an optional list of id_token signing
// algorithms for the config.
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA certs (PEM encoded) for the config.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger for: Config, Flow, HTTPExecutor
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withLogger = l
		case *flowOptions:
			v.withLogger = l
		case *executorOptions:
			v.withLogger = l
		}
	}
}
