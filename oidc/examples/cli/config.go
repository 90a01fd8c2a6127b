// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hseauth/oidc"
)

// cliConfig is read from the environment.
type cliConfig struct {
	ClientID       string        `env:"HSEAUTH_CLIENT_ID,required"`
	RedirectScheme string        `env:"HSEAUTH_REDIRECT_SCHEME,required"`
	Host           string        `env:"HSEAUTH_HOST,required"`
	RedirectPath   string        `env:"HSEAUTH_REDIRECT_PATH" envDefault:"/callback"`
	TokenPath      string        `env:"HSEAUTH_TOKEN_PATH" envDefault:"/token"`
	ProviderCA     string        `env:"HSEAUTH_PROVIDER_CA,file"`
	SigningAlgs    []string      `env:"HSEAUTH_SIGNING_ALGS" envDefault:"RS256" envSeparator:","`
	LogLevel       string        `env:"HSEAUTH_LOG_LEVEL" envDefault:"warn"`
	Timeout        time.Duration `env:"HSEAUTH_TIMEOUT" envDefault:"5m"`
}

// loadConfig parses the environment.  HSEAUTH_PROVIDER_CA is the path of a
// PEM file.
func loadConfig(environ map[string]string) (*cliConfig, error) {
	const op = "loadConfig"
	var cfg cliConfig
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *cliConfig) logger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "hseauth",
		Level: hclog.LevelFromString(c.LogLevel),
	})
}

// oidcConfig composes the flow's Config.
func (c *cliConfig) oidcConfig(logger hclog.Logger) (*oidc.Config, error) {
	algs := make([]oidc.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		algs = append(algs, oidc.Alg(a))
	}
	return oidc.NewConfig(
		c.ClientID,
		c.RedirectScheme,
		c.Host,
		c.RedirectPath,
		oidc.WithTokenPath(c.TokenPath),
		oidc.WithProviderCA(c.ProviderCA),
		oidc.WithSupportedSigningAlgs(algs...),
		oidc.WithLogger(logger),
	)
}
