// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hseauth/oidc"
	"github.com/hashicorp/hseauth/oidc/session"
)

func ExampleNewConfig() {
	// Create a new Config for the client "your_client_id", which receives
	// redirects at com.example.app://your-provider.com/callback
	c, err := oidc.NewConfig(
		"your_client_id",
		"com.example.app",
		"your-provider.com",
		"/callback",
		oidc.WithTokenPath("/oauth2/token"),
	)
	if err != nil {
		// handle error
	}
	fmt.Println(c.RedirectUrl())

	// Output:
	// com.example.app://your-provider.com/callback
}

func ExampleNewFlow() {
	c, err := oidc.NewConfig("your_client_id", "com.example.app", "your-provider.com", "/callback")
	if err != nil {
		// handle error
	}

	// Sessions are presented in the user's browser; the user pastes the
	// final redirect URL back into the terminal.
	browser := session.NewBrowser(
		session.WithOutput(os.Stderr),
		session.WithLogger(hclog.Default()),
	)
	f, err := oidc.NewFlow(c, browser, oidc.WithLogger(hclog.Default()))
	if err != nil {
		// handle error
	}
	_ = f
}

func ExampleFlow_Authenticate() {
	ctx := context.Background()
	c, err := oidc.NewConfig("your_client_id", "com.example.app", "your-provider.com", "/callback")
	if err != nil {
		// handle error
	}
	f, err := oidc.NewFlow(c, session.NewBrowser())
	if err != nil {
		// handle error
	}

	// Authenticate discovers the provider's config, presents the
	// authorization URL, and exchanges the returned code for tokens.
	t, err := f.Authenticate(ctx)
	switch {
	case errors.Is(err, oidc.ErrSessionCancelled):
		// the user gave up; maybe offer to try again
	case err != nil && oidc.IsRecoverable(err):
		// network failures, etc: retrying is up to you
	case err != nil:
		// a protocol violation: the client or provider is misconfigured
	default:
		fmt.Println("access_token expires at: ", t.Expiry)
	}
}

func ExampleFlow_Refresh() {
	ctx := context.Background()
	c, err := oidc.NewConfig("your_client_id", "com.example.app", "your-provider.com", "/callback")
	if err != nil {
		// handle error
	}
	f, err := oidc.NewFlow(c, session.NewBrowser())
	if err != nil {
		// handle error
	}

	// Refresh doesn't need the interactive session or discovery.
	t, err := f.Refresh(ctx, oidc.RefreshToken("a_refresh_token"))
	if err != nil {
		// handle error
	}

	// Tokens can be used with golang.org/x/oauth2 http clients
	_ = t.StaticTokenSource()
}

func ExampleFlow_AuthURL() {
	ctx := context.Background()
	c, err := oidc.NewConfig("abc", "app", "idp.example", "/cb")
	if err != nil {
		// handle error
	}

	// A stub executor standing in for the provider's discovery endpoint.
	discovery := oidc.ExecutorFunc(func(_ context.Context, _ oidc.Descriptor, out interface{}) error {
		out.(*oidc.ProviderConfig).AuthorizationEndpoint = "https://idp.example/auth"
		return nil
	})
	f, err := oidc.NewFlow(c, oidc.NewTestPresenter(), oidc.WithExecutor(discovery))
	if err != nil {
		// handle error
	}
	if _, err := f.DiscoverConfig(ctx); err != nil {
		// handle error
	}
	u, err := f.AuthURL()
	if err != nil {
		// handle error
	}
	fmt.Println(u)

	// Output:
	// https://idp.example/auth?response_type=code&client_id=abc&redirect_uri=app%3A%2F%2Fidp.example%2Fcb&scope=profile%20openid
}

func ExampleExtractCode() {
	redirect, _ := url.Parse("app://idp.example/cb?code=XYZ")
	code, err := oidc.ExtractCode(redirect)
	fmt.Println(code, err)

	redirect, _ = url.Parse("app://idp.example/cb?error=access_denied")
	_, err = oidc.ExtractCode(redirect)
	fmt.Println(errors.Is(err, oidc.ErrLoginFailed))

	// Output:
	// XYZ <nil>
	// true
}
