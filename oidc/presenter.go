// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"net/url"
)

// Presenter presents an interactive, user-mediated browser session.  Present
// blocks until the user has been redirected to a URL with the
// callbackScheme (which is returned) or until the session fails.
//
// Failures must wrap one of: ErrSessionCancelled,
// ErrSessionPresentationFailed or ErrPlatformUnsupported.  Present must
// return promptly once ctx is done.
type Presenter interface {
	Present(ctx context.Context, u *url.URL, callbackScheme string) (*url.URL, error)
}

// PresenterFunc adapts a func to the Presenter interface
type PresenterFunc func(ctx context.Context, u *url.URL, callbackScheme string) (*url.URL, error)

// Present implements Presenter
func (fn PresenterFunc) Present(ctx context.Context, u *url.URL, callbackScheme string) (*url.URL, error) {
	return fn(ctx, u, callbackScheme)
}
