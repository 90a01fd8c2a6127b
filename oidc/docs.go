// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for native (public) clients which sign users in with an
OIDC provider using the authorization code flow.

Primary types provided by the package

* Config: the client identity: client id, redirect scheme, provider host and
redirect path (plus optional token path, CA and signing algorithms).  A
Config is immutable once created.

* Flow: the flow controller.  It discovers the provider's config, builds the
authorization URL, runs the interactive session, extracts the authorization
code and exchanges it for tokens.  It also refreshes tokens and logs out.  A
Flow owns a single interactive session slot: a second Authenticate or Logout
started while one is pending is rejected with ErrSessionInProgress.

* Presenter: the interactive session capability.  The oidc/session package
provides the system browser implementation.

* Executor: performs requests described by a Request (DiscoveryRequest,
AccessTokenRequest, RefreshTokenRequest, LogoutRequest).  HTTPExecutor is the
default.

* Token: represents an Oauth2 access_token and refresh_token (including the
access_token expiry) and an OIDC id_token.

* Alg: represents asymmetric signing algorithms

Errors

Failures wrap one of the package's sentinel errors.  ErrNetworkFailure,
ErrSessionCancelled, ErrSessionPresentationFailed and ErrLoginFailed are
recoverable; ErrProtocolViolation (ErrMissingAuthCode,
ErrMissingProviderConfig, ErrMalformedURL) is a contract violation between
the client, its configuration and the provider.  See IsRecoverable.  Nothing
is retried internally.

Testing

StartTestProvider starts a local provider supporting discovery, /auth, /token
and /certs, and TestPresenter completes sessions against it.

Examples

* OIDC authentication CLI: oidc/examples/cli
*/
package oidc
