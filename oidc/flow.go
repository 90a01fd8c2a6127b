// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hseauth/oidc/internal/urlutil"
	"golang.org/x/sync/singleflight"
)

// Scopes requested by every authorization request.
var Scopes = []string{"profile", oidc.ScopeOpenID}

// Flow provides the authorization code flow for one client identity:
// discovery, the interactive authorization session, the code exchange,
// refreshes and logout.
//
// A Flow owns a single interactive session slot.  Authenticate, Logout and
// RunSession each need the slot, and a call made while another one is pending
// is rejected with ErrSessionInProgress.  Cancel will cancel the pending one.
//
// A Flow is safe for concurrent use.
type Flow struct {
	config    *Config
	executor  Executor
	presenter Presenter
	logger    hclog.Logger
	metrics   *Metrics

	discovery singleflight.Group

	mu             sync.Mutex
	discovering    *sharedDiscovery
	discoveryRound uint64
	providerConfig *ProviderConfig
	state          State
	pending        *pendingSession
}

type pendingSession struct {
	attemptID string
	cancel    context.CancelFunc
}

// NewFlow creates a Flow for the config c, which presents interactive
// sessions using p.
//
// Supported options:
//   - WithExecutor
//   - WithLogger
//   - WithMetrics
func NewFlow(c *Config, p Presenter, opt ...Option) (*Flow, error) {
	const op = "NewFlow"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%s: presenter is nil: %w", op, ErrNilParameter)
	}
	opts := getFlowOpts(opt...)

	logger := opts.withLogger
	if logger == nil {
		logger = c.logger()
	}
	executor := opts.withExecutor
	if executor == nil {
		var err error
		if executor, err = NewHTTPExecutor(c, WithLogger(logger)); err != nil {
			return nil, fmt.Errorf("%s: unable to create executor: %w", op, err)
		}
	}
	return &Flow{
		config:    c,
		executor:  executor,
		presenter: p,
		logger:    logger.Named("flow"),
		metrics:   opts.withMetrics,
		state:     Idle,
	}, nil
}

// State returns the state of the latest Authenticate, Logout or RunSession.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// ProviderConfig returns a copy of the cached discovery document, if any.
func (f *Flow) ProviderConfig() (*ProviderConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providerConfig.clone(), f.providerConfig != nil
}

// DiscoverConfig requests the provider's discovery document and caches it.
// When the request fails the cache is left untouched.
//
// Concurrent callers share one request, which keeps running for as long as
// any of them is still waiting.  A caller whose ctx is done stops waiting
// without failing the others.
func (f *Flow) DiscoverConfig(ctx context.Context) (*ProviderConfig, error) {
	const op = "Flow.DiscoverConfig"
	start := time.Now()

	f.mu.Lock()
	sd := f.discovering
	if sd == nil {
		f.discoveryRound++
		sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		sd = &sharedDiscovery{
			key:    strconv.FormatUint(f.discoveryRound, 10),
			ctx:    sctx,
			cancel: cancel,
		}
		f.discovering = sd
	}
	sd.waiters++
	ch := f.discovery.DoChan(sd.key, func() (interface{}, error) {
		return f.discover(sd.ctx)
	})
	f.mu.Unlock()

	var pc *ProviderConfig
	var err error
	select {
	case res := <-ch:
		if res.Err != nil {
			err = res.Err
		} else {
			pc = res.Val.(*ProviderConfig).clone()
		}
	case <-ctx.Done():
		err = fmt.Errorf("%s: stopped waiting for discovery: %w: %w", op, ErrNetworkFailure, ctx.Err())
	}
	f.leaveDiscovery(sd)

	f.metrics.Observe(OpDiscover, start, err)
	if err != nil {
		f.logger.Warn("discovery failed", "op", op, "error", err)
		return nil, err
	}
	return pc, nil
}

// sharedDiscovery is the discovery request callers are currently waiting on.
// Its ctx is cancelled once the last of them stops waiting.
type sharedDiscovery struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (f *Flow) discover(ctx context.Context) (*ProviderConfig, error) {
	const op = "Flow.DiscoverConfig"
	pc, err := Execute[ProviderConfig](ctx, f.executor, DiscoveryRequest{})
	if err != nil {
		return nil, fmt.Errorf("%s: discovery request failed: %w", op, err)
	}
	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: discovery document is unusable: %w", op, err)
	}
	f.mu.Lock()
	f.providerConfig = pc
	f.mu.Unlock()
	return pc.clone(), nil
}

func (f *Flow) leaveDiscovery(sd *sharedDiscovery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sd.waiters--
	if sd.waiters > 0 {
		return
	}
	if f.discovering == sd {
		f.discovering = nil
	}
	sd.cancel()
}

// AuthURL builds the authorization request URL from the cached discovery
// document: response_type, client_id, redirect_uri and scope, in that order.
// It fails with ErrMissingProviderConfig when DiscoverConfig hasn't
// succeeded and ErrMalformedURL when the authorization endpoint is invalid.
func (f *Flow) AuthURL() (*url.URL, error) {
	const op = "Flow.AuthURL"
	f.mu.Lock()
	pc := f.providerConfig
	f.mu.Unlock()
	if pc == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingProviderConfig)
	}

	params := []struct{ key, value string }{
		{"response_type", "code"},
		{"client_id", f.config.ClientId},
		{"redirect_uri", f.config.RedirectUrl()},
		{"scope", strings.Join(Scopes, " ")},
	}
	raw := pc.AuthorizationEndpoint
	for _, p := range params {
		var err error
		if raw, err = urlutil.AddOrReplace(raw, p.key, p.value); err != nil {
			return nil, fmt.Errorf("%s: %v: %w", op, err, ErrMalformedURL)
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, ErrMalformedURL)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%s: authorization endpoint %q is not an absolute URL: %w", op, pc.AuthorizationEndpoint, ErrMalformedURL)
	}
	return u, nil
}

// RunSession presents u to the user and waits for the redirect back to
// callbackScheme.  It blocks until the user finishes, the session fails, ctx
// is done or Cancel is called; there's no timeout other than ctx's.
func (f *Flow) RunSession(ctx context.Context, u *url.URL, callbackScheme string) (*url.URL, error) {
	const op = "Flow.RunSession"
	if u == nil {
		return nil, fmt.Errorf("%s: url is nil: %w", op, ErrNilParameter)
	}
	if callbackScheme == "" {
		return nil, fmt.Errorf("%s: callback scheme is empty: %w", op, ErrInvalidParameter)
	}
	attemptID, err := NewID(WithPrefix("session"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ctx, done, err := f.acquire(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer done()

	logger := f.logger.With("attempt_id", attemptID)
	f.transition(logger, AwaitingInteractiveSession)
	redirect, err := f.runSession(ctx, u, callbackScheme)
	if err != nil {
		return nil, f.fail(ctx, logger, op, err)
	}
	f.transition(logger, Complete)
	return redirect, nil
}

// ExtractCode returns the authorization code from the redirect URL.  A nil
// redirect or a missing code is ErrMissingAuthCode.  An oauth error response
// is ErrLoginFailed (see LoginError).
func ExtractCode(redirect *url.URL) (string, error) {
	const op = "ExtractCode"
	if redirect == nil {
		return "", fmt.Errorf("%s: redirect URL is missing: %w", op, ErrMissingAuthCode)
	}
	q := redirect.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%s: %w", op, &LoginError{Response: AuthenErrorResponse{
			Error:       e,
			Description: q.Get("error_description"),
			Uri:         q.Get("error_uri"),
		}})
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("%s: redirect URL has no code parameter: %w", op, ErrMissingAuthCode)
	}
	return code, nil
}

// Exchange will request tokens from the token endpoint using the
// authorization code received in the redirect.
func (f *Flow) Exchange(ctx context.Context, code string) (*Token, error) {
	const op = "Flow.Exchange"
	start := time.Now()
	tk, err := f.exchange(ctx, code)
	f.metrics.Observe(OpExchange, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}

func (f *Flow) exchange(ctx context.Context, code string) (*Token, error) {
	const op = "Flow.exchange"
	if code == "" {
		return nil, fmt.Errorf("%s: code is empty: %w", op, ErrMissingAuthCode)
	}
	tk, err := Execute[Token](ctx, f.executor, AccessTokenRequest{
		Code:        code,
		ClientId:    f.config.ClientId,
		RedirectUrl: f.config.RedirectUrl(),
		TokenPath:   f.config.TokenPath,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange authorization code: %w", op, err)
	}
	if err := f.checkToken(op, tk); err != nil {
		return nil, err
	}
	return tk, nil
}

// Authenticate runs the whole authorization code flow: discovery, building
// the authorization URL, the interactive session, extracting the code and
// exchanging it for tokens.  Each stage runs only once the previous one
// succeeded, and the first failure is returned.
//
// Every call performs its own discovery request and refreshes the cached
// discovery document.
func (f *Flow) Authenticate(ctx context.Context) (*Token, error) {
	const op = "Flow.Authenticate"
	start := time.Now()
	tk, err := f.authenticate(ctx)
	f.metrics.Observe(OpAuthenticate, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}

func (f *Flow) authenticate(ctx context.Context) (*Token, error) {
	const op = "Flow.authenticate"
	attemptID, err := NewID(WithPrefix("authn"))
	if err != nil {
		return nil, err
	}
	ctx, done, err := f.acquire(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	defer done()

	logger := f.logger.With("attempt_id", attemptID)
	f.transition(logger, Idle)

	f.transition(logger, DiscoveringConfig)
	if _, err := f.DiscoverConfig(ctx); err != nil {
		return nil, f.fail(ctx, logger, op, err)
	}

	f.transition(logger, BuildingAuthUrl)
	authURL, err := f.AuthURL()
	if err != nil {
		return nil, f.fail(ctx, logger, op, err)
	}

	f.transition(logger, AwaitingInteractiveSession)
	redirect, err := f.runSession(ctx, authURL, f.config.RedirectScheme)
	if err != nil {
		return nil, f.fail(ctx, logger, op, err)
	}

	f.transition(logger, ExtractingCode)
	code, err := ExtractCode(redirect)
	if err != nil {
		return nil, f.fail(ctx, logger, op, err)
	}

	f.transition(logger, ExchangingToken)
	tk, err := f.exchange(ctx, code)
	if err != nil {
		return nil, f.fail(ctx, logger, op, err)
	}

	f.transition(logger, Complete)
	return tk, nil
}

// Refresh requests new tokens using refreshToken.  It doesn't require, use
// or modify the cached discovery document.  When the provider doesn't
// rotate the refresh_token, the one provided is carried over into the
// returned Token.
func (f *Flow) Refresh(ctx context.Context, refreshToken RefreshToken) (*Token, error) {
	const op = "Flow.Refresh"
	start := time.Now()
	tk, err := f.refresh(ctx, refreshToken)
	f.metrics.Observe(OpRefresh, start, err)
	if err != nil {
		f.logger.Warn("refresh failed", "op", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}

func (f *Flow) refresh(ctx context.Context, refreshToken RefreshToken) (*Token, error) {
	const op = "Flow.refresh"
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	tk, err := Execute[Token](ctx, f.executor, RefreshTokenRequest{
		ClientId:     f.config.ClientId,
		RefreshToken: refreshToken,
		TokenPath:    f.config.TokenPath,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to refresh token: %w", op, err)
	}
	if err := f.checkToken(op, tk); err != nil {
		return nil, err
	}
	if tk.RefreshToken == "" {
		tk.RefreshToken = refreshToken
	}
	return tk, nil
}

// Logout presents the logout URL (https://logout) through the interactive
// session and returns the URL the user was redirected to.  An empty
// callbackScheme defaults to the config's RedirectScheme.
func (f *Flow) Logout(ctx context.Context, callbackScheme string) (*url.URL, error) {
	const op = "Flow.Logout"
	start := time.Now()
	redirect, err := f.logout(ctx, callbackScheme)
	f.metrics.Observe(OpLogout, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return redirect, nil
}

func (f *Flow) logout(ctx context.Context, callbackScheme string) (*url.URL, error) {
	const op = "Flow.logout"
	if callbackScheme == "" {
		callbackScheme = f.config.RedirectScheme
	}
	attemptID, err := NewID(WithPrefix("logout"))
	if err != nil {
		return nil, err
	}
	ctx, done, err := f.acquire(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	defer done()

	logger := f.logger.With("attempt_id", attemptID)
	f.transition(logger, AwaitingInteractiveSession)
	redirect, err := f.runSession(ctx, LogoutRequest{}.URL(), callbackScheme)
	if err != nil {
		return nil, f.fail(ctx, logger, op, err)
	}
	f.transition(logger, Complete)
	return redirect, nil
}

// Cancel cancels the pending Authenticate, Logout or RunSession, if there is
// one; the pending call returns ErrSessionCancelled whichever stage it's in.
// Cancel reports whether there was a pending call.
func (f *Flow) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return false
	}
	f.logger.Debug("cancelling pending session", "attempt_id", f.pending.attemptID)
	f.pending.cancel()
	return true
}

// VerifyIdToken verifies the id_token's signature using the keys published
// by the provider (jwks_uri of the cached discovery document), and its
// issuer, audience (the client id) and expiry.
func (f *Flow) VerifyIdToken(ctx context.Context, t IdToken) error {
	const op = "Flow.VerifyIdToken"
	if t == "" {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	f.mu.Lock()
	pc := f.providerConfig.clone()
	f.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("%s: %w", op, ErrMissingProviderConfig)
	}
	if pc.JwksURI == "" {
		return fmt.Errorf("%s: discovery document has no jwks_uri: %w", op, ErrIdTokenVerificationFailed)
	}
	client, err := f.config.HttpClient()
	if err != nil {
		return fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	oidcCtx := oidc.ClientContext(ctx, client)

	algs := make([]string, 0, len(f.config.SupportedSigningAlgs))
	for _, a := range f.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := pc.goOidcConfig().NewProvider(oidcCtx).Verifier(&oidc.Config{
		ClientID:             f.config.ClientId,
		SupportedSigningAlgs: algs,
		Now:                  f.config.Now,
	})
	if _, err := verifier.Verify(oidcCtx, string(t)); err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, ErrIdTokenVerificationFailed)
	}
	return nil
}

// runSession delegates to the presenter and classifies its failures.  The
// caller must hold the session slot.
func (f *Flow) runSession(ctx context.Context, u *url.URL, callbackScheme string) (*url.URL, error) {
	const op = "Flow.runSession"
	redirect, err := f.presenter.Present(ctx, u, callbackScheme)
	switch {
	case err != nil && ctx.Err() != nil && !errors.Is(err, ErrSessionCancelled):
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionCancelled, err)
	case err != nil && isSessionError(err):
		return nil, fmt.Errorf("%s: %w", op, err)
	case err != nil:
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionPresentationFailed, err)
	case redirect == nil:
		return nil, fmt.Errorf("%s: session ended without a redirect URL: %w", op, ErrProtocolViolation)
	case !strings.EqualFold(redirect.Scheme, callbackScheme):
		return nil, fmt.Errorf("%s: redirect scheme %q doesn't match callback scheme %q: %w", op, redirect.Scheme, callbackScheme, ErrProtocolViolation)
	}
	return redirect, nil
}

func isSessionError(err error) bool {
	return errors.Is(err, ErrSessionCancelled) ||
		errors.Is(err, ErrSessionPresentationFailed) ||
		errors.Is(err, ErrPlatformUnsupported)
}

// acquire takes the session slot.  The returned func releases it and must
// always be called.
func (f *Flow) acquire(ctx context.Context, attemptID string) (context.Context, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		f.logger.Debug("rejecting session", "attempt_id", attemptID, "pending_attempt_id", f.pending.attemptID)
		return nil, nil, ErrSessionInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	f.pending = &pendingSession{attemptID: attemptID, cancel: cancel}
	return ctx, func() {
		f.mu.Lock()
		if f.pending != nil && f.pending.attemptID == attemptID {
			f.pending = nil
		}
		f.mu.Unlock()
		cancel()
	}, nil
}

func (f *Flow) transition(logger hclog.Logger, to State) {
	f.mu.Lock()
	from := f.state
	f.state = to
	f.mu.Unlock()
	logger.Debug("state transition", "from", from.String(), "to", to.String())
}

// fail moves the flow into Errored and returns err.  Once ctx is done, err is
// reported as ErrSessionCancelled whichever stage it came from.
func (f *Flow) fail(ctx context.Context, logger hclog.Logger, op string, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ErrSessionCancelled) {
		err = fmt.Errorf("%s: %w: %w", op, ErrSessionCancelled, err)
	}
	f.mu.Lock()
	from := f.state
	f.state = Errored
	f.mu.Unlock()
	switch {
	case errors.Is(err, ErrProtocolViolation):
		logger.Error("flow failed", "op", op, "state", from.String(), "error", err)
	default:
		logger.Warn("flow failed", "op", op, "state", from.String(), "error", err)
	}
	return err
}

func (f *Flow) checkToken(op string, tk *Token) error {
	if tk.AccessToken == "" {
		return fmt.Errorf("%s: token response has no access_token: %w", op, ErrProtocolViolation)
	}
	tk.setExpiry(f.config.Now())
	return nil
}

// flowOptions is the set of available options for Flow functions
type flowOptions struct {
	withExecutor Executor
	withLogger   hclog.Logger
	withMetrics  *Metrics
}

// flowDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func flowDefaults() flowOptions {
	return flowOptions{}
}

// getFlowOpts gets the flow defaults and applies the opt overrides passed in
func getFlowOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithExecutor provides an optional Executor for a Flow.  Defaults to an
// HTTPExecutor for the Flow's config.
func WithExecutor(e Executor) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withExecutor = e
		}
	}
}

// WithMetrics provides optional Metrics for a Flow.
func WithMetrics(m *Metrics) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withMetrics = m
		}
	}
}
