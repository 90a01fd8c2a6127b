// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// TestPresenter is a Presenter for tests.  By default it completes every
// session with the configured redirect; it can instead fail, block until
// cancelled or follow the presented URL with an http client and return the
// Location it's redirected to (see FollowWith).
type TestPresenter struct {
	mu        sync.Mutex
	redirect  string
	err       error
	block     bool
	client    *http.Client
	presented []*url.URL
	schemes   []string
	started   chan struct{}
}

// NewTestPresenter creates a TestPresenter.
func NewTestPresenter() *TestPresenter {
	return &TestPresenter{started: make(chan struct{}, 16)}
}

// SetRedirect configures the redirect URL returned by Present.
func (p *TestPresenter) SetRedirect(redirect string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirect = redirect
}

// SetError configures the error returned by Present.  Nil clears it.
func (p *TestPresenter) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// BlockUntilCancelled makes Present block until its ctx is done.
func (p *TestPresenter) BlockUntilCancelled() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = true
}

// FollowWith makes Present request the presented URL using client and
// return the Location of the redirect response.  client must not follow
// redirects.
func (p *TestPresenter) FollowWith(client *http.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// Started receives once for every call to Present.
func (p *TestPresenter) Started() <-chan struct{} {
	return p.started
}

// Presented returns every URL presented so far.
func (p *TestPresenter) Presented() []*url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]*url.URL, 0, len(p.presented))
	for _, u := range p.presented {
		cp := *u
		urls = append(urls, &cp)
	}
	return urls
}

// CallbackSchemes returns the callback scheme of every presented session.
func (p *TestPresenter) CallbackSchemes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.schemes...)
}

// Present implements Presenter.
func (p *TestPresenter) Present(ctx context.Context, u *url.URL, callbackScheme string) (*url.URL, error) {
	const op = "TestPresenter.Present"
	p.mu.Lock()
	cp := *u
	p.presented = append(p.presented, &cp)
	p.schemes = append(p.schemes, callbackScheme)
	redirect, err, block, client := p.redirect, p.err, p.block, p.client
	p.mu.Unlock()

	select {
	case p.started <- struct{}{}:
	default:
	}

	switch {
	case block:
		<-ctx.Done()
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionCancelled, ctx.Err())
	case err != nil:
		return nil, err
	case client != nil:
		return p.follow(ctx, client, u)
	case redirect == "":
		return nil, nil
	}
	r, perr := url.Parse(redirect)
	if perr != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionPresentationFailed, perr)
	}
	return r, nil
}

func (p *TestPresenter) follow(ctx context.Context, client *http.Client, u *url.URL) (*url.URL, error) {
	const op = "TestPresenter.follow"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionPresentationFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionPresentationFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("%s: unexpected status %d: %w", op, resp.StatusCode, ErrSessionPresentationFailed)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionPresentationFailed, err)
	}
	return loc, nil
}
