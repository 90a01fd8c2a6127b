// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package session provides the interactive session used by an oidc.Flow: the
// user completes the provider's login in the system browser and pastes the
// URL they were finally redirected to back into the terminal.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hseauth/oidc"
)

// unsupportedPlatforms have no browser launcher.
var unsupportedPlatforms = map[string]bool{
	"js":      true,
	"wasip1":  true,
	"ios":     true,
	"android": true,
}

// Browser is an oidc.Presenter which opens the authorization URL in the
// system browser and reads the redirect URL from its input, one line at a
// time.
//
// Input is read by a single goroutine for the Browser's lifetime, so a
// Present call which returns because its ctx is done doesn't lose the next
// line of input.  Close stops that goroutine.
type Browser struct {
	input  io.Reader
	output io.Writer
	opener func(string) error
	logger hclog.Logger
	goos   string

	startOnce  sync.Once
	lines      chan line
	closeOnce  sync.Once
	closed     chan struct{}
	readerDone chan struct{}

	mu      sync.Mutex
	pending bool
}

var _ oidc.Presenter = (*Browser)(nil)

type line struct {
	text string
	err  error
}

// NewBrowser creates a Browser.  It reads from stdin and writes prompts to
// stderr unless options say otherwise.  The goroutine reading the input is
// started by the first Present and runs until the input ends or Close is
// called.
//
// Supported options:
//   - WithInput
//   - WithOutput
//   - WithOpener
//   - WithLogger
func NewBrowser(opt ...Option) *Browser {
	opts := getOpts(opt...)
	return &Browser{
		input:  opts.withInput,
		output: opts.withOutput,
		opener: opts.withOpener,
		logger: opts.withLogger.Named("session"),
		goos:   runtime.GOOS,
		lines:      make(chan line),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// Close stops the Browser.  Pending and later Present calls fail, and the
// input reader exits once its current read returns.  The input itself isn't
// closed.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// Present implements oidc.Presenter.  An empty line, the end of the input or
// ctx being done cancel the session.
func (b *Browser) Present(ctx context.Context, u *url.URL, callbackScheme string) (*url.URL, error) {
	const op = "Browser.Present"
	if u == nil {
		return nil, fmt.Errorf("%s: url is nil: %w", op, oidc.ErrSessionPresentationFailed)
	}
	select {
	case <-b.closed:
		return nil, fmt.Errorf("%s: browser is closed: %w", op, oidc.ErrSessionPresentationFailed)
	default:
	}
	opener := b.opener
	if opener == nil {
		if unsupportedPlatforms[b.goos] {
			return nil, fmt.Errorf("%s: no browser available on %s: %w", op, b.goos, oidc.ErrPlatformUnsupported)
		}
		opener = openURL
	}

	b.mu.Lock()
	if b.pending {
		b.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrSessionInProgress)
	}
	b.pending = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.pending = false
		b.mu.Unlock()
	}()

	b.startOnce.Do(b.readLines)

	if err := opener(u.String()); err != nil {
		b.logger.Warn("unable to open browser", "op", op, "error", err)
		fmt.Fprintf(b.output, "Unable to open a browser. Visit this URL to continue:\n\n\t%s\n\n", u.String())
	} else {
		fmt.Fprintf(b.output, "Complete the login in your browser. If it didn't open, visit:\n\n\t%s\n\n", u.String())
	}

	for {
		fmt.Fprintf(b.output, "Paste the %s:// URL you were redirected to (empty to cancel): ", callbackScheme)
		select {
		case <-ctx.Done():
			fmt.Fprintln(b.output)
			return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrSessionCancelled, ctx.Err())
		case <-b.closed:
			fmt.Fprintln(b.output)
			return nil, fmt.Errorf("%s: browser closed: %w", op, oidc.ErrSessionCancelled)
		case l, ok := <-b.lines:
			switch {
			case !ok, errors.Is(l.err, io.EOF):
				return nil, fmt.Errorf("%s: input closed: %w", op, oidc.ErrSessionCancelled)
			case l.err != nil:
				return nil, fmt.Errorf("%s: unable to read input: %w: %w", op, oidc.ErrSessionPresentationFailed, l.err)
			}
			text := strings.TrimSpace(l.text)
			if text == "" {
				return nil, fmt.Errorf("%s: cancelled by user: %w", op, oidc.ErrSessionCancelled)
			}
			redirect, err := url.Parse(text)
			if err != nil || !strings.EqualFold(redirect.Scheme, callbackScheme) {
				b.logger.Debug("rejected redirect", "op", op, "input", text)
				fmt.Fprintf(b.output, "That isn't a %s:// URL.\n", callbackScheme)
				continue
			}
			return redirect, nil
		}
	}
}

// readLines feeds b.lines until the input ends or the Browser is closed.
// The final line carries the read error (io.EOF at the end of input).
func (b *Browser) readLines() {
	go func() {
		defer close(b.readerDone)
		defer close(b.lines)
		send := func(l line) bool {
			select {
			case b.lines <- l:
				return true
			case <-b.closed:
				return false
			}
		}
		scanner := bufio.NewScanner(b.input)
		for scanner.Scan() {
			if !send(line{text: scanner.Text()}) {
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		send(line{err: err})
	}()
}

// options is the set of available options for a Browser
type options struct {
	withInput  io.Reader
	withOutput io.Writer
	withOpener func(string) error
	withLogger hclog.Logger
}

func getDefaults() options {
	return options{
		withInput:  os.Stdin,
		withOutput: os.Stderr,
		withLogger: hclog.NewNullLogger(),
	}
}

func getOpts(opt ...Option) options {
	opts := getDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// Option is a Browser option.
type Option = oidc.Option

// WithInput provides an optional reader the redirect URL is read from.
// Defaults to stdin.
func WithInput(r io.Reader) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && r != nil {
			o.withInput = r
		}
	}
}

// WithOutput provides an optional writer for prompts.  Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && w != nil {
			o.withOutput = w
		}
	}
}

// WithOpener provides an optional func used to open the URL, in place of
// the platform's browser launcher.
func WithOpener(fn func(url string) error) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withOpener = fn
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && l != nil {
			o.withLogger = l
		}
	}
}
