// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

//go:generate mockgen -destination=mock_test.go -package=oidc . Executor,Presenter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor performs a described request and decodes the response into out.
// Every failure must wrap ErrNetworkFailure.
type Executor interface {
	Execute(ctx context.Context, d Descriptor, out interface{}) error
}

// ExecutorFunc adapts a func to the Executor interface
type ExecutorFunc func(ctx context.Context, d Descriptor, out interface{}) error

// Execute implements Executor
func (fn ExecutorFunc) Execute(ctx context.Context, d Descriptor, out interface{}) error {
	return fn(ctx, d, out)
}

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 1 << 20

const tracerName = "github.com/hashicorp/hseauth/oidc"

// HTTPExecutor is the default Executor.  It sends requests over https to the
// config's Host (unless a request overrides the host) and decodes JSON
// responses.
type HTTPExecutor struct {
	client *http.Client
	host   string
	scheme string
	logger hclog.Logger
	tracer trace.Tracer
}

var _ Executor = (*HTTPExecutor)(nil)

// NewHTTPExecutor creates an HTTPExecutor for the provider described by c.
//
// Supported options:
//   - WithHTTPClient
//   - WithLogger
func NewHTTPExecutor(c *Config, opt ...Option) (*HTTPExecutor, error) {
	const op = "NewHTTPExecutor"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	opts := getExecutorOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = c.HttpClient(); err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}
	logger := opts.withLogger
	if logger == nil {
		logger = c.logger()
	}
	return &HTTPExecutor{
		client: client,
		host:   c.Host,
		scheme: "https",
		logger: logger.Named("executor"),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, d Descriptor, out interface{}) (retErr error) {
	const op = "HTTPExecutor.Execute"
	u := d.URL(e.scheme, e.host)

	ctx, span := e.tracer.Start(ctx, "oidc.Execute", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("http.request.method", d.Method),
		attribute.String("server.address", u.Host),
		attribute.String("url.path", u.Path),
	))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	var body io.Reader
	if d.Form != nil {
		body = strings.NewReader(d.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: unable to create request: %w: %w", op, ErrNetworkFailure, err)
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if d.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	e.logger.Debug("sending request", "op", op, "method", d.Method, "url", u.String())
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s failed: %w: %w", op, d.Method, u.String(), ErrNetworkFailure, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: unable to read response: %w: %w", op, ErrNetworkFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respErr := &ResponseError{StatusCode: resp.StatusCode}
		// best effort: the body may not be an oauth error response
		_ = json.Unmarshal(raw, respErr)
		e.logger.Debug("unsuccessful response", "op", op, "url", u.String(), "status", resp.StatusCode, "error", respErr.Code)
		return fmt.Errorf("%s: %s %s: %w: %w", op, d.Method, u.String(), ErrNetworkFailure, respErr)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: unable to decode response from %s: %w: %w", op, u.String(), ErrNetworkFailure, err)
	}
	return nil
}

// executorOptions is the set of available options for HTTPExecutor
type executorOptions struct {
	withHTTPClient *http.Client
	withLogger     hclog.Logger
}

func executorDefaults() executorOptions {
	return executorOptions{}
}

func getExecutorOpts(opt ...Option) executorOptions {
	opts := executorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithHTTPClient provides an optional http client for the HTTPExecutor.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*executorOptions); ok {
			o.withHTTPClient = c
		}
	}
}
