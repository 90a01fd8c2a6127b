// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOpts(t *testing.T) {
	// ApplyOpts testing is covered by other tests but we do have just more
	// more test to add here.
	// Let's make sure we don't panic on nil options
	anonymousOpts := struct {
		Names []string
	}{
		nil,
	}
	ApplyOpts(anonymousOpts, nil)
}

func Test_WithNow(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	testNow := func() time.Time { return time.Now().Add(-1 * time.Minute) }

	opts := getTokenOpts(WithNow(testNow))
	testAssertEqualFunc(t, testNow, opts.withNowFunc, "now = %p,want %p", testNow, opts.withNowFunc)

	cOpts := getConfigOpts(WithNow(testNow))
	testAssertEqualFunc(t, testNow, cOpts.withNowFunc, "now = %p,want %p", testNow, cOpts.withNowFunc)

	// nil is ignored
	cOpts = getConfigOpts(WithNow(nil))
	assert.Nil(cOpts.withNowFunc)
}

func Test_WithLogger(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	l := hclog.New(&hclog.LoggerOptions{Name: "test"})

	assert.Equal(l, getConfigOpts(WithLogger(l)).withLogger)
	assert.Equal(l, getFlowOpts(WithLogger(l)).withLogger)
	assert.Equal(l, getExecutorOpts(WithLogger(l)).withLogger)

	// nil keeps the default
	assert.NotNil(getConfigOpts(WithLogger(nil)).withLogger)
}

func Test_WithExpirySkew(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getTokenOpts(WithExpirySkew(time.Minute))
	testOpts := tokenDefaults()
	testOpts.withExpirySkew = time.Minute
	assert.Equal(testOpts.withExpirySkew, opts.withExpirySkew)

	// options for other types are ignored
	assert.Equal(configDefaults().withTokenPath, getConfigOpts(WithExpirySkew(time.Minute)).withTokenPath)
}

func Test_configOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getConfigOpts(
		WithTokenPath("/oauth/token"),
		WithSupportedSigningAlgs(ES256, EdDSA),
		WithProviderCA("ca"),
	)
	testOpts := configDefaults()
	testOpts.withTokenPath = "/oauth/token"
	testOpts.withSupportedSigningAlgs = []Alg{ES256, EdDSA}
	testOpts.withProviderCA = "ca"
	assert.Equal(testOpts, opts)
}

func Test_flowOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	exec := ExecutorFunc(func(context.Context, Descriptor, interface{}) error { return nil })
	m := &Metrics{}
	opts := getFlowOpts(WithExecutor(exec), WithMetrics(m))
	assert.Equal(m, opts.withMetrics)
	require.NotNil(t, opts.withExecutor)
	testAssertEqualFunc(t, exec, opts.withExecutor, "wanted executor %p", exec)

	// a Flow takes its clock from its Config
	assert.Equal(flowDefaults(), getFlowOpts(WithNow(time.Now)))
	assert.Equal(flowOptions{}, flowDefaults())
}

// testAssertEqualFunc verifies want and got are the same func, since funcs
// can't be compared with ==.
func testAssertEqualFunc(t *testing.T, want, got interface{}, format string, args ...interface{}) {
	t.Helper()
	if want == nil && got == nil {
		return
	}
	if want == nil || got == nil {
		assert.Failf(t, "func mismatch", format, args...)
		return
	}
	if reflect.ValueOf(want).IsNil() && reflect.ValueOf(got).IsNil() {
		return
	}
	assert.Equalf(t, reflect.ValueOf(want).Pointer(), reflect.ValueOf(got).Pointer(), format, args...)
}
