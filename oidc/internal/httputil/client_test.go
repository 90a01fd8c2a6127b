// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httputil

import (
	"bytes"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect" {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}))

	t.Run("with-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewClient(buf.String())
		require.NoError(err)
		resp, err := c.Get(srv.URL)
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(http.StatusOK, resp.StatusCode)
	})
	t.Run("redirects-not-followed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewClient(buf.String())
		require.NoError(err)
		resp, err := c.Get(srv.URL + "/redirect")
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(http.StatusFound, resp.StatusCode)
		assert.Equal("/elsewhere", resp.Header.Get("Location"))
	})
	t.Run("system-ca-rejects-test-cert", func(t *testing.T) {
		require := require.New(t)
		c, err := NewClient("")
		require.NoError(err)
		_, err = c.Get(srv.URL)
		require.Error(err)
	})
	t.Run("bad-pem", func(t *testing.T) {
		assert := assert.New(t)
		c, err := NewClient("not a pem")
		assert.ErrorIs(err, ErrInvalidCertificatePem)
		assert.Nil(c)
	})
}
