// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/hashicorp/hseauth/oidc"
	"github.com/hashicorp/hseauth/oidc/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBrowser_flow signs in against a test provider, with an opener which
// plays the part of the user: it visits the URL and pastes the redirect.
func TestBrowser_flow(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t)
	client := tp.HTTPClient()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	user := func(u string) error {
		if !strings.HasPrefix(u, tp.Addr()) {
			return nil
		}
		resp, err := client.Get(u)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		loc := resp.Header.Get("Location")
		go func() { _, _ = fmt.Fprintln(pw, loc) }()
		return nil
	}
	b := session.NewBrowser(session.WithInput(pr), session.WithOutput(io.Discard), session.WithOpener(user))
	t.Cleanup(func() { _ = b.Close() })

	f, err := oidc.NewFlow(tp.Config(), b)
	require.NoError(err)
	tk, err := f.Authenticate(context.Background())
	require.NoError(err)
	assert.NotEmpty(tk.AccessToken)
	assert.Equal(oidc.Complete, f.State())
	require.NoError(f.VerifyIdToken(context.Background(), tk.IdToken))

	// the user dismisses the logout session
	go func() { _, _ = fmt.Fprintln(pw, "") }()
	_, err = f.Logout(context.Background(), "")
	assert.ErrorIs(err, oidc.ErrSessionCancelled)
}
