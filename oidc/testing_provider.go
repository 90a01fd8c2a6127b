// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/hashicorp/hseauth/oidc/internal/httputil"
	"github.com/hashicorp/hseauth/oidc/internal/urlutil"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Defaults used by a TestProvider until they're overridden.
const (
	TestClientID     = "test-client"
	TestAuthCode     = "test-code"
	TestRefreshToken = "test-refresh-token"
	TestSubject      = "alice@example.com"
	TestExpiresIn    = 300
)

// TestProvider is a local https server that supports the provider endpoints
// used by a Flow: discovery, /auth, /token (authorization_code and
// refresh_token grants) and /certs.  It records the requests it receives so
// tests can assert on them.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	jwks       *jose.JSONWebKeySet

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	mu                    sync.Mutex
	clientID              string
	expectedAuthCode      string
	expectedRefreshToken  string
	allowedRedirectURIs   []string
	expiresIn             int64
	omitIDToken           bool
	omitRefreshToken      bool
	customClaims          map[string]interface{}
	authError             *AuthenErrorResponse
	discoveryStatus       int
	authorizationEndpoint string
	discoveryRequests     int
	tokenRequests         []url.Values

	t *testing.T
}

// StartTestProvider creates and starts a disposable TestProvider, which is
// stopped when the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		clientID:             TestClientID,
		expectedAuthCode:     TestAuthCode,
		expectedRefreshToken: TestRefreshToken,
		expiresIn:            TestExpiresIn,
		t:                    t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = TestJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the base URL of the test provider.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Host returns the host:port of the test provider, suitable for Config.Host
func (p *TestProvider) Host() string { return strings.TrimPrefix(p.httpServer.URL, "https://") }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// HTTPClient returns an http client which trusts the test provider and
// doesn't follow redirects.
func (p *TestProvider) HTTPClient() *http.Client {
	p.t.Helper()
	c, err := httputil.NewClient(p.caCert)
	require.NoError(p.t, err)
	return c
}

// Config returns a Config for the test provider's client, using the
// redirect URL app://<host>/cb.  Additional config options may be provided.
func (p *TestProvider) Config(opt ...Option) *Config {
	p.t.Helper()
	p.mu.Lock()
	clientID := p.clientID
	p.mu.Unlock()
	opts := append([]Option{WithProviderCA(p.caCert), WithSupportedSigningAlgs(ES256)}, opt...)
	c, err := NewConfig(clientID, "app", p.Host(), "/cb", opts...)
	require.NoError(p.t, err)
	return c
}

// Presenter returns a TestPresenter which completes sessions by following
// the authorization URL against this test provider.
func (p *TestProvider) Presenter() *TestPresenter {
	p.t.Helper()
	tp := NewTestPresenter()
	tp.FollowWith(p.HTTPClient())
	return tp
}

// SetClientID configures the client id the provider accepts.
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetExpectedAuthCode configures the code returned from /auth and accepted by
// /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedRefreshToken configures the refresh_token issued by and accepted
// by /token.
func (p *TestProvider) SetExpectedRefreshToken(rt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedRefreshToken = rt
}

// SetAllowedRedirectURIs configures the allowed redirect URIs.  When none are
// configured any redirect URI is allowed.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetExpiresIn configures the expires_in of issued tokens.
func (p *TestProvider) SetExpiresIn(seconds int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = seconds
}

// SetCustomClaims sets additional claims for issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// OmitIDToken stops /token from returning an id_token.
func (p *TestProvider) OmitIDToken() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshToken stops /token from returning a refresh_token.
func (p *TestProvider) OmitRefreshToken() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// SetAuthError makes /auth redirect back with the oauth error response r.
// Nil restores successful redirects.
func (p *TestProvider) SetAuthError(r *AuthenErrorResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authError = r
}

// SetDiscoveryStatus makes the discovery endpoint fail with status.  Zero
// restores successful responses.
func (p *TestProvider) SetDiscoveryStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoveryStatus = status
}

// SetAuthorizationEndpoint overrides the authorization_endpoint in the
// discovery document.
func (p *TestProvider) SetAuthorizationEndpoint(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorizationEndpoint = endpoint
}

// DiscoveryRequests returns the number of discovery requests received.
func (p *TestProvider) DiscoveryRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryRequests
}

// TokenRequests returns the form of every /token request received.
func (p *TestProvider) TokenRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	reqs := make([]url.Values, 0, len(p.tokenRequests))
	for _, r := range p.tokenRequests {
		cp := url.Values{}
		for k, v := range r {
			cp[k] = append([]string(nil), v...)
		}
		reqs = append(reqs, cp)
	}
	return reqs
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case DiscoveryPath:
		p.discoveryRequests++
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.discoveryStatus != 0 {
			w.WriteHeader(p.discoveryStatus)
			return
		}
		reply := ProviderConfig{
			Issuer:                           p.Addr(),
			AuthorizationEndpoint:            p.Addr() + "/auth",
			TokenEndpoint:                    p.Addr() + DefaultTokenPath,
			JwksURI:                          p.Addr() + "/certs",
			ScopesSupported:                  []string{"openid", "profile"},
			ResponseTypesSupported:           []string{"code"},
			IdTokenSigningAlgValuesSupported: []string{string(ES256)},
		}
		if p.authorizationEndpoint != "" {
			reply.AuthorizationEndpoint = p.authorizationEndpoint
		}
		p.writeJSON(w, http.StatusOK, &reply)

	case "/auth":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		redirectURI := qv.Get("redirect_uri")
		switch {
		case redirectURI == "":
			p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "invalid_request", Description: "missing redirect_uri parameter"})
			return
		case !p.redirectAllowed(redirectURI):
			p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "invalid_request", Description: "redirect_uri is not allowed"})
			return
		case qv.Get("response_type") != "code":
			p.writeAuthRedirect(w, req, redirectURI, "error", "unsupported_response_type")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthRedirect(w, req, redirectURI, "error", "unauthorized_client")
			return
		case qv.Get("scope") != "profile openid":
			p.writeAuthRedirect(w, req, redirectURI, "error", "invalid_scope")
			return
		case p.authError != nil:
			params := []string{"error", p.authError.Error}
			if p.authError.Description != "" {
				params = append(params, "error_description", p.authError.Description)
			}
			p.writeAuthRedirect(w, req, redirectURI, params...)
			return
		}
		p.writeAuthRedirect(w, req, redirectURI, "code", p.expectedAuthCode)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.writeJSON(w, http.StatusOK, p.jwks)

	case DefaultTokenPath:
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := req.ParseForm(); err != nil {
			p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "invalid_request", Description: err.Error()})
			return
		}
		p.tokenRequests = append(p.tokenRequests, req.PostForm)

		if req.PostForm.Get("client_id") != p.clientID {
			p.writeJSON(w, http.StatusUnauthorized, &AuthenErrorResponse{Error: "invalid_client"})
			return
		}
		switch req.PostForm.Get("grant_type") {
		case "authorization_code":
			switch {
			case !p.redirectAllowed(req.PostForm.Get("redirect_uri")):
				p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "invalid_request", Description: "redirect_uri is not allowed"})
				return
			case req.PostForm.Get("code") != p.expectedAuthCode:
				p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "invalid_grant", Description: "unexpected auth code"})
				return
			}
		case "refresh_token":
			if req.PostForm.Get("refresh_token") != p.expectedRefreshToken {
				p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "invalid_grant", Description: "unexpected refresh token"})
				return
			}
		default:
			p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "unsupported_grant_type"})
			return
		}
		p.writeToken(w)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) writeToken(w http.ResponseWriter) {
	accessToken, err := NewID(WithPrefix("at"))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	reply := struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token,omitempty"`
		IdToken      string `json:"id_token,omitempty"`
		ExpiresIn    int64  `json:"expires_in,omitempty"`
		Scope        string `json:"scope"`
	}{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   p.expiresIn,
		Scope:       "profile openid",
	}
	if !p.omitRefreshToken {
		reply.RefreshToken = p.expectedRefreshToken
	}
	if !p.omitIDToken {
		claims := testClaims(p.Addr(), p.clientID, TestSubject)
		privateClaims := map[string]interface{}{}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}
		idToken, err := signJWT(p.ecdsaPrivateKey, claims, privateClaims)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		reply.IdToken = idToken
	}
	p.writeJSON(w, http.StatusOK, &reply)
}

func (p *TestProvider) redirectAllowed(uri string) bool {
	if len(p.allowedRedirectURIs) == 0 {
		return true
	}
	return strutil.StrListContains(p.allowedRedirectURIs, uri)
}

// writeAuthRedirect redirects to redirectURI with the key/value pairs added
// to its query.
func (p *TestProvider) writeAuthRedirect(w http.ResponseWriter, req *http.Request, redirectURI string, kv ...string) {
	var err error
	for i := 0; i+1 < len(kv); i += 2 {
		if redirectURI, err = urlutil.AddOrReplace(redirectURI, kv[i], kv[i+1]); err != nil {
			p.writeJSON(w, http.StatusBadRequest, &AuthenErrorResponse{Error: "invalid_request", Description: err.Error()})
			return
		}
	}
	if state := req.URL.Query().Get("state"); state != "" {
		redirectURI, _ = urlutil.AddOrReplace(redirectURI, "state", state)
	}
	w.Header().Set("Location", redirectURI)
	w.WriteHeader(http.StatusFound)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, status int, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

// testClaims returns standard claims for an id_token.
func testClaims(issuer, audience, subject string) jwt.Claims {
	now := time.Now()
	return jwt.Claims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.Audience{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
}
