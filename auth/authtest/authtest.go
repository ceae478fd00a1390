// Package authtest provides an in-process identity provider for tests: RSA
// signing keys, a JWKS endpoint serving them and helpers to mint tokens.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Domain   = "coffee-shop.test.auth0.com"
	Audience = "drinks"
)

// Key is an RSA signing key published under Kid.
type Key struct {
	Kid     string
	Private *rsa.PrivateKey
}

// NewKey generates a fresh 2048-bit signing key.
func NewKey(t testing.TB, kid string) *Key {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &Key{Kid: kid, Private: privateKey}
}

// JWK returns the public half of k in JWKS form.
func (k *Key) JWK() map[string]string {
	pub := &k.Private.PublicKey
	return map[string]string{
		"kty": "RSA",
		"kid": k.Kid,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// Sign signs claims with RS256 and stamps the kid header.
func (k *Key) Sign(t testing.TB, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.Kid
	signed, err := token.SignedString(k.Private)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// Claims returns a valid claim set for Domain/Audience expiring in an hour.
// Passing no permissions yields an empty permissions array; delete the
// "permissions" entry to mint a token without the claim.
func Claims(permissions ...string) jwt.MapClaims {
	if permissions == nil {
		permissions = []string{}
	}
	now := time.Now()
	return jwt.MapClaims{
		"iss":         "https://" + Domain + "/",
		"sub":         "auth0|barista",
		"aud":         Audience,
		"iat":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
		"permissions": permissions,
	}
}

// Server is a JWKS endpoint whose published keys and health can be changed
// while it runs.
type Server struct {
	*httptest.Server

	mu      sync.RWMutex
	keys    []*Key
	status  int
	body    string
	delay   time.Duration
	fetches atomic.Int64
}

// NewServer starts a JWKS endpoint publishing keys. It is closed when the test
// ends.
func NewServer(t testing.TB, keys ...*Key) *Server {
	t.Helper()
	s := &Server{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.fetches.Add(1)

	s.mu.RLock()
	keys, status, body, delay := s.keys, s.status, s.body, s.delay
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if body != "" {
		_, _ = w.Write([]byte(body))
		return
	}

	doc := struct {
		Keys []map[string]string `json:"keys"`
	}{Keys: make([]map[string]string, 0, len(keys))}
	for _, k := range keys {
		doc.Keys = append(doc.Keys, k.JWK())
	}
	_ = json.NewEncoder(w).Encode(doc)
}

// SetKeys replaces the published key set.
func (s *Server) SetKeys(keys ...*Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

// FailWith makes the endpoint answer with status until it is reset with
// http.StatusOK.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// ServeRaw makes the endpoint answer with body verbatim. An empty body restores
// the generated key set.
func (s *Server) ServeRaw(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

// Delay holds every response for d.
func (s *Server) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Fetches reports how many times the key set was requested.
func (s *Server) Fetches() int64 {
	return s.fetches.Load()
}
