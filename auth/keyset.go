package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrKeyNotFound is returned by KeySetCache.Lookup when no published key
// matches the requested key id.
var ErrKeyNotFound = errors.New("signing key not found")

// JWKS represents the JSON Web Key Set document
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a single published signing key
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// SigningKey is a published key together with its decoded RSA public key.
type SigningKey struct {
	JWK
	PublicKey *rsa.PublicKey
}

// FetchObserver receives the outcome of every key set fetch.
type FetchObserver interface {
	ObserveKeySetFetch(result string, duration time.Duration)
}

// KeySetConfig holds configuration for KeySetCache
type KeySetConfig struct {
	// Domain is the identity provider domain, e.g. "tenant.us.auth0.com".
	Domain string
	// JWKSURL overrides https://<Domain>/.well-known/jwks.json.
	JWKSURL string
	// CacheTTL bounds how long a fetched key set is served. Zero refetches on
	// every lookup.
	CacheTTL time.Duration
	// HTTPTimeout bounds a single fetch.
	HTTPTimeout time.Duration
	// MissCooldown is how long an unknown key id is remembered before another
	// lookup for it may force a refresh.
	MissCooldown time.Duration
	HTTPClient   *http.Client
	Observer     FetchObserver
}

// JWKSURL returns the well-known key set location for domain.
func JWKSURL(domain string) string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", strings.TrimSuffix(domain, "/"))
}

type keySetSnapshot struct {
	keys      []SigningKey
	byKid     map[string]*SigningKey
	fetchedAt time.Time
}

func (s *keySetSnapshot) fresh(ttl time.Duration, now time.Time) bool {
	return s != nil && ttl > 0 && now.Before(s.fetchedAt.Add(ttl))
}

// KeySetCache fetches and holds the identity provider's public signing keys.
// Readers always see a complete immutable snapshot; refreshes replace it
// atomically and concurrent refreshes are collapsed into one fetch.
type KeySetCache struct {
	url        string
	ttl        time.Duration
	timeout    time.Duration
	httpClient *http.Client
	observer   FetchObserver
	logger     *zap.Logger

	snapshot atomic.Pointer[keySetSnapshot]
	group    singleflight.Group
	misses   *gocache.Cache

	now func() time.Time
}

// NewKeySetCache creates a new KeySetCache
func NewKeySetCache(cfg KeySetConfig, logger *zap.Logger) *KeySetCache {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MissCooldown == 0 {
		cfg.MissCooldown = 30 * time.Second
	}

	url := cfg.JWKSURL
	if url == "" {
		url = JWKSURL(cfg.Domain)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout == 0 || client.Timeout > cfg.HTTPTimeout {
		c := *client
		c.Timeout = cfg.HTTPTimeout
		client = &c
	}

	return &KeySetCache{
		url:        url,
		ttl:        cfg.CacheTTL,
		timeout:    cfg.HTTPTimeout,
		httpClient: client,
		observer:   cfg.Observer,
		logger:     logger,
		misses:     gocache.New(cfg.MissCooldown, 2*cfg.MissCooldown),
		now:        time.Now,
	}
}

// URL returns the key set location this cache fetches from.
func (c *KeySetCache) URL() string {
	return c.url
}

// Keys returns the current key set, fetching it when the cached snapshot is
// missing or stale.
func (c *KeySetCache) Keys(ctx context.Context) ([]SigningKey, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	return snap.keys, nil
}

// Lookup returns the signing key published under kid. A miss against a cached
// snapshot forces one refresh so rotated keys are picked up; repeated misses
// for the same kid within the cooldown do not refetch.
func (c *KeySetCache) Lookup(ctx context.Context, kid string) (*SigningKey, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := snap.byKid[kid]; ok {
		return key, nil
	}

	// A snapshot fetched for this very call is already as fresh as it gets.
	if c.ttl <= 0 {
		return nil, ErrKeyNotFound
	}
	if _, recent := c.misses.Get(kid); recent {
		return nil, ErrKeyNotFound
	}
	c.misses.SetDefault(kid, struct{}{})

	c.logger.Debug("signing key not in cached set, refreshing",
		zap.String("kid", kid))

	snap, err = c.refresh(ctx)
	if err != nil {
		// The miss was never checked against the provider.
		c.misses.Delete(kid)
		return nil, err
	}
	if key, ok := snap.byKid[kid]; ok {
		c.misses.Delete(kid)
		return key, nil
	}
	return nil, ErrKeyNotFound
}

// Refresh forces a fetch regardless of cache state.
func (c *KeySetCache) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx)
	return err
}

// Ready reports whether a key set has been fetched at least once.
func (c *KeySetCache) Ready() bool {
	return c.snapshot.Load() != nil
}

func (c *KeySetCache) current(ctx context.Context) (*keySetSnapshot, error) {
	if snap := c.snapshot.Load(); snap.fresh(c.ttl, c.now()) {
		return snap, nil
	}
	return c.refresh(ctx)
}

// refresh fetches the key set once for all concurrent callers. The shared
// fetch is detached from the caller that started it and bounded by the HTTP
// timeout; each caller stops waiting when its own context ends.
func (c *KeySetCache) refresh(ctx context.Context) (*keySetSnapshot, error) {
	ch := c.group.DoChan("jwks", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		start := c.now()
		snap, err := c.fetch(fetchCtx)
		c.observe(err, c.now().Sub(start))
		if err != nil {
			return nil, err
		}
		c.snapshot.Store(snap)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ErrKeySetUnavailable.wrap(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			c.logger.Error("failed to fetch signing keys",
				zap.String("url", c.url),
				zap.Error(res.Err))
			return nil, ErrKeySetUnavailable.wrap(res.Err)
		}
		return res.Val.(*keySetSnapshot), nil
	}
}

func (c *KeySetCache) observe(err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.observer.ObserveKeySetFetch(result, d)
}

func (c *KeySetCache) fetch(ctx context.Context) (*keySetSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch JWKS: status code %d", resp.StatusCode)
	}

	var doc JWKS
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}
	if doc.Keys == nil {
		return nil, errors.New("JWKS document has no keys array")
	}

	snap := &keySetSnapshot{
		keys:      make([]SigningKey, 0, len(doc.Keys)),
		byKid:     make(map[string]*SigningKey, len(doc.Keys)),
		fetchedAt: c.now(),
	}
	for _, jwk := range doc.Keys {
		pub, err := jwkToRSAPublicKey(jwk)
		if err != nil {
			c.logger.Warn("skipping unusable signing key",
				zap.String("kid", jwk.Kid),
				zap.String("kty", jwk.Kty),
				zap.Error(err))
			continue
		}
		snap.keys = append(snap.keys, SigningKey{JWK: jwk, PublicKey: pub})
	}
	for i := range snap.keys {
		snap.byKid[snap.keys[i].Kid] = &snap.keys[i]
	}

	c.logger.Debug("signing keys fetched",
		zap.String("url", c.url),
		zap.Int("keys", len(snap.keys)))

	return snap, nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}
	if jwk.Kid == "" {
		return nil, errors.New("key has no kid")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(jwk.N, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(jwk.E, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid modulus or exponent length")
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
