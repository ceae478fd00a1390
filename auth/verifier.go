package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// KeyProvider resolves a signing key by key id. Implementations return
// ErrKeyNotFound when the key id is unknown and an *AuthError of kind
// KeySetUnavailable when the key set cannot be obtained.
type KeyProvider interface {
	Lookup(ctx context.Context, kid string) (*SigningKey, error)
}

// VerifierConfig holds configuration for Verifier
type VerifierConfig struct {
	// Domain is the identity provider domain; the expected issuer is
	// https://<Domain>/.
	Domain string
	// Audience is the API identifier tokens must be issued for.
	Audience string
	// Algorithms lists the accepted signing algorithms. Defaults to RS256.
	Algorithms []string
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// Issuer returns the issuer claim expected for tokens minted by domain.
func Issuer(domain string) string {
	return "https://" + strings.TrimSuffix(domain, "/") + "/"
}

// Verifier validates bearer tokens against the identity provider's key set
type Verifier struct {
	keys     KeyProvider
	issuer   string
	audience string
	parser   *jwt.Parser
	logger   *zap.Logger
}

// NewVerifier creates a new Verifier
func NewVerifier(keys KeyProvider, cfg VerifierConfig, logger *zap.Logger) *Verifier {
	algorithms := cfg.Algorithms
	if len(algorithms) == 0 {
		algorithms = []string{jwt.SigningMethodRS256.Alg()}
	}

	issuer := Issuer(cfg.Domain)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algorithms),
		jwt.WithAudience(cfg.Audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: cfg.Audience,
		parser:   jwt.NewParser(opts...),
		logger:   logger,
	}
}

// Verify checks the token's signature against the published key named by its
// kid header and validates exp, aud and iss. It returns a fresh Claims value
// on every call.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	// Read the header without verifying anything to find the key id.
	unverified, _, err := v.parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, ErrInvalidHeader.wrap(err)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMalformedHeader.WithDescription("Authorization malformed.")
	}

	key, err := v.keys.Lookup(ctx, kid)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInvalidHeader.
				WithDescription("Invalid header. Unable to find appropriate key.").
				wrap(fmt.Errorf("kid %q: %w", kid, err))
		}
		if authErr, ok := AsAuthError(err); ok {
			return nil, authErr
		}
		return nil, ErrKeySetUnavailable.wrap(err)
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key.PublicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidHeader
	}

	v.logger.Debug("token verified",
		zap.String("kid", kid),
		zap.String("sub", claims.Subject))

	return claims, nil
}

// classifyParseError maps golang-jwt failures onto the pipeline taxonomy. The
// signature is verified before claims, so an expiry error implies a valid
// signature.
func classifyParseError(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired.wrap(err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrInvalidClaims.wrap(err)
	default:
		return ErrInvalidHeader.wrap(err)
	}
}
