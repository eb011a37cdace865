// Package auth turns request credentials into a core.Principal.
//
// Two credential forms are accepted:
//
//	Authorization: Bearer <jwt>   HMAC-signed token; sub is the user id,
//	                              role or roles carry the user's roles
//	X-API-Key: <key>              configured service key; resolves to an
//	                              administrator principal
//
// A request without credentials resolves to the anonymous principal. The
// core rejects anonymous principals itself, so public endpoints need no
// special casing here.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/golang-jwt/jwt/v4"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidToken is returned for a bearer token that fails verification.
// It wraps core.ErrUnauthorized so the web layer answers 401.
var ErrInvalidToken = fmt.Errorf("invalid token: %w", core.ErrUnauthorized)

// ErrInvalidAPIKey is returned for an X-API-Key that matches no configured key.
var ErrInvalidAPIKey = fmt.Errorf("invalid api key: %w", core.ErrUnauthorized)

// DefaultAdminRole is the role that marks a principal as administrator.
const DefaultAdminRole = "Administrator"

// APIKeyHeader is the header carrying service keys.
const APIKeyHeader = "X-API-Key"

// claims is the subset of token claims the resolver reads.
type claims struct {
	Subject string   `mapstructure:"sub"`
	Role    string   `mapstructure:"role"`
	Roles   []string `mapstructure:"roles"`
}

// Resolver verifies credentials and builds principals.
type Resolver struct {
	secret    []byte
	issuer    string
	adminRole string
	apiKeys   [][]byte
	now       func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIssuer requires tokens to carry a matching iss claim.
func WithIssuer(iss string) Option {
	return func(r *Resolver) { r.issuer = iss }
}

// WithAdminRole sets the role that grants administrator rights.
func WithAdminRole(role string) Option {
	return func(r *Resolver) {
		if role != "" {
			r.adminRole = role
		}
	}
}

// WithAPIKeys sets the accepted service keys. Empty keys are ignored.
func WithAPIKeys(keys []string) Option {
	return func(r *Resolver) {
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				r.apiKeys = append(r.apiKeys, []byte(k))
			}
		}
	}
}

// WithClock overrides the time source used for issuing tokens.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver that verifies HMAC tokens signed with secret.
func NewResolver(secret string, opts ...Option) *Resolver {
	r := &Resolver{
		secret:    []byte(secret),
		adminRole: DefaultAdminRole,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve extracts the principal from a request. A bearer token takes
// precedence over an API key. No credentials yields the anonymous principal
// and a nil error.
func (r *Resolver) Resolve(req *http.Request) (core.Principal, error) {
	if authz := req.Header.Get("Authorization"); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return core.Principal{}, fmt.Errorf("authorization header format must be Bearer {token}: %w", core.ErrUnauthorized)
		}
		return r.ParseToken(strings.TrimSpace(token))
	}

	if key := req.Header.Get(APIKeyHeader); key != "" {
		p, ok := r.ResolveAPIKey(key)
		if !ok {
			return core.Principal{}, ErrInvalidAPIKey
		}
		return p, nil
	}

	return core.Principal{}, nil
}

// ParseToken verifies a bearer token and returns its principal.
func (r *Resolver) ParseToken(token string) (core.Principal, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return core.Principal{}, ErrInvalidToken
	}
	if r.issuer != "" && !mc.VerifyIssuer(r.issuer, true) {
		return core.Principal{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}

	c, err := decodeClaims(mc)
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return core.Principal{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	return r.principal(c), nil
}

// decodeClaims reads the claims the resolver cares about. Weak typing lets a
// single-string roles claim decode into a one-element slice.
func decodeClaims(mc jwt.MapClaims) (claims, error) {
	var c claims
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return claims{}, err
	}
	if err := dec.Decode(map[string]any(mc)); err != nil {
		return claims{}, err
	}
	return c, nil
}

func (r *Resolver) principal(c claims) core.Principal {
	p := core.Principal{UserID: strings.TrimSpace(c.Subject), Role: c.Role}
	if p.Role == "" && len(c.Roles) > 0 {
		p.Role = c.Roles[0]
	}

	p.IsAdministrator = c.Role == r.adminRole
	for _, role := range c.Roles {
		if role == r.adminRole {
			p.IsAdministrator = true
		}
	}
	if p.IsAdministrator {
		p.Role = r.adminRole
	}
	return p
}

// ResolveAPIKey matches key against the configured service keys in constant
// time. The principal's user id is derived from the key hash so audit
// entries can tell keys apart without recording them.
func (r *Resolver) ResolveAPIKey(key string) (core.Principal, bool) {
	provided := []byte(key)
	matched := false
	for _, k := range r.apiKeys {
		if subtle.ConstantTimeCompare(provided, k) == 1 {
			matched = true
		}
	}
	if !matched {
		return core.Principal{}, false
	}

	sum := sha256.Sum256(provided)
	return core.Principal{
		UserID:          "apikey:" + hex.EncodeToString(sum[:4]),
		Role:            r.adminRole,
		IsAdministrator: true,
	}, true
}

// Issue signs a token for userID with the given roles. Used by the gridctl
// token command and tests.
func (r *Resolver) Issue(userID string, roles []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	now := r.now()
	mc := jwt.MapClaims{
		"sub":   userID,
		"roles": roles,
		"iat":   now.Unix(),
	}
	if len(roles) > 0 {
		mc["role"] = roles[0]
	}
	if ttl > 0 {
		mc["exp"] = now.Add(ttl).Unix()
	}
	if r.issuer != "" {
		mc["iss"] = r.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ---- Context ----

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal, or the
// anonymous principal.
func PrincipalFromContext(ctx context.Context) core.Principal {
	p, _ := ctx.Value(ctxKey{}).(core.Principal)
	return p
}
