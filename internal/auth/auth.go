// Package auth verifies bearer tokens against the api_keys table.
//
// Verified keys are cached for a short time so that a busy client does not
// hit the database on every request. A deactivated key stops working once
// its cache entry expires.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

var (
	// ErrMissingToken is returned when the Authorization header is absent or not a bearer token
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for unknown or inactive tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden is returned when the key's role does not allow the operation
	ErrForbidden = errors.New("forbidden")
)

const (
	// DefaultCacheSize is the number of verified keys kept in memory
	DefaultCacheSize = 1024
	// DefaultCacheTTL is how long a verified key is trusted without a database read
	DefaultCacheTTL = time.Minute

	tokenPrefix = "pal_"
)

// KeyStore is the storage subset used by the verifier
type KeyStore interface {
	GetAPIKeyByToken(ctx context.Context, token string) (*types.APIKey, error)
	UpsertAPIKey(ctx context.Context, key *types.APIKey) error
}

// Verifier authenticates bearer tokens
type Verifier struct {
	store KeyStore
	cache *expirable.LRU[string, types.APIKey]
}

// NewVerifier creates a verifier. Non-positive size or ttl select the defaults.
func NewVerifier(store KeyStore, size int, ttl time.Duration) *Verifier {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Verifier{
		store: store,
		cache: expirable.NewLRU[string, types.APIKey](size, nil, ttl),
	}
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Verify checks an Authorization header value and returns the matching key
func (v *Verifier) Verify(ctx context.Context, header string) (*types.APIKey, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	cacheKey := hashToken(token)
	if key, ok := v.cache.Get(cacheKey); ok {
		return &key, nil
	}

	key, err := v.store.GetAPIKeyByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !key.Active || !key.Role.Valid() {
		return nil, ErrInvalidToken
	}

	v.cache.Add(cacheKey, *key)
	return key, nil
}

// Forget drops a token from the cache so the next Verify reads storage
func (v *Verifier) Forget(token string) {
	v.cache.Remove(hashToken(token))
}

// Issue creates a new active key with a random token
func (v *Verifier) Issue(ctx context.Context, name string, role types.Role) (*types.APIKey, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("key name is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := &types.APIKey{Name: name, Key: token, Role: role, Active: true}
	if err := v.store.UpsertAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("issue key: %w", err)
	}
	return key, nil
}

// Ensure registers a known token, typically the bootstrap admin token from
// configuration. An existing key with that token is updated in place.
func (v *Verifier) Ensure(ctx context.Context, name, token string, role types.Role) (*types.APIKey, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	key := &types.APIKey{Name: name, Key: token, Role: role, Active: true}
	if err := v.store.UpsertAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("ensure key %s: %w", name, err)
	}
	v.Forget(token)
	return key, nil
}

// RequireRole returns ErrForbidden unless key has the given role
func RequireRole(key *types.APIKey, role types.Role) error {
	if key == nil || key.Role != role {
		return ErrForbidden
	}
	return nil
}

type keyContextKey struct{}

// WithKey stores the authenticated key in ctx
func WithKey(ctx context.Context, key *types.APIKey) context.Context {
	return context.WithValue(ctx, keyContextKey{}, key)
}

// KeyFromContext returns the authenticated key, or nil
func KeyFromContext(ctx context.Context) *types.APIKey {
	key, _ := ctx.Value(keyContextKey{}).(*types.APIKey)
	return key
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(buf), nil
}
