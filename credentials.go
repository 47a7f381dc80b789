package tessera

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the access/refresh token pair issued by the platform. At
// most one valid pair exists per store: it is created at login, replaced
// atomically on refresh, and cleared on logout or terminal auth failure.
type Credentials struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expiry,omitempty"`
	RefreshExpiry time.Time `json:"refresh_expiry,omitempty"`
}

// NewCredentials builds a pair from raw tokens, extracting expiries from the
// JWT exp claims where present.
func NewCredentials(accessToken, refreshToken string) *Credentials {
	creds := &Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if exp, ok := TokenExpiry(accessToken); ok {
		creds.AccessExpiry = exp
	}
	if exp, ok := TokenExpiry(refreshToken); ok {
		creds.RefreshExpiry = exp
	}
	return creds
}

// AccessValid reports whether the pair carries an access token usable at the
// given instant. A pair with unknown expiry is treated as usable; the server
// remains the authority and a 401 drives the refresh path.
func (c *Credentials) AccessValid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return c.AccessExpiry.IsZero() || now.Before(c.AccessExpiry)
}

// RefreshExpired reports whether the refresh token is known to be expired
// locally. When true the remote refresh endpoint must not be called at all.
func (c *Credentials) RefreshExpired(now time.Time) bool {
	if c == nil || c.RefreshToken == "" {
		return true
	}
	return !c.RefreshExpiry.IsZero() && !now.Before(c.RefreshExpiry)
}

// TokenExpiry extracts the exp claim from a JWT without verifying its
// signature (the client holds no signing key). Returns false for opaque or
// claimless tokens.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// CredentialStore owns the persisted credential pair. Implementations must be
// safe for concurrent use. Load returns (nil, nil) when no pair is stored.
type CredentialStore interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, creds *Credentials) error
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process CredentialStore, the default for single-user
// clients such as the usher scanning app.
type MemoryStore struct {
	mu    sync.RWMutex
	creds *Credentials
}

// NewMemoryStore returns an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored pair, or (nil, nil) when logged out.
func (s *MemoryStore) Load(ctx context.Context) (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, nil
	}
	copied := *s.creds
	return &copied, nil
}

// Save replaces the stored pair.
func (s *MemoryStore) Save(ctx context.Context, creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if creds == nil {
		s.creds = nil
		return nil
	}
	copied := *creds
	s.creds = &copied
	return nil
}

// Clear removes the stored pair.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}
