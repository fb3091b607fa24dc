package auth

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/bed-scheduler/internal/profile"
)

// FakeRefresher issues predictable credentials for tests.
type FakeRefresher struct {
	mu sync.Mutex

	// Lifetime is added to Now for the new expiry.
	Lifetime time.Duration
	Now      func() time.Time

	// Err, if set, is returned by Refresh.
	Err error

	// Calls records the refresh tokens that were exchanged.
	Calls []string
}

// NewFakeRefresher creates a FakeRefresher issuing one-hour credentials.
func NewFakeRefresher(now func() time.Time) *FakeRefresher {
	return &FakeRefresher{Lifetime: time.Hour, Now: now}
}

// Refresh returns cred with "-refreshed" appended to its access token.
func (f *FakeRefresher) Refresh(ctx context.Context, cred profile.Credential) (profile.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cred.RefreshToken)
	if f.Err != nil {
		return cred, f.Err
	}
	out := cred
	out.AccessToken = cred.AccessToken + "-refreshed"
	out.ExpiresAt = f.Now().Add(f.Lifetime)
	return out, nil
}
