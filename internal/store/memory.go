package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweeney/bed-scheduler/internal/profile"
)

// Memory is an in-process Store for tests.
type Memory struct {
	mu       sync.Mutex
	profiles map[string]profile.Profile

	// ListErr, if set, is returned by ListProfiles.
	ListErr error
	// SaveErr, if set, is returned by SaveCredential.
	SaveErr error

	// Saved records every credential written, in order.
	Saved []profile.Credential
}

// NewMemory creates a Memory store holding profiles.
func NewMemory(profiles ...profile.Profile) *Memory {
	m := &Memory{profiles: make(map[string]profile.Profile)}
	for _, p := range profiles {
		m.profiles[p.OwnerID] = clone(p)
	}
	return m
}

func clone(p profile.Profile) profile.Profile {
	if p.Partner != nil {
		partner := *p.Partner
		p.Partner = &partner
	}
	return p
}

func (m *Memory) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrListProfiles, m.ListErr)
	}
	out := make([]profile.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (m *Memory) SaveCredential(ctx context.Context, ownerID string, cred profile.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	p, ok := m.profiles[ownerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ownerID)
	}
	p.Credential = cred
	m.profiles[ownerID] = p
	m.Saved = append(m.Saved, cred)
	return nil
}

func (m *Memory) UpsertProfile(ctx context.Context, p profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.OwnerID] = clone(p)
	return nil
}

func (m *Memory) DeleteProfile(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[ownerID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ownerID)
	}
	delete(m.profiles, ownerID)
	return nil
}

// Get returns a stored profile.
func (m *Memory) Get(ownerID string) (profile.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[ownerID]
	return clone(p), ok
}

func (m *Memory) Close() error { return nil }
