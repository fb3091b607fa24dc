package device

import (
	"context"
	"sync"

	"github.com/sweeney/bed-scheduler/internal/profile"
)

// Write is one recorded SetSides call.
type Write struct {
	AccessToken string
	Update      Update
}

// FakeClient is a test double. Behaviour is scripted per access token so
// several profiles can share one fake.
type FakeClient struct {
	mu sync.Mutex

	// Statuses holds the sides returned by HeatingStatus. Missing tokens
	// report both sides off.
	Statuses map[string][]SideStatus

	// StatusErr, if set for a token, is returned by HeatingStatus.
	StatusErr map[string]error

	// SetErr, if set for a token, is returned by SetSides.
	SetErr map[string]error

	// Writes records every successful SetSides call.
	Writes []Write

	// StatusCalls and SetCalls count attempts, failed ones included.
	StatusCalls int
	SetCalls    int
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Statuses:  make(map[string][]SideStatus),
		StatusErr: make(map[string]error),
		SetErr:    make(map[string]error),
	}
}

// HeatingStatus returns the scripted statuses for the requested side.
func (f *FakeClient) HeatingStatus(ctx context.Context, cred profile.Credential, side Side) ([]SideStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusCalls++

	if err := f.StatusErr[cred.AccessToken]; err != nil {
		return nil, err
	}
	all, ok := f.Statuses[cred.AccessToken]
	if !ok {
		all = []SideStatus{{Side: SideLeft}, {Side: SideRight}}
	}
	if side == SideBoth {
		return append([]SideStatus(nil), all...), nil
	}
	var out []SideStatus
	for _, st := range all {
		if st.Side == side {
			out = append(out, st)
		}
	}
	return out, nil
}

// SetSides records the update or returns the scripted error.
func (f *FakeClient) SetSides(ctx context.Context, cred profile.Credential, u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetCalls++

	if err := f.SetErr[cred.AccessToken]; err != nil {
		return err
	}
	f.Writes = append(f.Writes, Write{AccessToken: cred.AccessToken, Update: u})
	return nil
}

// WritesFor returns the recorded writes for one access token.
func (f *FakeClient) WritesFor(token string) []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Write
	for _, w := range f.Writes {
		if w.AccessToken == token {
			out = append(out, w)
		}
	}
	return out
}

// Reset clears recorded calls and scripted errors.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = nil
	f.StatusCalls = 0
	f.SetCalls = 0
	f.StatusErr = make(map[string]error)
	f.SetErr = make(map[string]error)
}
