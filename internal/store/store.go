// Package store persists sleep profiles and their vendor credentials.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/profile"
)

// ErrListProfiles wraps any failure to enumerate profiles. It is the only
// store error that aborts a whole run.
var ErrListProfiles = errors.New("store: list profiles")

// ErrNotFound is returned when no profile has the given owner id.
var ErrNotFound = errors.New("store: profile not found")

// Store is the profile repository.
type Store interface {
	// ListProfiles returns every configured profile with its credential and
	// optional partner schedule.
	ListProfiles(ctx context.Context) ([]profile.Profile, error)

	// SaveCredential replaces the credential stored for ownerID.
	SaveCredential(ctx context.Context, ownerID string, cred profile.Credential) error

	// UpsertProfile creates or replaces a profile.
	UpsertProfile(ctx context.Context, p profile.Profile) error

	// DeleteProfile removes a profile.
	DeleteProfile(ctx context.Context, ownerID string) error

	Close() error
}

// Backend names accepted by New.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	PostgresDSN string
	SQLitePath  string
}

// New opens the configured backend and ensures its schema exists.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendPostgres:
		return OpenPostgres(ctx, opts.PostgresDSN, logger)
	case BackendSQLite, "":
		return OpenSQLite(ctx, opts.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", opts.Backend)
	}
}
