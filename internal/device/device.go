// Package device talks to the mattress pad vendor API.
// The real implementation uses the vendor's HTTP endpoints.
// The fake implementation allows testing without a device.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/bed-scheduler/internal/logic"
	"github.com/sweeney/bed-scheduler/internal/profile"
)

// Side is a physical half of the bed.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideBoth  Side = "both"
)

// Role identifies whose schedule drives a side.
type Role string

const (
	RolePrimary Role = "primary"
	RolePartner Role = "partner"
)

// Side returns the physical side a role is fixed to: the owner sleeps on the
// right and the partner on the left.
func (r Role) Side() Side {
	if r == RolePartner {
		return SideLeft
	}
	return SideRight
}

// SideStatus is the heating status of one physical side.
type SideStatus struct {
	Side Side
	logic.HeatingStatus
}

// Target is the requested state of one side in a combined write.
// Off wins over Level.
type Target struct {
	Level int
	Off   bool
}

func (t Target) String() string {
	if t.Off {
		return "off"
	}
	return fmt.Sprintf("level=%d", t.Level)
}

// Update is one combined write. A nil side is left untouched and is not sent.
type Update struct {
	Left  *Target
	Right *Target
}

// Empty reports whether the update names no side.
func (u Update) Empty() bool { return u.Left == nil && u.Right == nil }

// Client reads and writes heating state for the owner's device.
type Client interface {
	// HeatingStatus returns the status of the requested side, or of both
	// sides when side is SideBoth.
	HeatingStatus(ctx context.Context, cred profile.Credential, side Side) ([]SideStatus, error)

	// SetSides writes every side named in u in a single request.
	SetSides(ctx context.Context, cred profile.Credential, u Update) error
}

// ErrUnexpectedStatusShape is returned when a status response does not
// contain exactly the sides that were asked for.
var ErrUnexpectedStatusShape = errors.New("device: unexpected status shape")

// ErrNoDevice is returned when the account has no device registered.
var ErrNoDevice = errors.New("device: account has no device")

// APIError is a failed vendor call. StatusCode is zero for transport failures.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("device %s: %v", e.Op, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("device %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("device %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the call might succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
