// Package profile defines the sleep profiles the scheduler runs for and the
// vendor credential each one carries.
package profile

import (
	"fmt"
	"time"

	"github.com/sweeney/bed-scheduler/internal/logic"
)

// Schedule is one sleeper's daily routine. Bed and wake times are wall-clock
// strings in Timezone.
type Schedule struct {
	BedTime      string
	WakeTime     string
	InitialLevel int
	MidLevel     int
	FinalLevel   int
	Timezone     string
}

// Levels returns the stage levels in the form the decision logic expects.
func (s Schedule) Levels() logic.Levels {
	return logic.Levels{Initial: s.InitialLevel, Mid: s.MidLevel, Final: s.FinalLevel}
}

// Location loads the schedule's time zone. An empty zone means UTC.
func (s Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, &logic.ValidationError{Field: "timezone", Value: s.Timezone, Msg: "unknown zone"}
	}
	return loc, nil
}

// Validate checks clock strings, duration, levels and zone.
func (s Schedule) Validate() error {
	if _, _, err := logic.ValidateSchedule(s.BedTime, s.WakeTime); err != nil {
		return err
	}
	if err := logic.ValidateLevels(s.Levels()); err != nil {
		return err
	}
	_, err := s.Location()
	return err
}

// Credential is the vendor token bundle for one owner.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// UserID is the vendor's identifier for the account.
	UserID string
}

// Expired reports whether the access token is past its expiry at now.
func (c Credential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Profile is a configured owner: their own schedule on the right side of the
// bed and an optional partner schedule on the left.
type Profile struct {
	OwnerID string
	Schedule
	Partner    *Schedule
	Credential Credential
	UpdatedAt  time.Time
}

// HasPartner reports whether a partner schedule is configured.
func (p Profile) HasPartner() bool { return p.Partner != nil }

// Validate checks the owner's schedule and, when present, the partner's.
func (p Profile) Validate() error {
	if p.OwnerID == "" {
		return &logic.ValidationError{Field: "owner id", Msg: "must not be empty"}
	}
	if err := p.Schedule.Validate(); err != nil {
		return err
	}
	if p.Partner != nil {
		if err := p.Partner.Validate(); err != nil {
			return fmt.Errorf("partner: %w", err)
		}
	}
	return nil
}
