// Package auth refreshes vendor credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/profile"
)

// ErrExpired is returned when a credential has expired and cannot be
// refreshed.
var ErrExpired = errors.New("auth: credential expired")

// Refresher exchanges a refresh token for a new credential.
type Refresher interface {
	Refresh(ctx context.Context, cred profile.Credential) (profile.Credential, error)
}

// Ensure returns cred unchanged while it is valid at now, otherwise a
// refreshed credential. refreshed reports whether a refresh happened.
func Ensure(ctx context.Context, r Refresher, cred profile.Credential, now time.Time) (out profile.Credential, refreshed bool, err error) {
	if !cred.Expired(now) {
		return cred, false, nil
	}
	if cred.RefreshToken == "" || r == nil {
		return cred, false, fmt.Errorf("%w: no refresh token", ErrExpired)
	}
	out, err = r.Refresh(ctx, cred)
	if err != nil {
		return cred, false, err
	}
	return out, true, nil
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       string `json:"userId"`
}

// Client refreshes tokens against the vendor auth API.
type Client struct {
	http         *resty.Client
	clientID     string
	clientSecret string
	logger       *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewClient creates a Client for the auth API at baseURL.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		now:          time.Now,
	}
}

// Refresh exchanges cred's refresh token. The new expiry is now + expires_in.
// Fields missing from the response keep their previous values.
func (c *Client) Refresh(ctx context.Context, cred profile.Credential) (profile.Credential, error) {
	var body tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(tokenRequest{
			ClientID:     c.clientID,
			ClientSecret: c.clientSecret,
			GrantType:    "refresh_token",
			RefreshToken: cred.RefreshToken,
		}).
		SetResult(&body).
		Post("/tokens")
	if err != nil {
		return cred, fmt.Errorf("refresh token: %w", err)
	}
	if resp.IsError() {
		return cred, fmt.Errorf("refresh token: status %d: %s", resp.StatusCode(), resp.String())
	}
	if body.AccessToken == "" {
		return cred, errors.New("refresh token: response has no access token")
	}

	out := cred
	out.AccessToken = body.AccessToken
	if body.RefreshToken != "" {
		out.RefreshToken = body.RefreshToken
	}
	if body.UserID != "" {
		out.UserID = body.UserID
	}
	out.ExpiresAt = c.now().Add(time.Duration(body.ExpiresIn) * time.Second)

	c.logger.Info("credential refreshed",
		zap.String("user_id", out.UserID),
		zap.Time("expires_at", out.ExpiresAt),
	)
	return out, nil
}
