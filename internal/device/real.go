package device

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/profile"
)

// DefaultHeatingDuration is how long the device keeps a level it was sent.
const DefaultHeatingDuration = 3 * time.Hour

// IDCache remembers which device belongs to a vendor user.
type IDCache interface {
	// DeviceID returns the cached id and whether one was found.
	DeviceID(ctx context.Context, userID string) (string, bool, error)
	SetDeviceID(ctx context.Context, userID, deviceID string) error
}

type meResponse struct {
	User struct {
		Devices []string `json:"devices"`
	} `json:"user"`
}

type deviceResult struct {
	LeftHeatingLevel        *int  `json:"leftHeatingLevel"`
	LeftTargetHeatingLevel  *int  `json:"leftTargetHeatingLevel"`
	LeftNowHeating          *bool `json:"leftNowHeating"`
	RightHeatingLevel       *int  `json:"rightHeatingLevel"`
	RightTargetHeatingLevel *int  `json:"rightTargetHeatingLevel"`
	RightNowHeating         *bool `json:"rightNowHeating"`
}

type deviceResponse struct {
	Result *deviceResult `json:"result"`
}

// RealClient calls the vendor HTTP API.
type RealClient struct {
	http            *resty.Client
	cache           IDCache
	heatingDuration time.Duration
	logger          *zap.Logger
}

// NewRealClient creates a client for the API at baseURL. cache may be nil.
func NewRealClient(baseURL string, timeout, heatingDuration time.Duration, cache IDCache, logger *zap.Logger) *RealClient {
	if heatingDuration <= 0 {
		heatingDuration = DefaultHeatingDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &RealClient{
		http:            client,
		cache:           cache,
		heatingDuration: heatingDuration,
		logger:          logger,
	}
}

func (c *RealClient) request(ctx context.Context, cred profile.Credential) *resty.Request {
	return c.http.R().SetContext(ctx).SetAuthToken(cred.AccessToken)
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	if resp.IsError() {
		return &APIError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// DeviceID returns the first device registered to the credential's account.
func (c *RealClient) DeviceID(ctx context.Context, cred profile.Credential) (string, error) {
	if c.cache != nil && cred.UserID != "" {
		id, ok, err := c.cache.DeviceID(ctx, cred.UserID)
		if err != nil {
			c.logger.Warn("device id cache read failed", zap.String("user_id", cred.UserID), zap.Error(err))
		} else if ok {
			return id, nil
		}
	}

	var me meResponse
	resp, err := c.request(ctx, cred).SetResult(&me).Get("/users/me")
	if err := checkResponse("get user", resp, err); err != nil {
		return "", err
	}
	if len(me.User.Devices) == 0 {
		return "", ErrNoDevice
	}
	id := me.User.Devices[0]

	if c.cache != nil && cred.UserID != "" {
		if err := c.cache.SetDeviceID(ctx, cred.UserID, id); err != nil {
			c.logger.Warn("device id cache write failed", zap.String("user_id", cred.UserID), zap.Error(err))
		}
	}
	return id, nil
}

// HeatingStatus reads the device and returns the requested sides.
func (c *RealClient) HeatingStatus(ctx context.Context, cred profile.Credential, side Side) ([]SideStatus, error) {
	id, err := c.DeviceID(ctx, cred)
	if err != nil {
		return nil, err
	}

	var body deviceResponse
	resp, err := c.request(ctx, cred).
		SetPathParam("id", id).
		SetResult(&body).
		Get("/devices/{id}")
	if err := checkResponse("get status", resp, err); err != nil {
		return nil, err
	}
	if body.Result == nil {
		return nil, fmt.Errorf("%w: missing result", ErrUnexpectedStatusShape)
	}

	r := body.Result
	var out []SideStatus
	if side == SideLeft || side == SideBoth {
		if st, ok := sideStatus(SideLeft, r.LeftNowHeating, r.LeftHeatingLevel); ok {
			out = append(out, st)
		}
	}
	if side == SideRight || side == SideBoth {
		if st, ok := sideStatus(SideRight, r.RightNowHeating, r.RightHeatingLevel); ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func sideStatus(side Side, nowHeating *bool, level *int) (SideStatus, bool) {
	if nowHeating == nil || level == nil {
		return SideStatus{}, false
	}
	st := SideStatus{Side: side}
	st.IsHeating = *nowHeating
	st.Level = *level
	return st, true
}

// Payload returns the JSON body for a combined write. Sides that are nil in
// u do not appear.
func Payload(u Update, heatingDuration time.Duration) map[string]any {
	body := make(map[string]any)
	add := func(prefix string, t *Target) {
		if t == nil {
			return
		}
		if t.Off {
			body[prefix+"NowHeating"] = false
			return
		}
		body[prefix+"TargetHeatingLevel"] = t.Level
		body[prefix+"NowHeating"] = true
		body[prefix+"HeatingDuration"] = int(heatingDuration.Seconds())
	}
	add("left", u.Left)
	add("right", u.Right)
	return body
}

// SetSides sends a single PUT naming every side in u.
func (c *RealClient) SetSides(ctx context.Context, cred profile.Credential, u Update) error {
	if u.Empty() {
		return nil
	}
	id, err := c.DeviceID(ctx, cred)
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, cred).
		SetPathParam("id", id).
		SetBody(Payload(u, c.heatingDuration)).
		Put("/devices/{id}")
	return checkResponse("set sides", resp, err)
}
