package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/maksha19/message-be-v2/instance"

	"go.uber.org/zap"
)

// Validation failures detected before any network call
var (
	ErrEndpointMissing   = errors.New("instance endpoint is required")
	ErrEmptyPayload      = errors.New("message payload is required")
	ErrMalformedResponse = errors.New("remote agent response is missing the expected field")
)

// Error wraps a failed exchange with the remote agent. StatusCode is 0 when
// the call never completed (connection refused, caller deadline exceeded).
type Error struct {
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("remote agent: %v", e.Cause)
	}
	return fmt.Sprintf("remote agent returned HTTP %d", e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options contains the configuration for the handshake Client
type Options struct {
	HTTPClient      *http.Client
	InstanceManager *instance.Manager
	Provisioner     *instance.Provisioner
	Logger          *zap.Logger
}

// Client speaks the bridge agent's HTTP contract: pairing code retrieval,
// login-status polling, message dispatch and logout. Every call takes the
// instance endpoint from the caller; no endpoint state is kept here.
type Client struct {
	Options
}

// NewClient will return a handshake Client for the remote agent contract
func NewClient(option Options) (*Client, error) {
	if option.HTTPClient == nil {
		return nil, fmt.Errorf("nil HTTPClient is invalid")
	}
	if option.InstanceManager == nil {
		return nil, fmt.Errorf("nil InstanceManager is invalid")
	}
	if option.Provisioner == nil {
		return nil, fmt.Errorf("nil Provisioner is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Client{
		Options: option,
	}, nil
}

// FetchPairingCode retrieves the QR code payload the user scans to pair
func (c *Client) FetchPairingCode(ctx context.Context, endpoint string) (string, error) {
	var body struct {
		QRCode *string `json:"qrCode"`
	}
	if err := c.get(ctx, endpoint, "/qrCode", &body); err != nil {
		return "", err
	}
	if body.QRCode == nil {
		return "", ErrMalformedResponse
	}
	return *body.QRCode, nil
}

// PollLoginStatus performs one status check against the agent. The first
// poll that reports logged-in stamps the pairing time in the registry; the
// conditional write makes later true polls no-ops and keeps stale polls
// from touching a terminated instance.
func (c *Client) PollLoginStatus(ctx context.Context, endpoint, userID, instanceID string) (bool, error) {
	var body struct {
		LoginStatus *bool `json:"loginStatus"`
	}
	if err := c.get(ctx, endpoint, "/loginStatus", &body); err != nil {
		return false, err
	}
	if body.LoginStatus == nil {
		return false, ErrMalformedResponse
	}

	if *body.LoginStatus {
		stamped, err := c.InstanceManager.MarkPaired(ctx, userID, instanceID, time.Now())
		if err != nil {
			return false, err
		}
		if stamped {
			c.Logger.Info("Instance paired",
				zap.String("UserID", userID),
				zap.String("InstanceID", instanceID),
			)
		}
	}

	return *body.LoginStatus, nil
}

// SendMessage posts one outbound message payload to the agent
func (c *Client) SendMessage(ctx context.Context, endpoint string, payload json.RawMessage) (json.RawMessage, error) {
	if len(endpoint) == 0 {
		return nil, ErrEndpointMissing
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil, ErrEmptyPayload
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+endpoint+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Cause: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &Error{StatusCode: res.StatusCode}
	}

	var reply json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, ErrMalformedResponse
	}
	return reply, nil
}

// LogoutAndTerminate logs the session out of the agent and then tears the
// instance down. The remote logout must succeed before terminate runs: a
// failed logout surfaces the agent error and leaves the instance active
// rather than silently orphaning a still-paired session.
func (c *Client) LogoutAndTerminate(ctx context.Context, endpoint, userID, instanceID string) (string, error) {
	var body struct {
		LoginStatus *bool `json:"loginStatus"`
	}
	if err := c.get(ctx, endpoint, "/logout", &body); err != nil {
		return "", err
	}

	c.Logger.Info("Remote agent logged out",
		zap.String("UserID", userID),
		zap.String("InstanceID", instanceID),
	)

	return c.Provisioner.Terminate(ctx, userID, instanceID)
}

func (c *Client) get(ctx context.Context, endpoint, path string, out interface{}) error {
	if len(endpoint) == 0 {
		return ErrEndpointMissing
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+endpoint+path, nil)
	if err != nil {
		return &Error{Cause: err}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return &Error{Cause: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &Error{StatusCode: res.StatusCode}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return ErrMalformedResponse
	}
	return nil
}
