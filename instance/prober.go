package instance

import (
	"context"
	"errors"
	"fmt"

	"github.com/maksha19/message-be-v2/engine"

	"go.uber.org/zap"
)

// ErrInstanceNotFound means the provider has no matching running instance:
// terminated, never launched, or not owned by this user. Distinct from a
// not-ready instance, which exists but cannot serve traffic yet.
var ErrInstanceNotFound = errors.New("no matching running instance")

// NotReadyReason distinguishes why an existing instance is not ready
type NotReadyReason string

const (
	NotReadyNoEndpoint    NotReadyReason = "NoPublicEndpoint"
	NotReadyNotRegistered NotReadyReason = "NotRegisteredForRemoteCommands"
)

// ProbeResult is the outcome of a single readiness check
type ProbeResult struct {
	Ready    bool           `json:"ready"`
	Endpoint string         `json:"endpoint,omitempty"`
	Reason   NotReadyReason `json:"reason,omitempty"`
}

// ProberOptions contains the configuration for a Prober
type ProberOptions struct {
	Provider engine.Provider
	Logger   *zap.Logger
}

// Prober determines whether a freshly launched instance is reachable and
// registered for remote command execution. Exactly one check per call, no
// internal polling or backoff: callers repeat the call on their own clock.
type Prober struct {
	ProberOptions
}

// NewProber will return a Prober for readiness checks
func NewProber(option ProberOptions) (*Prober, error) {
	if option.Provider == nil {
		return nil, fmt.Errorf("nil Provider is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Prober{
		ProberOptions: option,
	}, nil
}

// Probe performs a single readiness check for the user's instance
func (p *Prober) Probe(ctx context.Context, userID, instanceID string) (*ProbeResult, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("empty userID is invalid")
	}
	if len(instanceID) == 0 {
		return nil, fmt.Errorf("empty instanceID is invalid")
	}

	descriptions, err := p.Provider.Describe(ctx, engine.DescribeFilter{
		InstanceID:  instanceID,
		OwnerID:     userID,
		RunningOnly: true,
	})
	if err != nil {
		if engine.IsNotFound(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	if len(descriptions) == 0 {
		return nil, ErrInstanceNotFound
	}

	description := descriptions[0]
	if len(description.PublicEndpoint) == 0 {
		return &ProbeResult{
			Ready:  false,
			Reason: NotReadyNoEndpoint,
		}, nil
	}

	registered, err := p.Provider.IsRegisteredForRemoteCommands(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !registered {
		return &ProbeResult{
			Ready:  false,
			Reason: NotReadyNotRegistered,
		}, nil
	}

	p.Logger.Debug("Instance ready",
		zap.String("InstanceID", instanceID),
		zap.String("Endpoint", description.PublicEndpoint),
	)

	return &ProbeResult{
		Ready:    true,
		Endpoint: description.PublicEndpoint,
	}, nil
}
