package instance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maksha19/message-be-v2/engine"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotRegistered is returned by StartAgent when the instance has not yet
// checked in with the remote command-execution channel. Callers decide
// whether to retry or give up after a deadline.
var ErrNotRegistered = errors.New("instance not registered for remote commands")

// ProvisionerOptions contains the configuration for a Provisioner
type ProvisionerOptions struct {
	InstanceManager *Manager
	Provider        engine.Provider
	AgentBootCmd    string // shell command that starts the bridge agent on the instance
	Logger          *zap.Logger
}

// Provisioner drives instance creation and termination against the compute
// provider, recording every transition in the registry. It performs no
// retries; provider failures surface to the caller typed.
type Provisioner struct {
	ProvisionerOptions
}

// NewProvisioner will return a Provisioner for instance lifecycle operations
func NewProvisioner(option ProvisionerOptions) (*Provisioner, error) {
	if option.InstanceManager == nil {
		return nil, fmt.Errorf("nil InstanceManager is invalid")
	}
	if option.Provider == nil {
		return nil, fmt.Errorf("nil Provider is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Provisioner{
		ProvisionerOptions: option,
	}, nil
}

// Create reserves the user's active slot, launches a provider instance and
// finalizes the registry row. The reservation is the atomic conditional
// write that upholds the single-active invariant; a failed launch releases
// it and surfaces the provider error.
func (p *Provisioner) Create(ctx context.Context, userID string) (*Instance, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("empty userID is invalid")
	}

	logger := p.Logger.With(zap.String("UserID", userID))

	reservation := &Instance{
		ID:          uuid.New().String(),
		UserID:      userID,
		State:       StateRequested,
		IsActive:    true,
		CreatedTime: time.Now(),
	}
	if err := p.InstanceManager.CreateActive(ctx, reservation); err != nil {
		return nil, err
	}

	instanceID, err := p.Provider.Launch(ctx, engine.LaunchSpec{OwnerID: userID})
	if err != nil {
		logger.Error("Provider launch failed, releasing reservation",
			zap.Error(err),
		)
		if releaseErr := p.InstanceManager.Release(ctx, reservation.ID); releaseErr != nil {
			// reservation row survives a release failure; termination will
			// converge it later
			logger.Error("Unable to release reservation after failed launch",
				zap.Error(releaseErr),
			)
		}
		return nil, extErrors.Wrap(err, "Cannot provision instance")
	}

	if err := p.InstanceManager.SetLaunched(ctx, reservation.ID, instanceID); err != nil {
		return nil, err
	}

	logger.Info("Instance provisioned",
		zap.String("InstanceID", instanceID),
	)

	reservation.InstanceID = instanceID
	reservation.State = StateLaunching
	return reservation, nil
}

// Terminate tears down an instance. When instanceID is empty the user's
// active instance is resolved from the registry. Provider NotFound is
// absorbed as success; the registry row always converges to Terminated on
// any success path, so repeated termination is idempotent.
func (p *Provisioner) Terminate(ctx context.Context, userID, instanceID string) (string, error) {
	if len(userID) == 0 {
		return "", fmt.Errorf("empty userID is invalid")
	}

	logger := p.Logger.With(zap.String("UserID", userID))

	if len(instanceID) == 0 {
		active, err := p.InstanceManager.GetActive(ctx, userID)
		if err != nil {
			return "", err
		}
		if active == nil {
			return "", ErrNoActiveInstance
		}
		instanceID = active.InstanceID
	} else {
		row, err := p.InstanceManager.GetByInstanceID(ctx, userID, instanceID)
		if err != nil {
			return "", err
		}
		if row == nil {
			return "", ErrNoActiveInstance
		}
	}

	logger = logger.With(zap.String("InstanceID", instanceID))

	if len(instanceID) > 0 {
		if err := p.Provider.Terminate(ctx, instanceID); err != nil {
			if !engine.IsNotFound(err) {
				logger.Error("Provider terminate failed",
					zap.Error(err),
				)
				return "", err
			}
			// already gone on the provider side; registry still converges
			logger.Info("Provider reports instance already gone")
		}
	} else {
		// reservation that never received a provider id (failed launch whose
		// release also failed); nothing to tear down remotely
		logger.Info("Converging reservation without provider instance")
	}

	if err := p.InstanceManager.MarkTerminated(ctx, userID, instanceID, time.Now()); err != nil {
		return "", err
	}

	logger.Info("Instance terminated")
	return instanceID, nil
}

// RecordRunning advances the registry once a probe has seen a reachable
// endpoint. State writes stay with the Provisioner; the prober only reads.
func (p *Provisioner) RecordRunning(ctx context.Context, userID, instanceID string) error {
	return p.InstanceManager.MarkRunning(ctx, userID, instanceID)
}

// StartAgent issues the remote command that boots the bridge agent on a
// launched instance. Fails with ErrNotRegistered while the instance has not
// yet checked in with the command channel.
func (p *Provisioner) StartAgent(ctx context.Context, userID, instanceID string) (string, error) {
	if len(instanceID) == 0 {
		return "", fmt.Errorf("empty instanceID is invalid")
	}

	registered, err := p.Provider.IsRegisteredForRemoteCommands(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if !registered {
		return "", ErrNotRegistered
	}

	commandID, err := p.Provider.RunCommand(ctx, instanceID, []string{p.AgentBootCmd})
	if err != nil {
		return "", err
	}

	p.Logger.Info("Agent boot command sent",
		zap.String("UserID", userID),
		zap.String("InstanceID", instanceID),
		zap.String("CommandID", commandID),
	)
	return commandID, nil
}
