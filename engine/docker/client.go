package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/maksha19/message-be-v2/engine"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	containerPrefix = "wa-engine-"
	ownerLabel      = "message.owner"
	agentPort       = "80"
)

// Options contains the configuration for the local development provider
type Options struct {
	Client *client.Client
	Image  string // bridge agent image to run
	Logger *zap.Logger
}

// Client implements engine.Provider against a local Docker daemon. It exists
// so the whole flow can run without an AWS account (the original "offline"
// stage); each launch becomes one bridge container with an auto-assigned
// host port.
type Client struct {
	Options
}

var _ engine.Provider = &Client{}

func NewClient(option Options) (*Client, error) {
	if option.Client == nil {
		return nil, fmt.Errorf("nil Client is invalid")
	}
	if len(option.Image) == 0 {
		return nil, fmt.Errorf("empty Image is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Client{
		Options: option,
	}, nil
}

func (c *Client) Launch(ctx context.Context, spec engine.LaunchSpec) (string, error) {
	if _, err := c.Client.ImagePull(ctx, c.Image, types.ImagePullOptions{}); err != nil {
		return "", engine.NewError(engine.ErrKindTransient, "launch", extErrors.Wrap(err, "Cannot pull agent image"))
	}

	instanceID := "local-" + uuid.New().String()

	containerPort, err := nat.NewPort("tcp", agentPort)
	if err != nil {
		return "", engine.NewError(engine.ErrKindTransient, "launch", extErrors.Wrap(err, "Unable to create port"))
	}
	portBinding := nat.PortMap{
		// empty HostPort lets the daemon pick a free one
		containerPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}},
	}

	resp, err := c.Client.ContainerCreate(ctx,
		&container.Config{
			Image: c.Image,
			Labels: map[string]string{
				ownerLabel: spec.OwnerID,
			},
		},
		&container.HostConfig{
			PortBindings: portBinding,
		},
		nil, // network config
		containerPrefix+instanceID,
	)
	if err != nil {
		return "", engine.NewError(engine.ErrKindTransient, "launch", err)
	}

	if err := c.Client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", engine.NewError(engine.ErrKindTransient, "launch", err)
	}

	c.Logger.Info("Local agent container started",
		zap.String("InstanceID", instanceID),
		zap.String("ContainerID", resp.ID),
	)

	return instanceID, nil
}

func (c *Client) Describe(ctx context.Context, filter engine.DescribeFilter) ([]engine.Description, error) {
	containers, err := c.Client.ContainerList(ctx, types.ContainerListOptions{
		All: !filter.RunningOnly,
	})
	if err != nil {
		return nil, engine.NewError(engine.ErrKindTransient, "describe", extErrors.Wrap(err, "Cannot list containers"))
	}

	descriptions := make([]engine.Description, 0, 1)
	for _, cont := range containers {
		instanceID, ok := instanceIDFromNames(cont.Names)
		if !ok {
			continue
		}
		if len(filter.InstanceID) > 0 && filter.InstanceID != instanceID {
			continue
		}
		if len(filter.OwnerID) > 0 && cont.Labels[ownerLabel] != filter.OwnerID {
			continue
		}
		d := engine.Description{
			InstanceID: instanceID,
			State:      cont.State,
		}
		for _, p := range cont.Ports {
			if p.PublicPort > 0 {
				d.PublicEndpoint = fmt.Sprintf("127.0.0.1:%d", p.PublicPort)
				break
			}
		}
		descriptions = append(descriptions, d)
	}
	return descriptions, nil
}

func (c *Client) Terminate(ctx context.Context, instanceID string) error {
	containerID, err := c.getContainerID(ctx, instanceID)
	if err != nil {
		return err
	}
	if err := c.Client.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	}); err != nil {
		return engine.NewError(engine.ErrKindTransient, "terminate", extErrors.Wrap(err, "Cannot remove container"))
	}
	return nil
}

// Local containers have no side channel to register with, so a running
// container counts as registered.
func (c *Client) IsRegisteredForRemoteCommands(ctx context.Context, instanceID string) (bool, error) {
	descriptions, err := c.Describe(ctx, engine.DescribeFilter{
		InstanceID:  instanceID,
		RunningOnly: true,
	})
	if err != nil {
		return false, err
	}
	return len(descriptions) > 0, nil
}

// RunCommand is a no-op locally: the agent process is the container
// entrypoint and is already running after Launch.
func (c *Client) RunCommand(ctx context.Context, instanceID string, commands []string) (string, error) {
	ok, err := c.IsRegisteredForRemoteCommands(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", engine.NewError(engine.ErrKindNotFound, "run command", fmt.Errorf("no running container for %s", instanceID))
	}
	return "local-noop", nil
}

func (c *Client) getContainerID(ctx context.Context, instanceID string) (string, error) {
	containers, err := c.Client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
	})
	if err != nil {
		return "", engine.NewError(engine.ErrKindTransient, "terminate", extErrors.Wrap(err, "Cannot list containers"))
	}
	for _, cont := range containers {
		id, ok := instanceIDFromNames(cont.Names)
		if ok && id == instanceID {
			return cont.ID, nil
		}
	}
	return "", engine.NewError(engine.ErrKindNotFound, "terminate", fmt.Errorf("no container for %s", instanceID))
}

func instanceIDFromNames(names []string) (string, bool) {
	for _, name := range names {
		trimmed := strings.TrimPrefix(name, "/")
		if strings.HasPrefix(trimmed, containerPrefix) {
			return strings.TrimPrefix(trimmed, containerPrefix), true
		}
	}
	return "", false
}
