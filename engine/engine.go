package engine

import "context"

// Provider is the narrow capability interface against the compute provider.
// Implementations must not retry internally; the caller owns deadlines via
// ctx and retry policy.
type Provider interface {
	// Launch starts a fresh compute instance tagged with ownerID and
	// returns the provider-assigned instance id.
	Launch(ctx context.Context, spec LaunchSpec) (string, error)
	// Describe returns the state of instances matching the filter.
	Describe(ctx context.Context, filter DescribeFilter) ([]Description, error)
	// Terminate requests teardown of the instance. Terminating an instance
	// the provider no longer knows about returns ErrKindNotFound.
	Terminate(ctx context.Context, instanceID string) error
	// IsRegisteredForRemoteCommands reports whether the instance has checked
	// in with the remote command-execution channel.
	IsRegisteredForRemoteCommands(ctx context.Context, instanceID string) (bool, error)
	// RunCommand executes shell commands on the instance via the remote
	// command-execution channel, returning the command invocation id.
	RunCommand(ctx context.Context, instanceID string, commands []string) (string, error)
}

// LaunchSpec describes the instance to be launched
type LaunchSpec struct {
	OwnerID string // tagged on the instance so Describe can filter by owner
}

// DescribeFilter narrows a Describe call
type DescribeFilter struct {
	InstanceID  string
	OwnerID     string
	RunningOnly bool
}

// Description is the provider's view of one instance
type Description struct {
	InstanceID     string
	State          string // provider-native state name (e.g. "running", "terminated")
	PublicEndpoint string // empty until the instance has an externally reachable address
}
