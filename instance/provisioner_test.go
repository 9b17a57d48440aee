package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/maksha19/message-be-v2/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	launchCalls    int
	terminateCalls int

	launchErr    error
	terminateErr error
	registered   bool
	descriptions []engine.Description
	describeErr  error
}

var _ engine.Provider = &fakeProvider{}

func (f *fakeProvider) Launch(ctx context.Context, spec engine.LaunchSpec) (string, error) {
	f.launchCalls++
	if f.launchErr != nil {
		return "", f.launchErr
	}
	return fmt.Sprintf("i-fake-%d", f.launchCalls), nil
}

func (f *fakeProvider) Describe(ctx context.Context, filter engine.DescribeFilter) ([]engine.Description, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return f.descriptions, nil
}

func (f *fakeProvider) Terminate(ctx context.Context, instanceID string) error {
	f.terminateCalls++
	return f.terminateErr
}

func (f *fakeProvider) IsRegisteredForRemoteCommands(ctx context.Context, instanceID string) (bool, error) {
	return f.registered, nil
}

func (f *fakeProvider) RunCommand(ctx context.Context, instanceID string, commands []string) (string, error) {
	return "cmd-fake", nil
}

func testProvisioner(t *testing.T, provider engine.Provider) (*Provisioner, *Manager) {
	m := testManager(t)
	p, err := NewProvisioner(ProvisionerOptions{
		InstanceManager: m,
		Provider:        provider,
		AgentBootCmd:    "docker run -d -p 80:80 wa-bridge",
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)
	return p, m
}

func TestProvisionerCreate(t *testing.T) {
	provider := &fakeProvider{}
	p, m := testProvisioner(t, provider)
	ctx := context.Background()

	inst, err := p.Create(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "i-fake-1", inst.InstanceID)
	assert.Equal(t, StateLaunching, inst.State)

	active, err := m.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "i-fake-1", active.InstanceID)
}

func TestProvisionerCreateConcurrent(t *testing.T) {
	provider := &fakeProvider{}
	p, m := testProvisioner(t, provider)
	ctx := context.Background()

	start := make(chan struct{})
	results := make(chan error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := p.Create(ctx, "alice@example.com")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var created, denied int
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrAlreadyActive):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, denied)

	// the losing request must never reach the provider
	assert.Equal(t, 1, provider.launchCalls)

	all, err := m.List(ctx, "alice@example.com", true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProvisionerCreateWithActiveInstance(t *testing.T) {
	provider := &fakeProvider{}
	p, _ := testProvisioner(t, provider)
	ctx := context.Background()

	_, err := p.Create(ctx, "alice@example.com")
	require.NoError(t, err)

	_, err = p.Create(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrAlreadyActive)

	// the second request must never reach the provider
	assert.Equal(t, 1, provider.launchCalls)
}

func TestProvisionerCreateReleasesOnLaunchFailure(t *testing.T) {
	provider := &fakeProvider{
		launchErr: engine.NewError(engine.ErrKindTransient, "launch", fmt.Errorf("capacity")),
	}
	p, m := testProvisioner(t, provider)
	ctx := context.Background()

	_, err := p.Create(ctx, "alice@example.com")
	require.Error(t, err)

	// failed launch leaves no active row behind
	active, err := m.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, active)

	provider.launchErr = nil
	_, err = p.Create(ctx, "alice@example.com")
	assert.NoError(t, err)
}

func TestProvisionerTerminateWithoutActiveInstance(t *testing.T) {
	provider := &fakeProvider{}
	p, _ := testProvisioner(t, provider)

	_, err := p.Terminate(context.Background(), "alice@example.com", "")
	assert.ErrorIs(t, err, ErrNoActiveInstance)
	assert.Equal(t, 0, provider.terminateCalls)
}

func TestProvisionerTerminateResolvesActiveInstance(t *testing.T) {
	provider := &fakeProvider{}
	p, m := testProvisioner(t, provider)
	ctx := context.Background()

	created, err := p.Create(ctx, "alice@example.com")
	require.NoError(t, err)

	instanceID, err := p.Terminate(ctx, "alice@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, created.InstanceID, instanceID)

	row, err := m.GetByInstanceID(ctx, "alice@example.com", instanceID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, StateTerminated, row.State)
	assert.False(t, row.IsActive)
	assert.NotNil(t, row.TerminatedTime)
}

func TestProvisionerTerminateAbsorbsProviderNotFound(t *testing.T) {
	provider := &fakeProvider{}
	p, _ := testProvisioner(t, provider)
	ctx := context.Background()

	created, err := p.Create(ctx, "alice@example.com")
	require.NoError(t, err)

	// instance died on the provider side before we asked
	provider.terminateErr = engine.NewError(engine.ErrKindNotFound, "terminate", fmt.Errorf("gone"))

	instanceID, err := p.Terminate(ctx, "alice@example.com", created.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, created.InstanceID, instanceID)

	// repeated termination of the same instance stays successful
	_, err = p.Terminate(ctx, "alice@example.com", created.InstanceID)
	assert.NoError(t, err)
}

func TestProvisionerTerminateConvergesStuckReservation(t *testing.T) {
	provider := &fakeProvider{
		terminateErr: engine.NewError(engine.ErrKindTransient, "terminate", fmt.Errorf("empty instanceID is invalid")),
	}
	p, m := testProvisioner(t, provider)
	ctx := context.Background()

	// a launch failure whose release also failed leaves an active row with
	// no provider id; termination must still free the user's slot
	stuck := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, stuck))

	_, err := p.Terminate(ctx, "alice@example.com", "")
	require.NoError(t, err)

	// no provider id, so the provider is never asked
	assert.Equal(t, 0, provider.terminateCalls)

	active, err := m.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, active)

	// the slot is free again
	_, err = p.Create(ctx, "alice@example.com")
	assert.NoError(t, err)
}

func TestProvisionerTerminateSurfacesProviderFailure(t *testing.T) {
	provider := &fakeProvider{}
	p, m := testProvisioner(t, provider)
	ctx := context.Background()

	created, err := p.Create(ctx, "alice@example.com")
	require.NoError(t, err)

	provider.terminateErr = engine.NewError(engine.ErrKindTransient, "terminate", fmt.Errorf("throttled"))

	_, err = p.Terminate(ctx, "alice@example.com", "")
	require.Error(t, err)

	// the registry must not converge on a failed teardown
	active, err := m.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, created.InstanceID, active.InstanceID)
}

func TestProvisionerStartAgent(t *testing.T) {
	provider := &fakeProvider{}
	p, _ := testProvisioner(t, provider)
	ctx := context.Background()

	_, err := p.StartAgent(ctx, "alice@example.com", "i-agent")
	assert.ErrorIs(t, err, ErrNotRegistered)

	provider.registered = true
	commandID, err := p.StartAgent(ctx, "alice@example.com", "i-agent")
	require.NoError(t, err)
	assert.Equal(t, "cmd-fake", commandID)
}
