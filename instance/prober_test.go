package instance

import (
	"context"
	"fmt"
	"testing"

	"github.com/maksha19/message-be-v2/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testProber(t *testing.T, provider engine.Provider) *Prober {
	p, err := NewProber(ProberOptions{
		Provider: provider,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return p
}

func TestProbeUnknownInstance(t *testing.T) {
	p := testProber(t, &fakeProvider{})

	_, err := p.Probe(context.Background(), "alice@example.com", "i-missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestProbeProviderNotFound(t *testing.T) {
	p := testProber(t, &fakeProvider{
		describeErr: engine.NewError(engine.ErrKindNotFound, "describe", fmt.Errorf("gone")),
	})

	// terminated on the provider side reads as not found, not as not ready
	_, err := p.Probe(context.Background(), "alice@example.com", "i-term")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestProbeNoPublicEndpoint(t *testing.T) {
	p := testProber(t, &fakeProvider{
		descriptions: []engine.Description{
			{InstanceID: "i-new", State: "running"},
		},
	})

	result, err := p.Probe(context.Background(), "alice@example.com", "i-new")
	require.NoError(t, err)
	assert.False(t, result.Ready)
	assert.Equal(t, NotReadyNoEndpoint, result.Reason)
}

func TestProbeNotRegistered(t *testing.T) {
	p := testProber(t, &fakeProvider{
		descriptions: []engine.Description{
			{InstanceID: "i-new", State: "running", PublicEndpoint: "203.0.113.10"},
		},
	})

	result, err := p.Probe(context.Background(), "alice@example.com", "i-new")
	require.NoError(t, err)
	assert.False(t, result.Ready)
	assert.Equal(t, NotReadyNotRegistered, result.Reason)
}

func TestProbeReady(t *testing.T) {
	p := testProber(t, &fakeProvider{
		descriptions: []engine.Description{
			{InstanceID: "i-new", State: "running", PublicEndpoint: "203.0.113.10"},
		},
		registered: true,
	})

	result, err := p.Probe(context.Background(), "alice@example.com", "i-new")
	require.NoError(t, err)
	assert.True(t, result.Ready)
	assert.Equal(t, "203.0.113.10", result.Endpoint)
	assert.Empty(t, result.Reason)
}
