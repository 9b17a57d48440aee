package instance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testManager(t *testing.T) *Manager {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// in-memory sqlite is per connection; a single pooled connection keeps
	// every query on the same database and serializes transactions
	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)

	m, err := NewManager(zap.NewNop(), db)
	require.NoError(t, err)

	return m
}

func activeInstance(userID string) *Instance {
	return &Instance{
		ID:          uuid.New().String(),
		UserID:      userID,
		State:       StateRequested,
		IsActive:    true,
		CreatedTime: time.Now(),
	}
}

func TestCreateActiveReservesSingleSlot(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	first := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, first))

	second := activeInstance("alice@example.com")
	err := m.CreateActive(ctx, second)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	// a different user is unaffected
	other := activeInstance("bob@example.com")
	assert.NoError(t, m.CreateActive(ctx, other))
}

func TestCreateActiveConcurrent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	start := make(chan struct{})
	results := make(chan error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- m.CreateActive(ctx, activeInstance("alice@example.com"))
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var reserved, denied int
	for err := range results {
		switch {
		case err == nil:
			reserved++
		case errors.Is(err, ErrAlreadyActive):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, reserved)
	assert.Equal(t, 1, denied)

	all, err := m.List(ctx, "alice@example.com", true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateActiveAfterTermination(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	first := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, first))
	require.NoError(t, m.SetLaunched(ctx, first.ID, "i-first"))
	require.NoError(t, m.MarkTerminated(ctx, first.UserID, "i-first", time.Now()))

	second := activeInstance("alice@example.com")
	assert.NoError(t, m.CreateActive(ctx, second))

	all, err := m.List(ctx, "alice@example.com", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReleaseOnlyRemovesRequested(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	reserved := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, reserved))
	require.NoError(t, m.Release(ctx, reserved.ID))

	active, err := m.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, active)

	launched := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, launched))
	require.NoError(t, m.SetLaunched(ctx, launched.ID, "i-launched"))

	// past Requested, release must not touch the row
	require.NoError(t, m.Release(ctx, launched.ID))
	active, err = m.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, StateLaunching, active.State)
}

func TestMarkPairedStampsOnce(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	inst := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, inst))
	require.NoError(t, m.SetLaunched(ctx, inst.ID, "i-paired"))

	stamped, err := m.MarkPaired(ctx, inst.UserID, "i-paired", time.Now())
	require.NoError(t, err)
	assert.True(t, stamped)

	active, err := m.GetActive(ctx, inst.UserID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.NotNil(t, active.PairedTime)
	firstStamp := *active.PairedTime

	// a later true poll must not move the stamp
	stamped, err = m.MarkPaired(ctx, inst.UserID, "i-paired", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, stamped)

	active, err = m.GetActive(ctx, inst.UserID)
	require.NoError(t, err)
	require.NotNil(t, active.PairedTime)
	assert.Equal(t, firstStamp.Unix(), active.PairedTime.Unix())
}

func TestMarkPairedIgnoresTerminatedInstance(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	inst := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, inst))
	require.NoError(t, m.SetLaunched(ctx, inst.ID, "i-gone"))
	require.NoError(t, m.MarkTerminated(ctx, inst.UserID, "i-gone", time.Now()))

	stamped, err := m.MarkPaired(ctx, inst.UserID, "i-gone", time.Now())
	require.NoError(t, err)
	assert.False(t, stamped)

	row, err := m.GetByInstanceID(ctx, inst.UserID, "i-gone")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, StateTerminated, row.State)
	assert.Nil(t, row.PairedTime)
}

func TestMarkTerminatedIsIdempotent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	inst := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, inst))
	require.NoError(t, m.SetLaunched(ctx, inst.ID, "i-term"))

	require.NoError(t, m.MarkTerminated(ctx, inst.UserID, "i-term", time.Now()))
	require.NoError(t, m.MarkTerminated(ctx, inst.UserID, "i-term", time.Now()))

	row, err := m.GetByInstanceID(ctx, inst.UserID, "i-term")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.IsActive)
	assert.Equal(t, StateTerminated, row.State)
}

func TestMarkRunningRequiresLaunching(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	inst := activeInstance("alice@example.com")
	require.NoError(t, m.CreateActive(ctx, inst))

	// still Requested: no transition
	require.NoError(t, m.MarkRunning(ctx, inst.UserID, ""))
	active, err := m.GetActive(ctx, inst.UserID)
	require.NoError(t, err)
	assert.Equal(t, StateRequested, active.State)

	require.NoError(t, m.SetLaunched(ctx, inst.ID, "i-run"))
	require.NoError(t, m.MarkRunning(ctx, inst.UserID, "i-run"))

	active, err = m.GetActive(ctx, inst.UserID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, active.State)
}
