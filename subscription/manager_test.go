package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/maksha19/message-be-v2/usage"
	"github.com/maksha19/message-be-v2/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testQuotaManager(t *testing.T) (*Manager, *user.Manager) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// in-memory sqlite is per connection; keep every query on one
	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)

	userManager, err := user.NewManager(zap.NewNop(), db)
	require.NoError(t, err)

	usageManager, err := usage.NewManager(zap.NewNop(), db)
	require.NoError(t, err)

	m, err := NewManager(ManagerOptions{
		DB:           db,
		UserManager:  userManager,
		UsageManager: usageManager,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	return m, userManager
}

func seedUser(t *testing.T, m *Manager, users *user.Manager, userID string, messages, hours int64) {
	ctx := context.Background()
	require.NoError(t, users.NewUser(ctx, &user.User{
		UserID: userID,
		Name:   "Alice",
		Phone:  "+15550100",
	}))
	require.NoError(t, m.DB.Create(&Subscription{
		UserID:           userID,
		MessageCountLeft: messages,
		EngineHourLeft:   hours,
		ModifiedTime:     time.Now(),
	}).Error)
}

func TestAuthorizeUnknownUser(t *testing.T) {
	m, _ := testQuotaManager(t)

	err := m.Authorize(context.Background(), "ghost@example.com", MessageClass)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthorizeInactiveUser(t *testing.T) {
	m, users := testQuotaManager(t)
	ctx := context.Background()

	seedUser(t, m, users, "alice@example.com", 10, 10)
	require.NoError(t, m.DB.Model(&user.User{}).
		Where("user_id = ?", "alice@example.com").
		Update("is_active", false).Error)

	err := m.Authorize(ctx, "alice@example.com", MessageClass)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestAuthorizePerClass(t *testing.T) {
	m, users := testQuotaManager(t)
	ctx := context.Background()

	// messages left but no engine hours
	seedUser(t, m, users, "alice@example.com", 5, 0)

	assert.NoError(t, m.Authorize(ctx, "alice@example.com", MessageClass))
	assert.ErrorIs(t, m.Authorize(ctx, "alice@example.com", EngineClass), ErrQuotaExhausted)
}

func TestAuthorizeWithoutSubscription(t *testing.T) {
	m, users := testQuotaManager(t)
	ctx := context.Background()

	require.NoError(t, users.NewUser(ctx, &user.User{
		UserID: "fresh@example.com",
		Name:   "Fresh",
		Phone:  "+15550101",
	}))

	err := m.Authorize(ctx, "fresh@example.com", MessageClass)
	assert.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestConsumeConservesBalance(t *testing.T) {
	m, users := testQuotaManager(t)
	ctx := context.Background()

	seedUser(t, m, users, "alice@example.com", 10, 2)

	require.NoError(t, m.ConsumeMessage(ctx, "alice@example.com", 3))
	require.NoError(t, m.ConsumeEngineHour(ctx, "alice@example.com", 1))

	sub, err := m.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), sub.MessageCountUsed)
	assert.Equal(t, int64(7), sub.MessageCountLeft)
	assert.Equal(t, int64(1), sub.EngineHourUsed)
	assert.Equal(t, int64(1), sub.EngineHourLeft)

	// every decrement leaves an audit row
	var audits []usage.Usage
	require.NoError(t, m.DB.Find(&audits, "user_id = ?", "alice@example.com").Error)
	assert.Len(t, audits, 2)
}

func TestConsumeBeyondBalance(t *testing.T) {
	m, users := testQuotaManager(t)
	ctx := context.Background()

	seedUser(t, m, users, "alice@example.com", 2, 0)

	err := m.ConsumeMessage(ctx, "alice@example.com", 3)
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	// the denied decrement must not touch the balance
	sub, getErr := m.Get(ctx, "alice@example.com")
	require.NoError(t, getErr)
	assert.Equal(t, int64(0), sub.MessageCountUsed)
	assert.Equal(t, int64(2), sub.MessageCountLeft)
}

func TestConsumeRejectsNonPositiveAmount(t *testing.T) {
	m, users := testQuotaManager(t)

	seedUser(t, m, users, "alice@example.com", 2, 0)

	assert.Error(t, m.ConsumeMessage(context.Background(), "alice@example.com", 0))
	assert.Error(t, m.ConsumeMessage(context.Background(), "alice@example.com", -1))
}

func TestEnsureDefault(t *testing.T) {
	m, users := testQuotaManager(t)
	ctx := context.Background()

	require.NoError(t, users.NewUser(ctx, &user.User{
		UserID: "fresh@example.com",
		Name:   "Fresh",
		Phone:  "+15550101",
	}))

	require.NoError(t, m.EnsureDefault(ctx, "fresh@example.com"))

	sub, err := m.Get(ctx, "fresh@example.com")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, int64(0), sub.MessageCountLeft)

	// idempotent on an existing subscription
	require.NoError(t, m.DB.Model(&Subscription{}).
		Where("user_id = ?", "fresh@example.com").
		Update("message_count_left", 5).Error)
	require.NoError(t, m.EnsureDefault(ctx, "fresh@example.com"))

	sub, err = m.Get(ctx, "fresh@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(5), sub.MessageCountLeft)
}
