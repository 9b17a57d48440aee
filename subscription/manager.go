package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maksha19/message-be-v2/usage"
	"github.com/maksha19/message-be-v2/user"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActionClass selects which counter gates an action
type ActionClass string

const (
	MessageClass ActionClass = "Message" // broadcast/send actions, gated by messageCountLeft
	EngineClass  ActionClass = "Engine"  // instance lifecycle actions, gated by engineHourLeft
)

// Authorization denials
var (
	ErrUserNotFound   = errors.New("no such user")
	ErrUserInactive   = errors.New("user is deactivated")
	ErrQuotaExhausted = errors.New("quota exhausted")
)

// ManagerOptions contains the configuration for the quota Manager
type ManagerOptions struct {
	DB           *gorm.DB
	UserManager  *user.Manager
	UsageManager *usage.Manager
	Logger       *zap.Logger
}

// Manager is the quota guard. Authorize is a pure read; the Consume*
// methods are the explicit decrement path, invoked by callers only after
// the underlying action succeeded so failed operations are never charged.
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.UserManager == nil {
		return nil, fmt.Errorf("nil UserManager is invalid")
	}
	if option.UsageManager == nil {
		return nil, fmt.Errorf("nil UsageManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// Get returns the user's subscription, or nil if none exists
func (m *Manager) Get(ctx context.Context, userID string) (*Subscription, error) {
	var sub Subscription

	result := m.DB.WithContext(ctx).First(&sub, "user_id = ?", userID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription")
	}

	return &sub, nil
}

// Authorize checks that the user exists, is active, and has allowance left
// in the counter relevant to the action class. Read-only: denial leaves no
// trace and a grant reserves nothing.
func (m *Manager) Authorize(ctx context.Context, userID string, class ActionClass) error {
	u, err := m.UserManager.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if !u.IsActive {
		return ErrUserInactive
	}

	sub, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrQuotaExhausted
	}

	switch class {
	case MessageClass:
		if sub.MessageCountLeft <= 0 {
			return ErrQuotaExhausted
		}
	case EngineClass:
		if sub.EngineHourLeft <= 0 {
			return ErrQuotaExhausted
		}
	default:
		return fmt.Errorf("unknown action class %q", class)
	}
	return nil
}

// ConsumeMessage moves amount from messageCountLeft to messageCountUsed.
// The decrement is a single conditional UPDATE guarded on left >= amount,
// so the balance never goes negative under concurrent sends.
func (m *Manager) ConsumeMessage(ctx context.Context, userID string, amount int64) error {
	return m.consume(ctx, userID, usage.KindMessage, amount,
		"message_count_used", "message_count_left")
}

// ConsumeEngineHour moves amount from engineHourLeft to engineHourUsed
func (m *Manager) ConsumeEngineHour(ctx context.Context, userID string, amount int64) error {
	return m.consume(ctx, userID, usage.KindEngineHour, amount,
		"engine_hour_used", "engine_hour_left")
}

func (m *Manager) consume(ctx context.Context, userID string, kind usage.Kind, amount int64, usedCol, leftCol string) error {
	if amount <= 0 {
		return fmt.Errorf("non-positive amount is invalid")
	}

	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("user_id = ? AND "+leftCol+" >= ?", userID, amount).
		Updates(map[string]interface{}{
			usedCol:         gorm.Expr(usedCol+" + ?", amount),
			leftCol:         gorm.Expr(leftCol+" - ?", amount),
			"modified_time": time.Now(),
		})
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot decrement quota")
	}
	if result.RowsAffected == 0 {
		return ErrQuotaExhausted
	}

	if err := m.UsageManager.Record(ctx, userID, kind, amount); err != nil {
		// audit miss must not fail the already-charged operation
		m.Logger.Error("Unable to record usage",
			zap.String("UserID", userID),
			zap.Error(err),
		)
	}
	return nil
}

// EnsureDefault creates a zero-balance subscription row for a new user if
// none exists yet. Used by the signup flow.
func (m *Manager) EnsureDefault(ctx context.Context, userID string) error {
	existing, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	result := m.DB.WithContext(ctx).Create(&Subscription{
		UserID:       userID,
		ModifiedTime: time.Now(),
	})
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return nil
}
