package instance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry invariant violations surfaced to callers
var (
	ErrAlreadyActive    = errors.New("user already has an active instance")
	ErrNoActiveInstance = errors.New("user has no active instance")
)

// Manager is the registry: the single source of truth for instance
// lifecycle state. All writes that guard the single-active invariant are
// conditional at the database, never read-then-write in process memory.
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for the instance registry
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Instance{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize instance.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// CreateActive atomically reserves the user's single active slot. The
// insert runs in a serializable transaction that re-checks for an active
// row, backed by the partial unique index on (user_id) WHERE is_active, so
// two concurrent creates cannot both succeed.
func (m *Manager) CreateActive(ctx context.Context, inst *Instance) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if res := tx.Model(&Instance{}).
			Where("user_id = ? AND is_active = ?", inst.UserID, true).
			Count(&count); res.Error != nil {
			return res.Error
		}
		if count > 0 {
			return ErrAlreadyActive
		}
		return tx.Create(inst).Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if errors.Is(err, ErrAlreadyActive) {
		return ErrAlreadyActive
	}
	if err != nil {
		m.logger.Error("Unable to reserve active instance slot",
			zap.String("UserID", inst.UserID),
			zap.Error(err),
		)
		return extErrors.Wrap(err, "Cannot create instance")
	}
	return nil
}

// SetLaunched records the provider-assigned instance id on a reservation
func (m *Manager) SetLaunched(ctx context.Context, id string, providerInstanceID string) error {
	result := m.db.WithContext(ctx).Model(&Instance{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"instance_id": providerInstanceID,
			"state":       StateLaunching,
		})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot record launched instance")
	}
	return nil
}

// Release removes a reservation whose provider launch failed. Only rows
// still in Requested can be released; anything further along must go
// through termination.
func (m *Manager) Release(ctx context.Context, id string) error {
	result := m.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, StateRequested).
		Delete(&Instance{})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot release instance reservation")
	}
	return nil
}

// GetActive returns the user's active instance, or nil if none
func (m *Manager) GetActive(ctx context.Context, userID string) (*Instance, error) {
	inst := Instance{}

	result := m.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&inst)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get active instance")
	}

	return &inst, nil
}

// GetByInstanceID returns the user's registry row for a provider instance
// id regardless of its active flag, or nil if no such row exists
func (m *Manager) GetByInstanceID(ctx context.Context, userID, instanceID string) (*Instance, error) {
	inst := Instance{}

	result := m.db.WithContext(ctx).
		Where("user_id = ? AND instance_id = ?", userID, instanceID).
		First(&inst)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get instance by id")
	}

	return &inst, nil
}

// MarkRunning advances a launching instance to Running. Conditional on the
// row still being active and in Launching; repeated calls are no-ops.
func (m *Manager) MarkRunning(ctx context.Context, userID, instanceID string) error {
	result := m.db.WithContext(ctx).Model(&Instance{}).
		Where("user_id = ? AND instance_id = ? AND is_active = ? AND state = ?",
			userID, instanceID, true, StateLaunching).
		Update("state", StateRunning)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot mark instance running")
	}
	return nil
}

// MarkPaired stamps the pairing time exactly once. The write is conditioned
// on "active and not yet paired" so a stale poll can neither re-stamp nor
// revive a terminated instance. Returns whether this call did the stamping.
func (m *Manager) MarkPaired(ctx context.Context, userID, instanceID string, pairedAt time.Time) (bool, error) {
	result := m.db.WithContext(ctx).Model(&Instance{}).
		Where("user_id = ? AND instance_id = ? AND is_active = ? AND paired_time IS NULL",
			userID, instanceID, true).
		Updates(map[string]interface{}{
			"paired_time": pairedAt,
			"state":       StatePaired,
		})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot mark instance paired")
	}
	return result.RowsAffected > 0, nil
}

// MarkTerminated converges the row to the absorbing Terminated state.
// Conditional on is_active so repeated termination is a harmless no-op.
func (m *Manager) MarkTerminated(ctx context.Context, userID, instanceID string, terminatedAt time.Time) error {
	result := m.db.WithContext(ctx).Model(&Instance{}).
		Where("user_id = ? AND instance_id = ? AND is_active = ?", userID, instanceID, true).
		Updates(map[string]interface{}{
			"is_active":       false,
			"state":           StateTerminated,
			"terminated_time": terminatedAt,
		})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot mark instance terminated")
	}
	return nil
}

// List returns the user's instances, newest first
func (m *Manager) List(ctx context.Context, userID string, all bool) ([]Instance, error) {
	results := make([]Instance, 0, 1)
	baseQuery := m.db.WithContext(ctx).Order("created_time desc")
	if !all {
		baseQuery = baseQuery.Where("is_active = ?", true)
	}
	result := baseQuery.Find(&results, "user_id = ?", userID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
