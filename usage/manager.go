package usage

import (
	"context"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Usage{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize usage.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Record appends one consumption row
func (m *Manager) Record(ctx context.Context, userID string, kind Kind, amount int64) error {
	result := m.db.WithContext(ctx).Create(&Usage{
		UserID: userID,
		Kind:   kind,
		Amount: amount,
		When:   time.Now(),
	})
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Cannot record usage")
	}
	return nil
}
