package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maksha19/message-be-v2/blob"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrMissingIdentifiers = errors.New("user id and instance id are required")
	ErrEventNotFound      = errors.New("no such event for this user")
)

// Notifier publishes campaign milestones for external consumers (the
// dashboard frontend). Best effort: a notification miss never fails the
// operation that triggered it.
type Notifier interface {
	NotifyStarted(e *Event) error
	NotifyCompleted(e *Event) error
}

// ManagerOptions contains the configuration for the event Manager
type ManagerOptions struct {
	DB       *gorm.DB
	Sink     blob.Sink
	Notifier Notifier // optional
	Logger   *zap.Logger
}

// Manager tracks broadcast campaigns independently of the instance
// lifecycle that carries them
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for broadcast events
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Sink == nil {
		return nil, fmt.Errorf("nil Sink is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Event{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize event.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// StartOption describes a new campaign
type StartOption struct {
	UserID         string
	InstanceID     string
	Title          string
	Description    string
	RecipientCount int64
	Metadata       Document
	Payload        []byte // optional auxiliary payload, persisted to the blob sink
	PayloadType    string // content type of Payload
}

// deriveEventID builds a deterministic id that is unique per
// (user, instance, creation instant) and sorts by creation order within a
// user, with no separate sequence generator. The nano timestamp is
// zero-padded so lexicographic order matches chronological order.
func deriveEventID(userID, instanceID string, createdAt time.Time) string {
	return fmt.Sprintf("%s-%019d-%s", userID, createdAt.UnixNano(), instanceID)
}

// Start registers a campaign. When a payload is attached the blob write
// happens before the record write, so a visible event never carries a
// dangling payload reference: a failed blob write yields no record at all.
func (m *Manager) Start(ctx context.Context, opt StartOption) (*Event, error) {
	if len(opt.UserID) == 0 || len(opt.InstanceID) == 0 {
		return nil, ErrMissingIdentifiers
	}

	now := time.Now()
	e := &Event{
		UserID:         opt.UserID,
		EventID:        deriveEventID(opt.UserID, opt.InstanceID, now),
		InstanceID:     opt.InstanceID,
		Title:          opt.Title,
		Description:    opt.Description,
		RecipientCount: opt.RecipientCount,
		Metadata:       opt.Metadata,
		CreatedTime:    now,
	}

	if len(opt.Payload) > 0 {
		key := "events/" + e.EventID
		contentType := opt.PayloadType
		if len(contentType) == 0 {
			contentType = "application/octet-stream"
		}
		if err := m.Sink.Put(ctx, key, contentType, opt.Payload); err != nil {
			m.Logger.Error("Unable to write payload blob, event not recorded",
				zap.String("UserID", opt.UserID),
				zap.Error(err),
			)
			return nil, err
		}
		e.PayloadRef = key
	}

	result := m.DB.WithContext(ctx).Create(e)
	if result.Error != nil {
		m.Logger.Error("Unable to create event record",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create event")
	}

	if m.Notifier != nil {
		if err := m.Notifier.NotifyStarted(e); err != nil {
			m.Logger.Error("Unable to publish event start notification",
				zap.Error(err),
			)
		}
	}

	return e, nil
}

// CompleteOption carries the final campaign counters
type CompleteOption struct {
	UserID       string
	EventID      string
	SuccessCount int64
	FailureCount int64
}

// Complete flips the completion flag exactly once and records the final
// counters. Completing an already-completed event is a no-op; completing
// an unknown one fails with ErrEventNotFound.
func (m *Manager) Complete(ctx context.Context, opt CompleteOption) (*Event, error) {
	if len(opt.UserID) == 0 || len(opt.EventID) == 0 {
		return nil, ErrMissingIdentifiers
	}

	now := time.Now()
	result := m.DB.WithContext(ctx).Model(&Event{}).
		Where("user_id = ? AND event_id = ? AND is_completed = ?", opt.UserID, opt.EventID, false).
		Updates(map[string]interface{}{
			"is_completed":   true,
			"success_count":  opt.SuccessCount,
			"failure_count":  opt.FailureCount,
			"completed_time": now,
		})
	if result.Error != nil {
		m.Logger.Error("Unable to complete event",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot complete event")
	}

	e, err := m.Get(ctx, opt.UserID, opt.EventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEventNotFound
	}

	if result.RowsAffected > 0 && m.Notifier != nil {
		if err := m.Notifier.NotifyCompleted(e); err != nil {
			m.Logger.Error("Unable to publish event completion notification",
				zap.Error(err),
			)
		}
	}

	return e, nil
}

// Get returns one event record, or nil if no matching record exists
func (m *Manager) Get(ctx context.Context, userID, eventID string) (*Event, error) {
	var e Event

	result := m.DB.WithContext(ctx).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		First(&e)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get event")
	}

	return &e, nil
}

// List returns the user's campaigns created after since, newest first
func (m *Manager) List(ctx context.Context, userID string, since time.Time, limit int) ([]Event, error) {
	results := make([]Event, 0, 4)
	baseQuery := m.DB.WithContext(ctx).
		Order("created_time desc").
		Where("user_id = ?", userID)
	if !since.IsZero() {
		baseQuery = baseQuery.Where("created_time >= ?", since)
	}
	if limit > 0 {
		baseQuery = baseQuery.Limit(limit)
	}
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
