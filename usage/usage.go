package usage

import "time"

// Kind names the quota counter a consumption was charged against
type Kind string

const (
	KindMessage    Kind = "Message"
	KindEngineHour Kind = "EngineHour"
)

// Usage is one append-only audit row per quota decrement
type Usage struct {
	ID     uint   `gorm:"primaryKey"`
	UserID string `gorm:"not null;index"`
	Kind   Kind
	Amount int64
	When   time.Time
}
