package instance

import "time"

// Instance describes one ephemeral compute instance hosting a WhatsApp
// bridge agent, bound to exactly one user while active
type Instance struct {
	ID             string     `json:"id" gorm:"primaryKey"`                                          // registry row id (UUID)
	UserID         string     `json:"userId" gorm:"index:idx_one_active_per_user,unique,where:is_active"` // owning user; at most one active row per user
	InstanceID     string     `json:"instanceId" gorm:"index"` // provider-assigned id, set once the launch call succeeds
	State          string     `json:"state"`
	IsActive       bool       `json:"isActive"`
	CreatedTime    time.Time  `json:"createdTime"`
	PairedTime     *time.Time `json:"pairedTime,omitempty"`     // stamped once the handshake confirms login
	TerminatedTime *time.Time `json:"terminatedTime,omitempty"`
}
