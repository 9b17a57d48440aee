package user

import "time"

// User describes an account. Owned by the signup/login flow; the
// orchestrator core only reads the activation flag.
type User struct {
	UserID       string    `json:"userId" gorm:"primaryKey"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone"`
	IsActive     bool      `json:"isActive"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}
