package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Document is a free-form JSON column for campaign metadata
type Document map[string]interface{}

func (d *Document) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("Failed to unmarshal jsonb value: %s", value)
	}
	if bytes == nil {
		*d = make(Document)
		return nil
	}
	return json.Unmarshal(bytes, &d)
}

func (d Document) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (*Document) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}

// Event is one broadcast campaign. Created when the broadcast starts and
// mutated only to flip the completion flag; everything else is immutable.
// Correlated to an instance by id but not owned by it.
type Event struct {
	UserID         string     `json:"userId" gorm:"primaryKey"`
	EventID        string     `json:"eventId" gorm:"primaryKey"`
	InstanceID     string     `json:"instanceId" gorm:"index"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	PayloadRef     string     `json:"payloadRef"` // blob sink key, empty when no payload was attached
	RecipientCount int64      `json:"recipientCount"`
	SuccessCount   int64      `json:"successCount"`
	FailureCount   int64      `json:"failureCount"`
	Metadata       Document   `json:"metadata"`
	IsCompleted    bool       `json:"isCompleted"`
	CreatedTime    time.Time  `json:"createdTime"`
	CompletedTime  *time.Time `json:"completedTime,omitempty"`
}
