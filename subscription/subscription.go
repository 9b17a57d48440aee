package subscription

import "time"

// Subscription holds a user's remaining allowance. Balances are topped up
// by the billing collaborator; this core only reads them and decrements
// after successful actions. used + left is conserved across decrements and
// left never goes negative.
type Subscription struct {
	UserID           string    `json:"userId" gorm:"primaryKey"`
	MessageCountUsed int64     `json:"messageCountUsed"`
	MessageCountLeft int64     `json:"messageCountLeft"`
	EngineHourUsed   int64     `json:"engineHourUsed"`
	EngineHourLeft   int64     `json:"engineHourLeft"`
	ModifiedTime     time.Time `json:"modifiedTime"`
}
