package command

import (
	"encoding/json"

	"github.com/maksha19/message-be-v2/event"
)

// Action enumerates the inbound command surface
type Action string

const (
	ActionCreate            Action = "create"
	ActionStatus            Action = "status"
	ActionStartEngine       Action = "startEngine"
	ActionPairingCode       Action = "pairingCode"
	ActionLoginStatus       Action = "loginStatus"
	ActionStartBroadcast    Action = "startBroadcast"
	ActionSendMessage       Action = "sendMessage"
	ActionCompleteBroadcast Action = "completeBroadcast"
	ActionLogout            Action = "logout"
	ActionTerminate         Action = "terminate"
)

// BroadcastParams carries campaign fields for the broadcast actions
type BroadcastParams struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	RecipientCount int64           `json:"recipientCount"`
	Metadata       event.Document  `json:"metadata,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	SuccessCount   int64           `json:"successCount"`
	FailureCount   int64           `json:"failureCount"`
}

// Request is one inbound command. UserID comes from the authenticated
// claims, never from the body.
type Request struct {
	Action     Action           `json:"action" validate:"required"`
	UserID     string           `json:"-"`
	InstanceID string           `json:"instanceId,omitempty"`
	Endpoint   string           `json:"endpoint,omitempty"`
	Message    json.RawMessage  `json:"message,omitempty"`
	EventID    string           `json:"eventId,omitempty"`
	Broadcast  *BroadcastParams `json:"broadcast,omitempty"`
}
