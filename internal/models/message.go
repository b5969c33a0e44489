package models

import "github.com/portal-hub/internal/types"

// AssistantMessage is one entry of a user's conversation log. Messages are append-only.
type AssistantMessage struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"userId"`
	Content   string       `json:"content"`
	Sender    types.Sender `json:"sender"`
	Timestamp int64        `json:"timestamp"`
}

// NewMessage is the insert payload for an assistant message.
// Timestamp is supplied by the caller (epoch milliseconds in the request layer).
type NewMessage struct {
	UserID    int64        `json:"userId" validate:"required,gt=0"`
	Content   string       `json:"content" validate:"required"`
	Sender    types.Sender `json:"sender" validate:"required,sender"`
	Timestamp int64        `json:"timestamp"`
}
