package models

import "time"

// Sender identifies which side of the exchange produced a message.

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one immutable entry in a session transcript. Attachment, when
// present, holds the durable base64 encoding of the normalized image.
type Message struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	SessionID     int64     `json:"session_id"`
	Sender        Sender    `json:"sender"`
	Content       string    `json:"content"`
	HasAttachment bool      `json:"has_attachment"`
	Attachment    string    `json:"attachment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
