package bus

import "time"

// Attachment is binary media carried with an inbound message.
type Attachment struct {
	Data     []byte
	MIMEType string
}

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	// UserID is the store key for the sender ("telegram:<id>", or the
	// signed-in user id for web sessions).
	UserID   string
	Audio    []Attachment
	Metadata map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	Metadata map[string]any
}
