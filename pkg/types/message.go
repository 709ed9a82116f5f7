package types

import "fmt"

// Message is one relayed command or status update. It mirrors the wire
// HostMessage and is never modified after construction.
type Message struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Command   string `json:"command"`
}

// NewMessage builds a message
func NewMessage(sender, recipient, command string) *Message {
	return &Message{
		Sender:    sender,
		Recipient: recipient,
		Command:   command,
	}
}

// RecipientRole returns the normalized role the message is addressed to
func (m *Message) RecipientRole() Role {
	return Normalize(m.Recipient)
}

// SenderRole returns the normalized role of the sender field
func (m *Message) SenderRole() Role {
	return Normalize(m.Sender)
}

// WithSender returns a copy of m with the sender set
func (m *Message) WithSender(sender string) *Message {
	c := *m
	c.Sender = sender
	return &c
}

// String returns a string representation of the message
func (m *Message) String() string {
	return fmt.Sprintf("Message{Sender: %s, Recipient: %s, Command: %q}", m.Sender, m.Recipient, m.Command)
}

// Validate checks that the message can be routed
func (m *Message) Validate() error {
	if m == nil {
		return NewError(ErrCodeInvalidArgument, "message is nil")
	}
	if m.RecipientRole().IsEmpty() {
		return NewError(ErrCodeInvalidArgument, "message has no recipient")
	}
	return nil
}
