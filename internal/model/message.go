package model

import (
	"errors"
	"strings"
	"time"

	"github.com/cespare/xxhash"
)

const (
	MaxStreamMessageLength = 200
	MaxDirectMessageLength = 1000
)

type MessageType string

const (
	MessageTypeMessage MessageType = "message"
	MessageTypeGift    MessageType = "gift"
	MessageTypeSystem  MessageType = "system"
)

// Message is a stream chat message or a direct message. Exactly one of
// StreamID and ConversationID is set.
type Message struct {
	ID             string      `json:"id" db:"id"`
	StreamID       string      `json:"stream_id,omitempty" db:"stream_id"`
	ConversationID string      `json:"conversation_id,omitempty" db:"conversation_id"`
	AuthorID       UserID      `json:"author_id" db:"author_id"`
	Username       string      `json:"username,omitempty" db:"username"`
	Content        string      `json:"content" db:"content"`
	Type           MessageType `json:"type,omitempty" db:"type"`
	IsPinned       bool        `json:"is_pinned" db:"is_pinned"`
	IsSystem       bool        `json:"is_system" db:"is_system"`
	IsDeleted      bool        `json:"is_deleted" db:"is_deleted"`
	ClientToken    string      `json:"client_token,omitempty" db:"client_token"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

func (m Message) ItemID() string           { return m.ID }
func (m Message) ItemCreatedAt() time.Time { return m.CreatedAt }
func (m Message) CorrelationToken() string { return m.ClientToken }
func (m Message) Deleted() bool            { return m.IsDeleted }

// Fingerprint identifies the author and content of a message for matching an
// echo that carries no client token.
func (m Message) Fingerprint() uint64 {
	return xxhash.Sum64String(string(m.AuthorID) + "\x00" + m.Content)
}

func (m Message) Channel() ChannelKey {
	if m.StreamID != "" {
		return StreamChannel(m.StreamID)
	}
	return ConversationChannel(m.ConversationID)
}

func (m Message) MaxLength() int {
	if m.ConversationID != "" {
		return MaxDirectMessageLength
	}
	return MaxStreamMessageLength
}

func (m Message) Validate() error {
	if (m.StreamID == "") == (m.ConversationID == "") {
		return errors.New("message must belong to exactly one stream or conversation")
	}
	if m.AuthorID == "" {
		return errors.New("missing author_id")
	}
	return nil
}

// ValidateNew checks a message about to be written.
func (m Message) ValidateNew() error {
	if err := m.Validate(); err != nil {
		return err
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return ErrorEmptyContent
	}
	if len([]rune(content)) > m.MaxLength() {
		return ErrorContentTooLong
	}
	return nil
}
