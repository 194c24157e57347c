package model

import (
	"encoding/json"
	"errors"
	"time"
)

type NotificationType string

const (
	NotificationTypeFollow  NotificationType = "follow"
	NotificationTypeGift    NotificationType = "gift"
	NotificationTypeVIP     NotificationType = "vip"
	NotificationTypeBattle  NotificationType = "battle"
	NotificationTypeStream  NotificationType = "stream"
	NotificationTypeMention NotificationType = "mention"
	NotificationTypeSystem  NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeFollow, NotificationTypeGift, NotificationTypeVIP, NotificationTypeBattle,
		NotificationTypeStream, NotificationTypeMention, NotificationTypeSystem:
		return true
	}
	return false
}

type Notification struct {
	ID          string           `json:"id" db:"id"`
	RecipientID UserID           `json:"user_id" db:"user_id"`
	Type        NotificationType `json:"type" db:"type"`
	Title       string           `json:"title" db:"title"`
	Body        string           `json:"body,omitempty" db:"body"`
	// Payload is opaque routing data, e.g. the stream to open.
	Payload     json.RawMessage `json:"payload,omitempty" db:"payload"`
	IsRead      bool            `json:"is_read" db:"is_read"`
	ClientToken string          `json:"client_token,omitempty" db:"client_token"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

func (n Notification) ItemID() string           { return n.ID }
func (n Notification) ItemCreatedAt() time.Time { return n.CreatedAt }
func (n Notification) CorrelationToken() string { return n.ClientToken }

func (n Notification) Channel() ChannelKey {
	return NotificationChannel(n.RecipientID)
}

func (n Notification) Validate() error {
	if n.RecipientID == "" {
		return errors.New("missing user_id")
	}
	if !n.Type.Valid() {
		return ErrorUnknownNotificationType
	}
	return nil
}
