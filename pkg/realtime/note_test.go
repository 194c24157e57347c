package realtime

import (
	"encoding/json"
	"time"
)

type noteItem struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func (n noteItem) ItemID() string           { return n.ID }
func (n noteItem) ItemCreatedAt() time.Time { return n.CreatedAt }
func (n noteItem) CorrelationToken() string { return "" }
func (n noteItem) Validate() error          { return nil }

func decodeNote(record json.RawMessage) (noteItem, error) {
	var n noteItem
	err := json.Unmarshal(record, &n)
	return n, err
}
