package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"uk.co.dudmesh.roastlive/pkg/feed"
)

const Version = "1"

type Type string

const (
	TypeSubscribe   Type = "subscribe"
	TypeSubscribed  Type = "subscribed"
	TypeUnsubscribe Type = "unsubscribe"
	TypeChange      Type = "change"
	TypeError       Type = "error"
	TypePing        Type = "ping"
	TypePong        Type = "pong"
)

// Frame is one JSON message of the realtime protocol. Ref ties subscribe,
// subscribed, change and unsubscribe frames of one subscription together.
type Frame struct {
	Version   string          `json:"v"`
	Type      Type            `json:"typ"`
	Ref       string          `json:"ref,omitempty"`
	Timestamp int64           `json:"ts"`
	Filter    *feed.Filter    `json:"filter,omitempty"`
	Kind      feed.ChangeKind `json:"kind,omitempty"`
	Table     string          `json:"table,omitempty"`
	Record    json.RawMessage `json:"record,omitempty"`
	Message   string          `json:"message,omitempty"`
}

var (
	ErrorInvalidFrame  = errors.New("invalid frame")
	ErrorMissingRef    = errors.New("missing ref")
	ErrorMissingRecord = errors.New("missing record")
)

func New(typ Type, ref string) *Frame {
	return &Frame{
		Version:   Version,
		Type:      typ,
		Ref:       ref,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
}

func Subscribe(ref string, filter feed.Filter) *Frame {
	f := New(TypeSubscribe, ref)
	f.Filter = &filter
	return f
}

func Change(ref string, kind feed.ChangeKind, table string, record interface{}) (*Frame, error) {
	if record == nil {
		return nil, ErrorMissingRecord
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshalling record: %w", err)
	}
	f := New(TypeChange, ref)
	f.Kind = kind
	f.Table = table
	f.Record = recordBytes
	return f, nil
}

func Error(ref string, message string) *Frame {
	f := New(TypeError, ref)
	f.Message = message
	return f
}

func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshalling frame: %w", err)
	}
	return data, nil
}

func Parse(data []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("unmarshalling frame: %w", err)
	}

	if f.Version != Version {
		return nil, fmt.Errorf("unsupported version: %s", f.Version)
	}

	switch f.Type {
	case TypeSubscribe:
		if f.Filter == nil || f.Filter.Table == "" {
			return nil, fmt.Errorf("%w: subscribe without filter", ErrorInvalidFrame)
		}
	case TypeChange:
		if f.Kind != feed.ChangeInsert && f.Kind != feed.ChangeUpdate {
			return nil, fmt.Errorf("%w: unsupported change kind %q", ErrorInvalidFrame, f.Kind)
		}
		if len(f.Record) == 0 {
			return nil, ErrorMissingRecord
		}
	case TypeSubscribed, TypeUnsubscribe, TypeError, TypePing, TypePong:
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrorInvalidFrame, f.Type)
	}

	switch f.Type {
	case TypeSubscribe, TypeSubscribed, TypeUnsubscribe, TypeChange:
		if f.Ref == "" {
			return nil, ErrorMissingRef
		}
	}

	return f, nil
}
