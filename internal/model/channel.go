package model

import (
	"fmt"
	"strings"

	"uk.co.dudmesh.roastlive/pkg/feed"
)

type Table string

const (
	TableStreamMessages Table = "stream_messages"
	TableDirectMessages Table = "dm_messages"
	TableNotifications  Table = "notifications"
)

type ChannelKind string

const (
	ChannelStream        ChannelKind = "stream"
	ChannelConversation  ChannelKind = "conversation"
	ChannelNotifications ChannelKind = "notifications"
)

// ChannelKey names one ordered feed, e.g. "stream:42" or "conversation:7".
type ChannelKey string

func StreamChannel(streamID string) ChannelKey {
	return ChannelKey(string(ChannelStream) + ":" + streamID)
}

func ConversationChannel(conversationID string) ChannelKey {
	return ChannelKey(string(ChannelConversation) + ":" + conversationID)
}

func NotificationChannel(userID UserID) ChannelKey {
	return ChannelKey(string(ChannelNotifications) + ":" + string(userID))
}

func ParseChannelKey(s string) (ChannelKind, string, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("%w: %q", ErrorInvalidChannel, s)
	}
	switch ChannelKind(kind) {
	case ChannelStream, ChannelConversation, ChannelNotifications:
		return ChannelKind(kind), id, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrorInvalidChannel, s)
}

var channelFilters = map[ChannelKind]struct {
	table  Table
	column string
}{
	ChannelStream:        {TableStreamMessages, "stream_id"},
	ChannelConversation:  {TableDirectMessages, "conversation_id"},
	ChannelNotifications: {TableNotifications, "user_id"},
}

// Filter returns the subscription filter that selects the rows of the channel.
func (k ChannelKey) Filter() (feed.Filter, error) {
	kind, id, err := ParseChannelKey(string(k))
	if err != nil {
		return feed.Filter{}, err
	}
	f := channelFilters[kind]
	return feed.Filter{
		Table:       string(f.table),
		Event:       feed.FilterAllEvents,
		MatchColumn: f.column,
		MatchValue:  id,
	}, nil
}

func (k ChannelKey) Table() Table {
	kind, _, err := ParseChannelKey(string(k))
	if err != nil {
		return ""
	}
	return channelFilters[kind].table
}

// ChannelOf returns the channel a subscription filter selects. Filters that
// do not select exactly one channel are rejected.
func ChannelOf(filter feed.Filter) (ChannelKey, error) {
	if filter.MatchValue == "" {
		return "", fmt.Errorf("%w: filter on %s has no match value", ErrorInvalidChannel, filter.Table)
	}
	for kind, f := range channelFilters {
		if string(f.table) == filter.Table && f.column == filter.MatchColumn {
			return ChannelKey(string(kind) + ":" + filter.MatchValue), nil
		}
	}
	return "", fmt.Errorf("%w: no channel of %s by %q", ErrorInvalidChannel, filter.Table, filter.MatchColumn)
}
