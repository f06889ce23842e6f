// Package onebot models the already-decoded OneBot v11 events and the
// action-call surface the plugin runtime consumes. The websocket/HTTP
// transport that produces events lives outside this module.
package onebot

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PostType discriminates inbound events.
type PostType string

const (
	PostTypeMessage   PostType = "message"
	PostTypeNotice    PostType = "notice"
	PostTypeRequest   PostType = "request"
	PostTypeMetaEvent PostType = "meta_event"
)

// Sender describes the message author as reported by the protocol endpoint.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
	Role     string `json:"role,omitempty"`
	Level    string `json:"level,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Event is a normalized protocol event. Fields are populated according to
// PostType; unused fields stay zero.
type Event struct {
	Time     int64    `json:"time"`
	SelfID   int64    `json:"self_id"`
	PostType PostType `json:"post_type"`

	// message events
	MessageType string `json:"message_type,omitempty"`
	SubType     string `json:"sub_type,omitempty"`
	MessageID   int64  `json:"message_id,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
	GroupID     int64  `json:"group_id,omitempty"`
	RawMessage  string `json:"raw_message,omitempty"`
	Sender      Sender `json:"sender,omitempty"`

	// notice events
	NoticeType string `json:"notice_type,omitempty"`

	// request events
	RequestType string `json:"request_type,omitempty"`
	Comment     string `json:"comment,omitempty"`
	Flag        string `json:"flag,omitempty"`

	// meta events
	MetaEventType string `json:"meta_event_type,omitempty"`

	// Extra carries endpoint-specific fields the runtime passes through to
	// plugins untouched.
	Extra map[string]interface{} `json:"-"`
}

// ParseEvent decodes a raw event payload.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// IsMessage reports whether the event carries a chat message.
func (e *Event) IsMessage() bool {
	return e.PostType == PostTypeMessage
}

// IsGroup reports whether the event originated in a group context.
func (e *Event) IsGroup() bool {
	return e.GroupID != 0
}
