package message

import (
	"strconv"

	"github.com/linjianyan0229/linbot2/pkg/onebot"
)

// Message is an inbound chat message decoded into segments, with the
// originating event attached for sender and channel context.
type Message struct {
	Event    *onebot.Event
	Segments []Segment
}

// FromEvent decodes the event's raw message text. It returns nil when the
// event is not a message event.
func FromEvent(ev *onebot.Event) *Message {
	if ev == nil || !ev.IsMessage() {
		return nil
	}
	return &Message{Event: ev, Segments: Parse(ev.RawMessage)}
}

// PlainText returns the concatenated text content with all CQ codes dropped.
func (m *Message) PlainText() string {
	var out string
	for _, s := range m.Segments {
		if s.IsText() {
			out += s.Text
		}
	}
	return out
}

// IsGroup reports whether the message came from a group.
func (m *Message) IsGroup() bool {
	return m.Event.MessageType == "group"
}

// IsPrivate reports whether the message came from a private chat.
func (m *Message) IsPrivate() bool {
	return m.Event.MessageType == "private"
}

// SenderID is the author's user ID.
func (m *Message) SenderID() int64 {
	return m.Event.UserID
}

// IsAtUser reports whether the message mentions the given user.
func (m *Message) IsAtUser(userID int64) bool {
	want := strconv.FormatInt(userID, 10)
	for _, s := range m.Segments {
		if s.Kind == KindAt {
			if qq, ok := s.Param("qq"); ok && qq == want {
				return true
			}
		}
	}
	return false
}

// IsAtAll reports whether the message mentions everyone.
func (m *Message) IsAtAll() bool {
	for _, s := range m.Segments {
		if s.Kind == KindAt {
			if qq, ok := s.Param("qq"); ok && qq == "all" {
				return true
			}
		}
	}
	return false
}
