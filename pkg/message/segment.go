// Package message implements the CQ-code markup codec: parsing raw message
// text into typed segments, serializing segments back to text, and helpers
// for building and templating outgoing messages.
package message

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies a segment type.
type Kind string

// Known segment kinds. Anything else round-trips as a custom kind.
const (
	KindText     Kind = "text"
	KindAt       Kind = "at"
	KindImage    Kind = "image"
	KindRecord   Kind = "record"
	KindVideo    Kind = "video"
	KindFace     Kind = "face"
	KindMusic    Kind = "music"
	KindReply    Kind = "reply"
	KindForward  Kind = "forward"
	KindLocation Kind = "location"
	KindShare    Kind = "share"
	KindContact  Kind = "contact"
	KindRedBag   Kind = "redbag"
	KindPoke     Kind = "poke"
	KindGift     Kind = "gift"
)

// Segment is one typed unit of a message: plain text, or a CQ code with
// parameters.
type Segment struct {
	Kind   Kind
	Params map[string]string
	// Text is the literal content for KindText segments.
	Text string
}

// NewText creates a plain-text segment.
func NewText(content string) Segment {
	return Segment{Kind: KindText, Text: content}
}

// NewAt creates a mention segment for the given user.
func NewAt(userID int64) Segment {
	return Segment{Kind: KindAt, Params: map[string]string{"qq": strconv.FormatInt(userID, 10)}}
}

// NewAtAll creates a mention-everyone segment.
func NewAtAll() Segment {
	return Segment{Kind: KindAt, Params: map[string]string{"qq": "all"}}
}

// NewImage creates an image segment referencing a file or URL.
func NewImage(file string) Segment {
	return Segment{Kind: KindImage, Params: map[string]string{"file": file}}
}

// NewRecord creates a voice segment referencing a file or URL.
func NewRecord(file string) Segment {
	return Segment{Kind: KindRecord, Params: map[string]string{"file": file}}
}

// NewFace creates a sticker/emote segment.
func NewFace(id int) Segment {
	return Segment{Kind: KindFace, Params: map[string]string{"id": strconv.Itoa(id)}}
}

// NewReply creates a reply segment referencing a message.
func NewReply(messageID int64) Segment {
	return Segment{Kind: KindReply, Params: map[string]string{"id": strconv.FormatInt(messageID, 10)}}
}

// NewCustom creates a segment of an arbitrary kind with the given params.
func NewCustom(kind string, params map[string]string) Segment {
	return Segment{Kind: Kind(kind), Params: params}
}

// Param returns the named parameter and whether it is present.
func (s Segment) Param(key string) (string, bool) {
	v, ok := s.Params[key]
	return v, ok
}

// IsText reports whether this is a plain-text segment.
func (s Segment) IsText() bool {
	return s.Kind == KindText
}

// String serializes the segment to CQ-code text. Plain text is emitted
// verbatim; parameter values are escaped. Parameters are sorted by key so
// serialization is deterministic.
func (s Segment) String() string {
	if s.Kind == KindText {
		return s.Text
	}
	if len(s.Params) == 0 {
		return "[CQ:" + string(s.Kind) + "]"
	}

	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[CQ:")
	b.WriteString(string(s.Kind))
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escapeParam(s.Params[k]))
	}
	b.WriteByte(']')
	return b.String()
}

// Equal reports segment equivalence, used by round-trip checks.
func (s Segment) Equal(other Segment) bool {
	if s.Kind != other.Kind || s.Text != other.Text {
		return false
	}
	if len(s.Params) != len(other.Params) {
		return false
	}
	for k, v := range s.Params {
		if other.Params[k] != v {
			return false
		}
	}
	return true
}

// escapeParam escapes CQ-code metacharacters in a parameter value.
// Ampersand must go first so already-escaped sequences are not mangled.
func escapeParam(v string) string {
	v = strings.ReplaceAll(v, "&", "&amp;")
	v = strings.ReplaceAll(v, "[", "&#91;")
	v = strings.ReplaceAll(v, "]", "&#93;")
	v = strings.ReplaceAll(v, ",", "&#44;")
	return v
}

// unescapeParam is the exact inverse of escapeParam: ampersand last.
func unescapeParam(v string) string {
	v = strings.ReplaceAll(v, "&#44;", ",")
	v = strings.ReplaceAll(v, "&#93;", "]")
	v = strings.ReplaceAll(v, "&#91;", "[")
	v = strings.ReplaceAll(v, "&amp;", "&")
	return v
}
