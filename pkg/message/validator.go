package message

import (
	"fmt"
	"strings"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

// requiredParams lists the parameters a segment kind must carry to be sent.
var requiredParams = map[Kind][]string{
	KindAt:     {"qq"},
	KindImage:  {"file"},
	KindRecord: {"file"},
	KindVideo:  {"file"},
	KindFace:   {"id"},
	KindReply:  {"id"},
	KindShare:  {"url", "title"},
}

// Validator checks outgoing messages before they are handed to the caller.
type Validator struct {
	// MaxTextLength bounds the total plain-text length; zero disables the
	// check.
	MaxTextLength int
	// ForbiddenWords rejects messages containing any of these substrings,
	// case-insensitively.
	ForbiddenWords []string
}

// Validate checks the segment sequence and returns the first violation.
func (v *Validator) Validate(segments []Segment) error {
	textLen := 0
	for i, s := range segments {
		if s.IsText() {
			textLen += len([]rune(s.Text))
			continue
		}
		for _, p := range requiredParams[s.Kind] {
			if _, ok := s.Param(p); !ok {
				return errors.ErrMessageParse(fmt.Sprintf("segment %d (%s) missing required parameter %q", i, s.Kind, p))
			}
		}
	}

	if v.MaxTextLength > 0 && textLen > v.MaxTextLength {
		return errors.ErrMessageParse(fmt.Sprintf("message text length %d exceeds limit %d", textLen, v.MaxTextLength))
	}

	if len(v.ForbiddenWords) > 0 {
		plain := strings.ToLower(plainText(segments))
		for _, w := range v.ForbiddenWords {
			if w != "" && strings.Contains(plain, strings.ToLower(w)) {
				return errors.ErrMessageParse(fmt.Sprintf("message contains forbidden word %q", w))
			}
		}
	}
	return nil
}

func plainText(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.IsText() {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
