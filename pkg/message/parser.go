package message

import (
	"regexp"
	"strings"
)

// cqPattern matches one CQ code. Group 1 is the kind, group 2 the raw
// comma-separated parameter list (possibly absent).
var cqPattern = regexp.MustCompile(`\[CQ:([^,\]]+)(?:,([^\]]*))?\]`)

// Parse decodes raw message text into its ordered segment sequence. Text
// between CQ codes becomes text segments; malformed bracket content that
// does not match the CQ grammar stays plain text. Empty input yields an
// empty sequence.
func Parse(raw string) []Segment {
	if raw == "" {
		return nil
	}

	var segments []Segment
	last := 0
	for _, m := range cqPattern.FindAllStringSubmatchIndex(raw, -1) {
		if m[0] > last {
			segments = append(segments, NewText(raw[last:m[0]]))
		}
		kind := raw[m[2]:m[3]]
		params := make(map[string]string)
		if m[4] >= 0 {
			parseParams(raw[m[4]:m[5]], params)
		}
		segments = append(segments, Segment{Kind: Kind(kind), Params: params})
		last = m[1]
	}
	if last < len(raw) {
		segments = append(segments, NewText(raw[last:]))
	}
	return segments
}

// parseParams splits "k1=v1,k2=v2" into the params map, unescaping values.
// Entries without '=' are ignored.
func parseParams(raw string, params map[string]string) {
	for _, pair := range strings.Split(raw, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			continue
		}
		key := pair[:idx]
		if key == "" {
			continue
		}
		params[key] = unescapeParam(pair[idx+1:])
	}
}

// Serialize renders a segment sequence back to raw message text.
func Serialize(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.String())
	}
	return b.String()
}

// ExtractPlainText concatenates the text segments of raw message text,
// dropping every CQ code.
func ExtractPlainText(raw string) string {
	var b strings.Builder
	for _, s := range Parse(raw) {
		if s.IsText() {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
