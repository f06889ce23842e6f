package message

// Builder assembles an outgoing message segment by segment. Methods return
// the builder for chaining; call order is emission order.
type Builder struct {
	segments []Segment
}

// NewBuilder creates an empty message builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Text appends a plain-text segment.
func (b *Builder) Text(content string) *Builder {
	b.segments = append(b.segments, NewText(content))
	return b
}

// At appends a mention of the given user.
func (b *Builder) At(userID int64) *Builder {
	b.segments = append(b.segments, NewAt(userID))
	return b
}

// AtAll appends a mention of everyone.
func (b *Builder) AtAll() *Builder {
	b.segments = append(b.segments, NewAtAll())
	return b
}

// Image appends an image segment.
func (b *Builder) Image(file string) *Builder {
	b.segments = append(b.segments, NewImage(file))
	return b
}

// Record appends a voice segment.
func (b *Builder) Record(file string) *Builder {
	b.segments = append(b.segments, NewRecord(file))
	return b
}

// Face appends a sticker segment.
func (b *Builder) Face(id int) *Builder {
	b.segments = append(b.segments, NewFace(id))
	return b
}

// Reply appends a reply reference to the given message.
func (b *Builder) Reply(messageID int64) *Builder {
	b.segments = append(b.segments, NewReply(messageID))
	return b
}

// Segment appends an arbitrary segment.
func (b *Builder) Segment(s Segment) *Builder {
	b.segments = append(b.segments, s)
	return b
}

// LineBreak appends a newline as text.
func (b *Builder) LineBreak() *Builder {
	return b.Text("\n")
}

// Space appends a single space as text.
func (b *Builder) Space() *Builder {
	return b.Text(" ")
}

// IsEmpty reports whether nothing has been appended yet.
func (b *Builder) IsEmpty() bool {
	return len(b.segments) == 0
}

// TextLength is the total character count of the text segments.
func (b *Builder) TextLength() int {
	n := 0
	for _, s := range b.segments {
		if s.IsText() {
			n += len([]rune(s.Text))
		}
	}
	return n
}

// Segments returns the accumulated segments.
func (b *Builder) Segments() []Segment {
	return b.segments
}

// Build serializes the accumulated segments to raw message text.
func (b *Builder) Build() string {
	return Serialize(b.segments)
}
