package testutil

// ByteStream turns fuzz input into a deterministic sequence of choices.
//
// When the stream is exhausted every read returns the zero choice, so the
// same input always yields the same operations and generation terminates.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over the given bytes.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, n). Returns 0 when n <= 0.
func (s *ByteStream) NextInt(n int) int {
	if n <= 0 {
		return 0
	}

	return int(s.NextByte()) % n
}

// NextBool returns a boolean derived from the next byte.
func (s *ByteStream) NextBool() bool {
	return s.NextByte()&1 == 1
}

// Chance returns true roughly once every n calls.
func (s *ByteStream) Chance(n int) bool {
	return n > 0 && s.NextInt(n) == 0
}

// textAlphabet mixes ASCII, whitespace, quotes and multi-byte runes so
// stored text round-trips through SQL and JSON unchanged.
var textAlphabet = []rune("abcxyz ABC019\t\n'\"%_\\é漢🙂")

// NextText returns a string of 0..maxLen runes from textAlphabet.
func (s *ByteStream) NextText(maxLen int) string {
	n := s.NextInt(maxLen + 1)

	out := make([]rune, n)
	for i := range out {
		out[i] = textAlphabet[s.NextInt(len(textAlphabet))]
	}

	return string(out)
}

// Pick returns one element of items, or the zero value when items is empty.
func Pick[T any](s *ByteStream, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}

	return items[s.NextInt(len(items))]
}
