package core

// streaming.go provides input readers applied before CSV parsing:
//
//   - BOMSkippingReader: removes the UTF-8 BOM (0xEF 0xBB 0xBF) written by
//     Windows programs, so the first header name is not polluted
//   - StreamingUTF8Sanitizer: replaces invalid UTF-8 bytes with '?'
//
// Use WrapInput to apply both in the correct order.

import (
	"io"
	"unicode/utf8"
)

// StreamingUTF8Sanitizer wraps an io.Reader and replaces invalid UTF-8
// bytes with '?' on the fly. Multi-byte sequences split across reads are
// carried over to the next call.
type StreamingUTF8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

// NewStreamingUTF8Sanitizer creates a new streaming UTF-8 sanitizer.
func NewStreamingUTF8Sanitizer(r io.Reader) *StreamingUTF8Sanitizer {
	return &StreamingUTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *StreamingUTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = append(s.pending[:0], s.pending[offset:]...)
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if isAllASCII(p[:n]) {
		return n, err
	}

	written := s.sanitize(p[:n], err == io.EOF)
	if written == 0 && err == nil {
		// Everything was held back as pending; ask for more.
		return s.Read(p)
	}
	return written, err
}

func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to emit.
// Unless atEOF, an incomplete trailing sequence is saved to pending.
func (s *StreamingUTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if !atEOF && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	head    []byte
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		buf := make([]byte, len(utf8BOM))
		n, err := io.ReadFull(r.reader, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if n == len(utf8BOM) && buf[0] == utf8BOM[0] && buf[1] == utf8BOM[1] && buf[2] == utf8BOM[2] {
			n = 0
		}
		r.head = buf[:n]
	}

	if len(r.head) > 0 {
		copied := copy(p, r.head)
		r.head = r.head[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// WrapInput strips a leading BOM and sanitizes invalid UTF-8.
// The BOM must be stripped before sanitization sees the bytes.
func WrapInput(r io.Reader) io.Reader {
	return NewStreamingUTF8Sanitizer(NewBOMSkippingReader(r))
}
