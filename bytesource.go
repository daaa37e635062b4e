package pickle

import (
	"bufio"
	"bytes"
	"io"
)

// byteSource is the primitive the unframer and VM read through: exact-count
// reads and newline-terminated reads over an in-memory or file-backed
// stream. It mirrors the teacher's bufio.Reader usage in ogorek.go, pulled
// out as its own seam so the unframer can sit in front of it.
type byteSource interface {
	// read returns exactly n bytes or fails with an Eof *Error.
	read(n int) ([]byte, error)
	// readline returns bytes up to and including the first 0x0A, or
	// whatever remains if EOF arrives first. It never fails; an empty
	// slice signals EOF.
	readline() []byte
}

// readerSource adapts any io.Reader (a file handle, a bytes.Reader, …) to
// byteSource using a buffered reader, the same wrapping ogorek.Decoder does
// around its io.Reader argument.
type readerSource struct {
	r *bufio.Reader
}

// newReaderSource wraps r as a byteSource.
func newReaderSource(r io.Reader) *readerSource {
	return &readerSource{r: bufio.NewReader(r)}
}

func (s *readerSource) read(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, errKind(EOF, err.Error())
	}
	return buf, nil
}

func (s *readerSource) readline() []byte {
	line, _ := s.r.ReadBytes('\n')
	return line
}

// bytesSource is a byteSource directly over an in-memory buffer, avoiding
// the bufio indirection when the whole stream is already resident (the
// common case for a checkpoint's /data.pkl entry read out of a zip.Reader).
type bytesSource struct {
	buf *bytes.Reader
}

// newBytesSource wraps b as a byteSource.
func newBytesSource(b []byte) *bytesSource {
	return &bytesSource{buf: bytes.NewReader(b)}
}

func (s *bytesSource) read(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.buf, buf); err != nil {
		return nil, errKind(EOF, err.Error())
	}
	return buf, nil
}

func (s *bytesSource) readline() []byte {
	var line []byte
	for {
		b, err := s.buf.ReadByte()
		if err != nil {
			return line
		}
		line = append(line, b)
		if b == '\n' {
			return line
		}
	}
}
