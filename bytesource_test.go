package pickle

import (
	"bytes"
	"testing"
)

func TestBytesSourceRead(t *testing.T) {
	s := newBytesSource([]byte{1, 2, 3, 4})
	got, err := s.read(2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("read(2) = %v, want [1 2]", got)
	}
	got, err = s.read(2)
	if err != nil || !bytes.Equal(got, []byte{3, 4}) {
		t.Fatalf("read(2) = %v, %v, want [3 4], nil", got, err)
	}
}

func TestBytesSourceReadPastEndIsEOF(t *testing.T) {
	s := newBytesSource([]byte{1})
	if _, err := s.read(4); err == nil {
		t.Fatalf("read past end of buffer should fail")
	} else if e, ok := err.(*Error); !ok || e.Kind != EOF {
		t.Fatalf("expected EOF *Error, got %#v", err)
	}
}

func TestBytesSourceReadline(t *testing.T) {
	s := newBytesSource([]byte("abc\ndef"))
	line := s.readline()
	if string(line) != "abc\n" {
		t.Fatalf("readline() = %q, want \"abc\\n\"", line)
	}
	line = s.readline()
	if string(line) != "def" {
		t.Fatalf("readline() at EOF without trailing newline = %q, want \"def\"", line)
	}
}

func TestReaderSourceMatchesBytesSource(t *testing.T) {
	rs := newReaderSource(bytes.NewReader([]byte("hello\nworld")))
	line := rs.readline()
	if string(line) != "hello\n" {
		t.Fatalf("readline() = %q, want \"hello\\n\"", line)
	}
	rest, err := rs.read(5)
	if err != nil || string(rest) != "world" {
		t.Fatalf("read(5) = %q, %v, want \"world\", nil", rest, err)
	}
}
