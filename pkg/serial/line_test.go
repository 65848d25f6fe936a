package serial

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestLineReaderBasic(t *testing.T) {
	lr := NewLineReader(strings.NewReader("$GS\r$GC\r"))

	line, err := lr.ReadLine()
	if err != nil || line != "$GS" {
		t.Fatalf("first line = (%q, %v), want ($GS, nil)", line, err)
	}
	line, err = lr.ReadLine()
	if err != nil || line != "$GC" {
		t.Fatalf("second line = (%q, %v), want ($GC, nil)", line, err)
	}
	if _, err := lr.ReadLine(); err != io.EOF {
		t.Fatalf("err = %v at end of stream, want io.EOF", err)
	}
}

func TestLineReaderCRLFAndBlankLines(t *testing.T) {
	lr := NewLineReader(strings.NewReader("\r\n$GS\r\n\r\r$GV\n"))

	line, _ := lr.ReadLine()
	if line != "$GS" {
		t.Errorf("line = %q, want $GS", line)
	}
	line, _ = lr.ReadLine()
	if line != "$GV" {
		t.Errorf("line = %q, want $GV", line)
	}
}

func TestLineReaderPartialReads(t *testing.T) {
	// One byte per read: the line must be reassembled across reads.
	lr := NewLineReader(iotest.OneByteReader(strings.NewReader("$SC 20 V\r")))

	line, err := lr.ReadLine()
	if err != nil || line != "$SC 20 V" {
		t.Fatalf("line = (%q, %v), want ($SC 20 V, nil)", line, err)
	}
}

func TestLineReaderTooLong(t *testing.T) {
	long := strings.Repeat("A", 600) + "\r$GS\r"
	lr := NewLineReader(strings.NewReader(long))

	if _, err := lr.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("err = %v for oversized line, want ErrLineTooLong", err)
	}

	// The stream stays usable after the oversized line is discarded.
	line, err := lr.ReadLine()
	if err != nil || line != "$GS" {
		t.Fatalf("line after discard = (%q, %v), want ($GS, nil)", line, err)
	}
}
