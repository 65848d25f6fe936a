package serial

import (
	"bufio"
	"io"

	"github.com/evsim-project/evsim-go/pkg/rapi"
)

// LineReader assembles CR- or LF-terminated lines from a byte stream. It
// tolerates partial reads: a line split across arbitrarily many reads is
// reassembled before being returned.
type LineReader struct {
	r       *bufio.Reader
	maxLine int
}

// NewLineReader creates a LineReader with the protocol's frame limit.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:       bufio.NewReader(r),
		maxLine: rapi.MaxLineLen,
	}
}

// ReadLine returns the next non-empty line without its terminator. A line
// longer than the frame limit is discarded up to the next terminator and
// reported as ErrLineTooLong.
func (lr *LineReader) ReadLine() (string, error) {
	var buf []byte
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\r' || b == '\n' {
			if len(buf) == 0 {
				// Blank line or the LF half of CRLF.
				continue
			}
			return string(buf), nil
		}
		buf = append(buf, b)
		if len(buf) >= lr.maxLine {
			if err := lr.discardToTerminator(); err != nil {
				return "", err
			}
			return "", ErrLineTooLong
		}
	}
}

func (lr *LineReader) discardToTerminator() error {
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			return err
		}
		if b == '\r' || b == '\n' {
			return nil
		}
	}
}
