// Package rapi implements the ASCII remote-control protocol of the emulated
// charging station: line parsing, the XOR checksum, the command dispatch
// table and the asynchronous notification formats.
package rapi

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol literals.
const (
	// ResponseOK opens every successful response.
	ResponseOK = "$OK"
	// ResponseError is the rejection response.
	ResponseError = "$NK"
	// LineEnding terminates every line on the wire.
	LineEnding = "\r"

	// MaxLineLen bounds an inbound line including the terminator.
	MaxLineLen = 256

	checksumSep = '^'
)

var (
	// ErrEmptyLine is returned for a line with no content.
	ErrEmptyLine = errors.New("empty line")
	// ErrMissingPrefix is returned for a line not starting with '$'.
	ErrMissingPrefix = errors.New("line does not start with '$'")
	// ErrBadChecksum is returned when a trailing checksum does not match.
	ErrBadChecksum = errors.New("checksum mismatch")
)

// Checksum returns the XOR of every byte of s.
func Checksum(s string) byte {
	var sum byte
	for i := 0; i < len(s); i++ {
		sum ^= s[i]
	}
	return sum
}

// AppendChecksum appends the "^HH" checksum suffix to a message.
func AppendChecksum(s string) string {
	return fmt.Sprintf("%s^%02X", s, Checksum(s))
}

// StripChecksum verifies and removes a trailing "^HH" checksum. A line
// without one is valid as-is. A malformed or mismatching checksum yields
// ErrBadChecksum.
func StripChecksum(line string) (string, error) {
	idx := strings.LastIndexByte(line, checksumSep)
	if idx < 0 {
		return line, nil
	}

	payload, sum := line[:idx], line[idx+1:]
	if len(sum) != 2 {
		return "", ErrBadChecksum
	}
	var want byte
	if _, err := fmt.Sscanf(sum, "%02X", &want); err != nil {
		// Lowercase hex is tolerated.
		if _, err := fmt.Sscanf(sum, "%02x", &want); err != nil {
			return "", ErrBadChecksum
		}
	}
	if Checksum(payload) != want {
		return "", ErrBadChecksum
	}
	return payload, nil
}

// Command is a parsed inbound line.
type Command struct {
	// Code is the two-character command code, upper-cased.
	Code string
	// Params are the space-separated parameter tokens.
	Params []string
}

// ParseLine parses one inbound line. The caller strips the terminator;
// stray whitespace is tolerated. The checksum, if present, is verified and
// removed before tokenizing.
func ParseLine(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyLine
	}

	payload, err := StripChecksum(line)
	if err != nil {
		return Command{}, err
	}

	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return Command{}, ErrEmptyLine
	}
	head := fields[0]
	if head[0] != '$' {
		return Command{}, ErrMissingPrefix
	}
	code := strings.ToUpper(head[1:])
	if len(code) != 2 {
		return Command{}, fmt.Errorf("invalid command code %q", head)
	}

	return Command{Code: code, Params: fields[1:]}, nil
}
