// Package version provides firmware and protocol version parsing and comparison.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultFirmware is the firmware version reported by the emulated EVSE.
const DefaultFirmware = "8.2.1"

// DefaultProtocol is the RAPI protocol version reported by the emulated EVSE.
const DefaultProtocol = "5.0.1"

// Version represents a parsed "major.minor.patch" version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse parses a "major.minor.patch" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	var components [3]uint16
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil || part == "" {
			return Version{}, fmt.Errorf("invalid version %q: bad component %d", s, i)
		}
		components[i] = uint16(n)
	}

	return Version{Major: components[0], Minor: components[1], Patch: components[2]}, nil
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 depending on whether v is older than, equal to
// or newer than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return compareUint16(v.Major, other.Major)
	case v.Minor != other.Minor:
		return compareUint16(v.Minor, other.Minor)
	default:
		return compareUint16(v.Patch, other.Patch)
	}
}

// AtLeast returns true if v is the same as or newer than other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

func compareUint16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
