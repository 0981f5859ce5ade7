// Package version provides stream protocol version parsing and
// compatibility checks.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the stream protocol version implemented by this module.
const Current = "1.0"

// Version represents a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string. A bare major ("1") is
// accepted as "major.0" for TXT records advertised by older engines.
func Parse(s string) (Version, error) {
	major, minor, found := strings.Cut(s, ".")
	if !found {
		minor = "0"
	}

	maj, err := strconv.ParseUint(major, 10, 16)
	if err != nil || major == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	min, err := strconv.ParseUint(minor, 10, 16)
	if err != nil || minor == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(maj), Minor: uint16(min)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major
// version. Minor versions only add frame fields, which decoders
// ignore.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}
