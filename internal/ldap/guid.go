package ldap

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GUIDBytesLength is the size of an objectGUID value.
const GUIDBytesLength = 16

// IsGUID reports whether s parses as a GUID in hyphenated, compact,
// braced or urn:uuid form.
func IsGUID(s string) bool {
	_, err := uuid.Parse(strings.TrimSpace(s))
	return err == nil
}

// NormalizeGUID returns s in lowercase hyphenated form.
func NormalizeGUID(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid GUID format: %s", s)
	}
	return id.String(), nil
}

// swapGUIDEndianness converts between RFC 4122 byte order and the
// mixed-endian layout Active Directory stores: the first three fields are
// little-endian, the trailing eight bytes are unchanged. The conversion is
// its own inverse.
func swapGUIDEndianness(b []byte) []byte {
	out := make([]byte, GUIDBytesLength)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:])
	return out
}

// GUIDToBytes converts a GUID string to objectGUID bytes.
func GUIDToBytes(s string) ([]byte, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid GUID format: %s", s)
	}
	return swapGUIDEndianness(id[:]), nil
}

// GUIDBytesToString converts objectGUID bytes to a hyphenated string.
func GUIDBytesToString(b []byte) (string, error) {
	if len(b) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(b))
	}
	id, err := uuid.FromBytes(swapGUIDEndianness(b))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// GUIDToSearchFilter returns an objectGUID equality filter with every byte
// hex-escaped.
func GUIDToSearchFilter(s string) (string, error) {
	b, err := GUIDToBytes(s)
	if err != nil {
		return "", err
	}
	return "(objectGUID=" + escapeBytes(b) + ")", nil
}

func escapeBytes(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for _, c := range b {
		fmt.Fprintf(&sb, `\%02x`, c)
	}
	return sb.String()
}
