package ldap

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/go-objectsid"
)

var sidStringPattern = regexp.MustCompile(`^S-1-\d+(-\d+)+$`)

// IsSID reports whether s is a string SID such as S-1-5-21-...-1104.
func IsSID(s string) bool {
	return sidStringPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// SIDBytesToString converts a binary objectSid to S-R-I-S... form.
func SIDBytesToString(b []byte) (string, error) {
	// revision, sub-authority count and a 6-byte authority at minimum
	if len(b) < 8 {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(b))
	}
	if len(b) != 8+4*int(b[1]) {
		return "", fmt.Errorf("binary SID length %d does not match %d sub-authorities", len(b), b[1])
	}
	return objectsid.Decode(b).String(), nil
}

// SIDToBytes encodes a string SID in the binary objectSid layout.
func SIDToBytes(s string) ([]byte, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !sidStringPattern.MatchString(s) {
		return nil, fmt.Errorf("invalid SID format: %s", s)
	}

	parts := strings.Split(s, "-")[1:]
	revision, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid SID revision: %w", err)
	}
	authority, err := strconv.ParseUint(parts[1], 10, 48)
	if err != nil {
		return nil, fmt.Errorf("invalid SID authority: %w", err)
	}
	subs := parts[2:]

	b := make([]byte, 8+4*len(subs))
	b[0] = byte(revision)
	b[1] = byte(len(subs))
	for i := range 6 {
		b[7-i] = byte(authority >> (8 * i))
	}
	for i, sub := range subs {
		v, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid SID sub-authority %q: %w", sub, err)
		}
		binary.LittleEndian.PutUint32(b[8+4*i:], uint32(v))
	}

	return b, nil
}

// SIDToSearchFilter returns an objectSid equality filter for s.
func SIDToSearchFilter(s string) (string, error) {
	b, err := SIDToBytes(s)
	if err != nil {
		return "", err
	}
	return "(objectSid=" + escapeBytes(b) + ")", nil
}
