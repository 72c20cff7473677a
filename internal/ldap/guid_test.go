package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGUID = "550e8400-e29b-41d4-a716-446655440000"

// testGUIDBytes is testGUID as Active Directory stores it.
var testGUIDBytes = []byte{
	0x00, 0x84, 0x0e, 0x55, 0x9b, 0xe2, 0xd4, 0x41,
	0xa7, 0x16, 0x44, 0x66, 0x55, 0x44, 0x00, 0x00,
}

func TestIsGUID(t *testing.T) {
	assert.True(t, IsGUID(testGUID))
	assert.True(t, IsGUID("550E8400-E29B-41D4-A716-446655440000"))
	assert.True(t, IsGUID("{550e8400-e29b-41d4-a716-446655440000}"))
	assert.True(t, IsGUID("550e8400e29b41d4a716446655440000"))
	assert.False(t, IsGUID("jdoe"))
	assert.False(t, IsGUID(""))
	assert.False(t, IsGUID("550e8400-e29b-41d4-a716-44665544000g"))
}

func TestNormalizeGUID(t *testing.T) {
	got, err := NormalizeGUID("550E8400E29B41D4A716446655440000")
	require.NoError(t, err)
	assert.Equal(t, testGUID, got)

	_, err = NormalizeGUID("not-a-guid")
	assert.Error(t, err)
}

func TestGUIDBytes(t *testing.T) {
	b, err := GUIDToBytes(testGUID)
	require.NoError(t, err)
	assert.Equal(t, testGUIDBytes, b)

	s, err := GUIDBytesToString(testGUIDBytes)
	require.NoError(t, err)
	assert.Equal(t, testGUID, s)

	_, err = GUIDBytesToString([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestGUIDToSearchFilter(t *testing.T) {
	filter, err := GUIDToSearchFilter(testGUID)
	require.NoError(t, err)
	assert.Equal(t, `(objectGUID=\00\84\0e\55\9b\e2\d4\41\a7\16\44\66\55\44\00\00)`, filter)

	_, err = GUIDToSearchFilter("bogus")
	assert.Error(t, err)
}
