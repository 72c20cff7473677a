package activedirectory

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileTime(t *testing.T) {
	ts, ok := ParseFileTime("133497504000000000")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), ts)

	for _, v := range []string{"0", "", "never", "9223372036854775807", "116444736000000000"} {
		_, ok := ParseFileTime(v)
		assert.False(t, ok, v)
	}
}

func TestParseGeneralizedTime(t *testing.T) {
	ts, ok := ParseGeneralizedTime("20240101120000.0Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), ts)

	_, ok = ParseGeneralizedTime("2024-01-01")
	assert.False(t, ok)
}

func TestUser_AccountFlags(t *testing.T) {
	tests := []struct {
		name            string
		uac             string
		wantDisabled    bool
		wantNeverExpire bool
	}{
		{name: "normal", uac: "512"},
		{name: "disabled", uac: "514", wantDisabled: true},
		{name: "never expires", uac: strconv.FormatInt(UACNormalAccount|UACPasswordNeverExpires, 10), wantNeverExpire: true},
		{name: "not projected", uac: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := Attributes{}
			if tt.uac != "" {
				attrs["userAccountControl"] = []string{tt.uac}
			}
			user := &User{Object: Object{Attributes: attrs}}

			assert.Equal(t, tt.wantDisabled, user.Disabled())
			assert.Equal(t, tt.wantNeverExpire, user.PasswordNeverExpires())
		})
	}
}

func TestUser_Times(t *testing.T) {
	user := &User{Object: Object{Attributes: Attributes{
		"pwdLastSet":  {"133497504000000000"},
		"lockoutTime": {"0"},
		"whenCreated": {"20240101120000.0Z"},
	}}}

	set, ok := user.PasswordLastSet()
	require.True(t, ok)
	assert.Equal(t, 2024, set.Year())

	created, ok := user.Created()
	require.True(t, ok)
	assert.Equal(t, time.January, created.Month())

	assert.False(t, user.LockedOut())
	user.Attributes["lockoutTime"] = []string{"133497504000000000"}
	assert.True(t, user.LockedOut())
}

func TestGroup_Scope(t *testing.T) {
	tests := []struct {
		groupType    string
		wantScope    string
		wantSecurity bool
	}{
		{groupType: "-2147483646", wantScope: "Global", wantSecurity: true},
		{groupType: "-2147483644", wantScope: "DomainLocal", wantSecurity: true},
		{groupType: "-2147483640", wantScope: "Universal", wantSecurity: true},
		{groupType: "2", wantScope: "Global"},
		{groupType: "8", wantScope: "Universal"},
		{groupType: "", wantScope: ""},
	}

	for _, tt := range tests {
		t.Run(tt.groupType, func(t *testing.T) {
			group := &Group{Object: Object{Attributes: Attributes{"groupType": {tt.groupType}}}}
			assert.Equal(t, tt.wantScope, group.Scope())
			assert.Equal(t, tt.wantSecurity, group.Security())
		})
	}
}
