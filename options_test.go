package activedirectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMembershipScope(t *testing.T) {
	for _, in := range []string{"all", "ALL", " user ", "Group"} {
		scope, err := ParseMembershipScope(in)
		require.NoError(t, err, in)
		assert.Contains(t, MembershipScopes, scope)
	}

	_, err := ParseMembershipScope("users")
	require.ErrorIs(t, err, ErrInvalidOptions)

	_, err = ParseMembershipScope("")
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestQueryOptions_Includes(t *testing.T) {
	var nilOpts *QueryOptions
	assert.False(t, nilOpts.includes(MembershipUser))

	all := &QueryOptions{IncludeMembership: []MembershipScope{MembershipAll}}
	assert.True(t, all.includes(MembershipUser))
	assert.True(t, all.includes(MembershipGroup))

	user := &QueryOptions{IncludeMembership: []MembershipScope{MembershipUser}}
	assert.True(t, user.includes(MembershipUser))
	assert.False(t, user.includes(MembershipGroup))

	both := &QueryOptions{IncludeMembership: []MembershipScope{MembershipUser, MembershipGroup}}
	assert.True(t, both.includes(MembershipGroup))
}

func TestQueryOptions_Validate(t *testing.T) {
	var nilOpts *QueryOptions
	require.NoError(t, nilOpts.validate())

	require.NoError(t, (&QueryOptions{Filter: " (cn=x)", IncludeMembership: []MembershipScope{"ALL"}}).validate())
	require.ErrorIs(t, (&QueryOptions{Filter: "cn=x"}).validate(), ErrInvalidOptions)
	require.ErrorIs(t, (&QueryOptions{IncludeMembership: []MembershipScope{"nested"}}).validate(), ErrInvalidOptions)
}

func TestQueryOptions_Accessors(t *testing.T) {
	var nilOpts *QueryOptions
	assert.Empty(t, nilOpts.filter())
	assert.Empty(t, nilOpts.baseDN())
	assert.Equal(t, []string{"cn"}, nilOpts.attributes([]string{"cn"}))

	opts := &QueryOptions{Filter: " (cn=x) ", BaseDN: "OU=Groups,DC=example,DC=com"}
	assert.Equal(t, "(cn=x)", opts.filter())
	assert.Equal(t, "OU=Groups,DC=example,DC=com", opts.baseDN())
	assert.Equal(t, []string{"cn"}, opts.attributes([]string{"cn"}))

	opts.Attributes = []string{"mail"}
	assert.Equal(t, []string{"mail"}, opts.attributes([]string{"cn"}))
}
