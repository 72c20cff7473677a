package ldap

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// searchFunc adapts a function to the Client interface for tests that only
// exercise Search.
type searchFunc func(ctx context.Context, req *SearchRequest) (*SearchResult, error)

func (f searchFunc) Connect(context.Context) error                          { return nil }
func (f searchFunc) Close() error                                           { return nil }
func (f searchFunc) BindWithConfig(context.Context) error                   { return nil }
func (f searchFunc) VerifyCredentials(context.Context, string, string) error { return nil }
func (f searchFunc) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	return f(ctx, req)
}
func (f searchFunc) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	return f(ctx, req)
}
func (f searchFunc) GetBaseDN(context.Context) (string, error)                  { return "", nil }
func (f searchFunc) GetRootDSE(context.Context, []string) (*ldap.Entry, error) { return nil, nil }
func (f searchFunc) WhoAmI(context.Context) (*WhoAmIResult, error)              { return nil, nil }
func (f searchFunc) Ping(context.Context) error                                 { return nil }
func (f searchFunc) Stats() PoolStats                                           { return PoolStats{} }

func members(from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("CN=user%d,OU=Users,DC=example,DC=com", i))
	}
	return out
}

func TestParseRange(t *testing.T) {
	base, low, high, ok := parseRange("member;range=0-1499")
	assert.True(t, ok)
	assert.Equal(t, "member", base)
	assert.Equal(t, 0, low)
	assert.Equal(t, 1499, high)

	_, low, high, ok = parseRange("member;range=1500-*")
	assert.True(t, ok)
	assert.Equal(t, 1500, low)
	assert.Equal(t, -1, high)

	_, _, _, ok = parseRange("member")
	assert.False(t, ok)

	_, _, _, ok = parseRange("member;range=x-1")
	assert.False(t, ok)
}

func TestExpandRangedAttributes(t *testing.T) {
	const groupDN = "CN=Everyone Big,OU=Groups,DC=example,DC=com"

	var requested []string
	client := searchFunc(func(_ context.Context, req *SearchRequest) (*SearchResult, error) {
		require.Equal(t, groupDN, req.BaseDN)
		require.Equal(t, ScopeBaseObject, req.Scope)
		requested = append(requested, req.Attributes...)

		switch req.Attributes[0] {
		case "member;range=3-*":
			return &SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry(groupDN, map[string][]string{"member;range=3-5": members(3, 5)}),
			}}, nil
		case "member;range=6-*":
			return &SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry(groupDN, map[string][]string{"member;range=6-*": members(6, 7)}),
			}}, nil
		}
		return nil, fmt.Errorf("unexpected attributes %v", req.Attributes)
	})

	entry := ldap.NewEntry(groupDN, map[string][]string{
		"cn":                {"Everyone Big"},
		"member;range=0-2": members(0, 2),
	})

	require.NoError(t, ExpandRangedAttributes(t.Context(), client, entry))

	assert.Equal(t, []string{"member;range=3-*", "member;range=6-*"}, requested)
	assert.Equal(t, members(0, 7), entry.GetAttributeValues("member"))
	assert.Equal(t, []string{"Everyone Big"}, entry.GetAttributeValues("cn"))
	assert.Empty(t, entry.GetAttributeValues("member;range=0-2"))
}

func TestExpandRangedAttributes_FinalRangeInline(t *testing.T) {
	client := searchFunc(func(context.Context, *SearchRequest) (*SearchResult, error) {
		return nil, errors.New("no follow-up expected")
	})

	entry := ldap.NewEntry("CN=g,DC=example,DC=com", map[string][]string{"member;range=0-*": members(0, 1)})
	require.NoError(t, ExpandRangedAttributes(t.Context(), client, entry))
	assert.Equal(t, members(0, 1), entry.GetAttributeValues("member"))
}

func TestExpandRangedAttributes_SearchError(t *testing.T) {
	client := searchFunc(func(context.Context, *SearchRequest) (*SearchResult, error) {
		return nil, ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))
	})

	entry := ldap.NewEntry("CN=g,DC=example,DC=com", map[string][]string{"member;range=0-1": members(0, 1)})
	err := ExpandRangedAttributes(t.Context(), client, entry)
	assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultBusy))
}
