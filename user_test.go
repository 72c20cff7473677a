package activedirectory

import (
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

func TestFindUser(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldapclient.SearchRequest) bool {
		return req.BaseDN == testBaseDN &&
			req.Scope == ldapclient.ScopeWholeSubtree &&
			req.SizeLimit == 1 &&
			req.Filter == "(&(objectCategory=User)(|(sAMAccountName=jdoe)(userPrincipalName=jdoe)))"
	})).Return(searchResult(userEntry(jdoeDN, "jdoe")), nil).Once()

	user, err := ad.FindUser(t.Context(), nil, "jdoe")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, jdoeDN, user.DN)
	assert.Equal(t, []string{"cn", "displayName", "dn", "mail", "sAMAccountName", "userAccountControl", "userPrincipalName"}, user.Attributes.Keys())
	assert.Equal(t, "jdoe@example.com", user.Get("userPrincipalName"))
	assert.Equal(t, jdoeDN, user.Get("dn"))
	assert.Nil(t, user.Groups)
}

func TestFindUser_RequestsDefaultAttributes(t *testing.T) {
	ad, m := newTestAD(t)

	var requested []string
	m.On("Search", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			requested = args.Get(1).(*ldapclient.SearchRequest).Attributes
		}).
		Return(searchResult(), nil).Once()

	_, err := ad.FindUser(t.Context(), nil, "jdoe")
	require.NoError(t, err)

	assert.NotContains(t, requested, "dn")
	assert.Equal(t, DefaultUserAttributes()[1:], requested)
}

func TestFindUser_NotFound(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, mock.Anything).Return(searchResult(), nil).Once()

	user, err := ad.FindUser(t.Context(), nil, "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestFindUser_FirstMatchOnly(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, mock.Anything).
		Return(searchResult(userEntry(jdoeDN, "jdoe"), userEntry(janeDN, "jroe")), nil).Once()

	user, err := ad.FindUser(t.Context(), nil, "j*")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, jdoeDN, user.DN)
}

func TestFindUser_FilterOverride(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, withFilter("(employeeID=1042)")).
		Return(searchResult(userEntry(jdoeDN, "jdoe")), nil).Once()

	user, err := ad.FindUser(t.Context(), &QueryOptions{Filter: " (employeeID=1042) "}, "ignored")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, jdoeDN, user.DN)
}

func TestFindUser_Attributes(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldapclient.SearchRequest) bool {
		return assert.ObjectsAreEqual([]string{"mail", "employeeNumber"}, req.Attributes)
	})).Return(searchResult(userEntry(jdoeDN, "jdoe")), nil).Once()

	user, err := ad.FindUser(t.Context(), &QueryOptions{
		Attributes: []string{"dn", "mail", "employeeNumber", "MAIL"},
	}, "jdoe")
	require.NoError(t, err)
	require.NotNil(t, user)

	// employeeNumber is not on the entry and is omitted.
	assert.Equal(t, Attributes{
		"dn":   {jdoeDN},
		"mail": {"jdoe@example.com"},
	}, user.Attributes)
}

func TestFindUser_OnlyDN(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldapclient.SearchRequest) bool {
		return assert.ObjectsAreEqual([]string{"1.1"}, req.Attributes)
	})).Return(searchResult(ldap.NewEntry(jdoeDN, nil)), nil).Once()

	user, err := ad.FindUser(t.Context(), &QueryOptions{Attributes: []string{"dn"}}, "jdoe")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, Attributes{"dn": {jdoeDN}}, user.Attributes)
}

func TestFindUser_IncludeMembership(t *testing.T) {
	tests := []struct {
		name       string
		scopes     []MembershipScope
		wantGroups bool
	}{
		{name: "all", scopes: []MembershipScope{MembershipAll}, wantGroups: true},
		{name: "user", scopes: []MembershipScope{MembershipUser}, wantGroups: true},
		{name: "mixed case", scopes: []MembershipScope{"User"}, wantGroups: true},
		{name: "padded user", scopes: []MembershipScope{" user"}, wantGroups: true},
		{name: "padded all", scopes: []MembershipScope{"ALL "}, wantGroups: true},
		{name: "padded group only", scopes: []MembershipScope{" group "}, wantGroups: false},
		{name: "group only", scopes: []MembershipScope{MembershipGroup}, wantGroups: false},
		{name: "none", scopes: nil, wantGroups: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad, m := newTestAD(t)

			m.On("Search", mock.Anything, withFilter(userFilter(t, "jdoe"))).
				Return(searchResult(userEntry(jdoeDN, "jdoe")), nil).Once()
			if tt.wantGroups {
				expectNestedGroups(m)
			}

			user, err := ad.FindUser(t.Context(), &QueryOptions{IncludeMembership: tt.scopes}, "jdoe")
			require.NoError(t, err)
			require.NotNil(t, user)

			if !tt.wantGroups {
				assert.Nil(t, user.Groups)
				return
			}
			assert.Equal(t, []string{developersDN, staffDN, engineeringDN}, groupDNs(user.Groups))
			for _, g := range user.Groups {
				assert.Equal(t, []string{"cn", "description", "distinguishedName", "objectCategory"}, g.Attributes.Keys())
			}
		})
	}
}

func TestFindUser_InvalidOptions(t *testing.T) {
	tests := []struct {
		name     string
		opts     *QueryOptions
		username string
	}{
		{name: "unknown membership scope", opts: &QueryOptions{IncludeMembership: []MembershipScope{"everyone"}}, username: "jdoe"},
		{name: "unparenthesised filter", opts: &QueryOptions{Filter: "employeeID=1042"}, username: "jdoe"},
		{name: "empty username", opts: nil, username: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad, _ := newTestAD(t)

			user, err := ad.FindUser(t.Context(), tt.opts, tt.username)
			require.ErrorIs(t, err, ErrInvalidOptions)
			assert.Nil(t, user)
		})
	}
}

func TestFindUser_DirectoryError(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, mock.Anything).
		Return(nil, ldap.NewError(ldap.LDAPResultBusy, errors.New("server busy"))).Once()

	user, err := ad.FindUser(t.Context(), nil, "jdoe")
	require.Error(t, err)
	assert.Nil(t, user)
	assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultBusy))
}

func TestFindUser_DiscoversBaseDN(t *testing.T) {
	ad, m := newTestAD(t, func(c *Config) { c.BaseDN = "" })

	m.On("GetBaseDN", mock.Anything).Return("DC=corp,DC=example,DC=com", nil).Once()
	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldapclient.SearchRequest) bool {
		return req.BaseDN == "DC=corp,DC=example,DC=com"
	})).Return(searchResult(), nil).Twice()

	for range 2 {
		_, err := ad.FindUser(t.Context(), nil, "jdoe")
		require.NoError(t, err)
	}
}

func TestFindUser_BaseDNOverride(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, mock.MatchedBy(func(req *ldapclient.SearchRequest) bool {
		return req.BaseDN == "OU=Users,DC=example,DC=com"
	})).Return(searchResult(), nil).Once()

	_, err := ad.FindUser(t.Context(), &QueryOptions{BaseDN: "OU=Users,DC=example,DC=com"}, "jdoe")
	require.NoError(t, err)
}

func TestFindUsers(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("SearchWithPaging", mock.Anything, withFilter("(&(objectCategory=User)(department=IT))")).
		Return(searchResult(userEntry(jdoeDN, "jdoe"), userEntry(janeDN, "jroe")), nil).Once()

	users, err := ad.FindUsers(t.Context(), nil, "department=IT")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, jdoeDN, users[0].DN)
	assert.Equal(t, janeDN, users[1].DN)
}

func TestFindUsers_Empty(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("SearchWithPaging", mock.Anything, withFilter("(&(objectCategory=User))")).
		Return(searchResult(), nil).Once()

	users, err := ad.FindUsers(t.Context(), nil, "")
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestUserExists(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Search", mock.Anything, withFilter(userFilter(t, "jdoe"))).
		Return(searchResult(ldap.NewEntry(jdoeDN, nil)), nil).Once()
	m.On("Search", mock.Anything, withFilter(userFilter(t, "nobody"))).
		Return(searchResult(), nil).Once()

	exists, err := ad.UserExists(t.Context(), "jdoe")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = ad.UserExists(t.Context(), "nobody")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserExists_Cached(t *testing.T) {
	ad, m := newTestAD(t, func(c *Config) { c.CacheTTL = time.Minute })

	m.On("Search", mock.Anything, withFilter(userFilter(t, "jdoe"))).
		Return(searchResult(ldap.NewEntry(jdoeDN, nil)), nil).Once()

	for range 3 {
		exists, err := ad.UserExists(t.Context(), "jdoe")
		require.NoError(t, err)
		assert.True(t, exists)
	}

	m.On("Stats").Return(ldapclient.PoolStats{})
	stats := ad.Stats()
	assert.Equal(t, int64(2), stats.Cache.Hits)
	assert.Equal(t, int64(1), stats.Cache.Misses)
}

func TestClose(t *testing.T) {
	ad, m := newTestAD(t)

	m.On("Close").Return(nil).Once()

	require.NoError(t, ad.Close())
	require.NoError(t, ad.Close())

	_, err := ad.FindUser(t.Context(), nil, "jdoe")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = ad.GetGroupMembershipForUser(t.Context(), nil, "jdoe")
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, ad.Ping(t.Context()), ErrClosed)
}
