package activedirectory

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

const testBaseDN = "DC=example,DC=com"

const (
	jdoeDN        = "CN=John Doe,OU=Users,DC=example,DC=com"
	janeDN        = "CN=Jane Roe,OU=Users,DC=example,DC=com"
	developersDN  = "CN=Developers,OU=Groups,DC=example,DC=com"
	staffDN       = "CN=Staff,OU=Groups,DC=example,DC=com"
	engineeringDN = "CN=Engineering,OU=Groups,DC=example,DC=com"
	workstationDN = "CN=WS01,OU=Computers,DC=example,DC=com"

	groupCategoryDN  = "CN=Group,CN=Schema,CN=Configuration,DC=example,DC=com"
	personCategoryDN = "CN=Person,CN=Schema,CN=Configuration,DC=example,DC=com"
)

// mockClient implements ldapclient.Client for testing query operations.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockClient) BindWithConfig(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) VerifyCredentials(ctx context.Context, username, password string) error {
	args := m.Called(ctx, username, password)
	return args.Error(0)
}

func (m *mockClient) Search(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*ldapclient.SearchResult)
	return result, args.Error(1)
}

func (m *mockClient) SearchWithPaging(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*ldapclient.SearchResult)
	return result, args.Error(1)
}

func (m *mockClient) GetBaseDN(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockClient) GetRootDSE(ctx context.Context, attributes []string) (*ldap.Entry, error) {
	args := m.Called(ctx, attributes)
	entry, _ := args.Get(0).(*ldap.Entry)
	return entry, args.Error(1)
}

func (m *mockClient) WhoAmI(ctx context.Context) (*ldapclient.WhoAmIResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*ldapclient.WhoAmIResult)
	return result, args.Error(1)
}

func (m *mockClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) Stats() ldapclient.PoolStats {
	args := m.Called()
	return args.Get(0).(ldapclient.PoolStats)
}

// newTestAD returns a client over a mock transport with defaults applied
// and the base DN fixed.
func newTestAD(t *testing.T, configure ...func(*Config)) (*ActiveDirectory, *mockClient) {
	t.Helper()

	cfg := &Config{URLs: []string{"ldaps://dc1.example.com"}, BaseDN: testBaseDN}
	require.NoError(t, cfg.ApplyDefaults())
	for _, fn := range configure {
		fn(cfg)
	}

	m := &mockClient{}
	t.Cleanup(func() { m.AssertExpectations(t) })

	return newWithClient(cfg, m), m
}

func searchResult(entries ...*ldap.Entry) *ldapclient.SearchResult {
	return &ldapclient.SearchResult{Entries: entries, Total: len(entries)}
}

// withFilter matches a search request by filter.
func withFilter(filter string) any {
	return mock.MatchedBy(func(req *ldapclient.SearchRequest) bool {
		return req.Filter == filter
	})
}

// readOf matches a base-scope read of dn. member selects the read of the
// member attribute rather than the projected read.
func readOf(dn string, member bool) any {
	return mock.MatchedBy(func(req *ldapclient.SearchRequest) bool {
		if req.BaseDN != dn || req.Scope != ldapclient.ScopeBaseObject {
			return false
		}
		isMember := len(req.Attributes) == 1 && req.Attributes[0] == "member"
		return isMember == member
	})
}

func userFilter(t *testing.T, name string) string {
	t.Helper()
	f, err := UserFilter(name)
	require.NoError(t, err)
	return f
}

func groupFilter(t *testing.T, name string) string {
	t.Helper()
	f, err := GroupFilter(name)
	require.NoError(t, err)
	return f
}

func userEntry(dn, sam string) *ldap.Entry {
	return ldap.NewEntry(dn, map[string][]string{
		"objectClass":        {"top", "person", "organizationalPerson", "user"},
		"objectCategory":     {personCategoryDN},
		"sAMAccountName":     {sam},
		"userPrincipalName":  {sam + "@example.com"},
		"mail":               {sam + "@example.com"},
		"cn":                 {ldapclient.FirstRDNValue(dn)},
		"displayName":        {ldapclient.FirstRDNValue(dn)},
		"userAccountControl": {"512"},
	})
}

func groupEntry(dn string) *ldap.Entry {
	cn := ldapclient.FirstRDNValue(dn)
	return ldap.NewEntry(dn, map[string][]string{
		"objectClass":       {"top", "group"},
		"objectCategory":    {groupCategoryDN},
		"distinguishedName": {dn},
		"cn":                {cn},
		"description":       {cn + " members"},
		"groupType":         {"-2147483646"},
	})
}

// expectParents answers the parent group search for dn.
func expectParents(m *mockClient, dn string, parents ...string) *mock.Call {
	entries := make([]*ldap.Entry, 0, len(parents))
	for _, p := range parents {
		entries = append(entries, groupEntry(p))
	}
	return m.On("SearchWithPaging", mock.Anything, withFilter(parentGroupsFilter(dn))).Return(searchResult(entries...), nil)
}

// expectNestedGroups wires jdoe into Developers and Staff, both of which
// belong to Engineering, which in turn belongs to Developers.
func expectNestedGroups(m *mockClient) {
	expectParents(m, jdoeDN, developersDN, staffDN)
	expectParents(m, developersDN, engineeringDN)
	expectParents(m, staffDN, engineeringDN)
	expectParents(m, engineeringDN, developersDN)
}

func groupDNs(groups []*Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.DN)
	}
	return out
}
