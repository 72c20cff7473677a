package activedirectory

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

const (
	userCategory  = "(objectCategory=User)"
	groupCategory = "(objectCategory=Group)"

	// LDAP_MATCHING_RULE_IN_CHAIN
	matchingRuleInChain = "1.2.840.113556.1.4.1941"
)

var (
	userNameAttributes  = []string{"sAMAccountName", "userPrincipalName"}
	groupNameAttributes = []string{"cn", "sAMAccountName"}
)

func and(filters ...string) string {
	return "(&" + strings.Join(filters, "") + ")"
}

// nameFilter matches identifier as a DN, GUID, SID or one of
// nameAttributes. Names in no recognised format are still matched against
// nameAttributes so the directory decides.
func nameFilter(identifier string, nameAttributes []string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrInvalidOptions)
	}

	if ldapclient.DetectIdentifierType(identifier) == ldapclient.IdentifierTypeUnknown {
		return ldapclient.NameFilter(identifier, nameAttributes...), nil
	}
	return ldapclient.IdentifierFilter(identifier, nameAttributes...)
}

// UserFilter returns the filter matching a user by userPrincipalName,
// sAMAccountName, distinguished name, objectGUID or objectSid.
func UserFilter(username string) (string, error) {
	f, err := nameFilter(username, userNameAttributes)
	if err != nil {
		return "", err
	}
	return and(userCategory, f), nil
}

// GroupFilter returns the filter matching a group by cn, sAMAccountName,
// distinguished name, objectGUID or objectSid.
func GroupFilter(groupName string) (string, error) {
	f, err := nameFilter(groupName, groupNameAttributes)
	if err != nil {
		return "", err
	}
	return and(groupCategory, f), nil
}

// categoryFilter restricts query to category. An empty query matches
// every object of the category.
func categoryFilter(category, query string) string {
	query = strings.TrimSpace(query)
	switch {
	case query == "":
		return and(category)
	case !strings.HasPrefix(query, "("):
		query = "(" + query + ")"
	}
	return and(category, query)
}

// parentGroupsFilter matches the groups listing dn as a direct member.
func parentGroupsFilter(dn string) string {
	return and(groupCategory, "(member="+ldap.EscapeFilter(dn)+")")
}

// groupUsersFilter matches users of groupDN, including nested members
// when nested is set.
func groupUsersFilter(groupDN string, nested bool) string {
	attr := "memberOf"
	if nested {
		attr += ":" + matchingRuleInChain + ":"
	}
	return and(userCategory, "("+attr+"="+ldap.EscapeFilter(groupDN)+")")
}
