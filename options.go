package activedirectory

import (
	"fmt"
	"slices"
	"strings"
)

// MembershipScope selects which records get their nested groups resolved.
type MembershipScope string

const (
	MembershipAll   MembershipScope = "all"
	MembershipUser  MembershipScope = "user"
	MembershipGroup MembershipScope = "group"
)

// MembershipScopes lists the accepted IncludeMembership values.
var MembershipScopes = []MembershipScope{MembershipAll, MembershipUser, MembershipGroup}

// ParseMembershipScope parses s case-insensitively.
func ParseMembershipScope(s string) (MembershipScope, error) {
	scope := MembershipScope(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(MembershipScopes, scope) {
		return "", fmt.Errorf("%w: unknown includeMembership value %q", ErrInvalidOptions, s)
	}
	return scope, nil
}

// QueryOptions adjust a single query. A nil *QueryOptions is valid and
// selects every default.
type QueryOptions struct {
	// Filter replaces the filter generated from the name argument.
	Filter string

	// Attributes restricts the keys of returned records. "dn" is the entry
	// DN and "*" is every attribute the server returns.
	Attributes []string

	// IncludeMembership attaches nested groups to matching records.
	IncludeMembership []MembershipScope

	// BaseDN overrides the configured search base.
	BaseDN string
}

func (o *QueryOptions) validate() error {
	if o == nil {
		return nil
	}
	for _, scope := range o.IncludeMembership {
		if _, err := ParseMembershipScope(string(scope)); err != nil {
			return err
		}
	}
	if o.Filter != "" && !strings.HasPrefix(strings.TrimSpace(o.Filter), "(") {
		return fmt.Errorf("%w: filter must be parenthesised: %q", ErrInvalidOptions, o.Filter)
	}
	return nil
}

// includes reports whether records of kind get their membership resolved.
func (o *QueryOptions) includes(kind MembershipScope) bool {
	if o == nil {
		return false
	}
	for _, s := range o.IncludeMembership {
		scope, err := ParseMembershipScope(string(s))
		if err != nil {
			continue
		}
		if scope == MembershipAll || scope == kind {
			return true
		}
	}
	return false
}

func (o *QueryOptions) filter() string {
	if o == nil {
		return ""
	}
	return strings.TrimSpace(o.Filter)
}

func (o *QueryOptions) attributes(fallback []string) []string {
	if o == nil || len(o.Attributes) == 0 {
		return fallback
	}
	return o.Attributes
}

func (o *QueryOptions) baseDN() string {
	if o == nil {
		return ""
	}
	return o.BaseDN
}
