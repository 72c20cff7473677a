package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

var dnPattern = regexp.MustCompile(`^(?i)(CN|OU|DC|O|C|L|ST|STREET|UID|POSTALCODE)\s*=.+`)

// IsDN reports whether s looks like and parses as a distinguished name.
func IsDN(s string) bool {
	s = strings.TrimSpace(s)
	if !dnPattern.MatchString(s) {
		return false
	}
	_, err := ldap.ParseDN(s)
	return err == nil
}

// NormalizeDNCase rewrites attribute types in upper case, the form Active
// Directory returns. Values keep their case.
//
//	cn=john,ou=users,dc=example,dc=com -> CN=john,OU=users,DC=example,DC=com
func NormalizeDNCase(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	return formatDN(parsed.RDNs), nil
}

func formatDN(rdns []*ldap.RelativeDN) string {
	parts := make([]string, 0, len(rdns))
	for _, rdn := range rdns {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, strings.ToUpper(attr.Type)+"="+EscapeDNValue(attr.Value))
		}
		parts = append(parts, strings.Join(attrs, "+"))
	}
	return strings.Join(parts, ",")
}

// DNKey returns a comparison key under which DNs differing only in case or
// insignificant whitespace collide. Unparseable input is lowercased as is.
func DNKey(dn string) string {
	parsed, err := ldap.ParseDN(strings.TrimSpace(dn))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(dn))
	}
	return strings.ToLower(parsed.String())
}

// EqualDN reports whether a and b name the same entry, ignoring case.
func EqualDN(a, b string) bool {
	return DNKey(a) == DNKey(b)
}

// ParentDN drops the leading RDN.
func ParentDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(strings.TrimSpace(dn))
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}
	if len(parsed.RDNs) <= 1 {
		return "", fmt.Errorf("DN has no parent: %s", dn)
	}
	return formatDN(parsed.RDNs[1:]), nil
}

// IsDNDescendant reports whether child lies below ancestor.
func IsDNDescendant(child, ancestor string) (bool, error) {
	c, err := ldap.ParseDN(child)
	if err != nil {
		return false, fmt.Errorf("invalid child DN syntax: %w", err)
	}
	a, err := ldap.ParseDN(ancestor)
	if err != nil {
		return false, fmt.Errorf("invalid ancestor DN syntax: %w", err)
	}
	return a.AncestorOfFold(c), nil
}

// FirstRDNValue returns the value of the leading RDN, e.g. the cn of a group.
func FirstRDNValue(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return ""
	}
	return parsed.RDNs[0].Attributes[0].Value
}

// EscapeDNValue escapes an attribute value for use in a DN (RFC 4514).
func EscapeDNValue(value string) string {
	if value == "" {
		return ""
	}

	var sb strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case (i == 0 && (c == ' ' || c == '#')) || (i == len(value)-1 && c == ' '):
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case strings.IndexByte(`"+,;<>\=`, c) >= 0:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == 0:
			sb.WriteString(`\00`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
