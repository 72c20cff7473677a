package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// IdentifierType is the form in which a directory object was named.
type IdentifierType int

const (
	IdentifierTypeUnknown IdentifierType = iota
	IdentifierTypeDN
	IdentifierTypeGUID
	IdentifierTypeSID
	IdentifierTypeUPN
	IdentifierTypeSAM // sAMAccountName, optionally DOMAIN\ prefixed
)

func (i IdentifierType) String() string {
	switch i {
	case IdentifierTypeDN:
		return "DN"
	case IdentifierTypeGUID:
		return "GUID"
	case IdentifierTypeSID:
		return "SID"
	case IdentifierTypeUPN:
		return "UPN"
	case IdentifierTypeSAM:
		return "SAM"
	default:
		return "Unknown"
	}
}

var (
	upnPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
	samPattern = regexp.MustCompile(`^([^\\@]+\\)?[^\\@]+$`)
)

// DetectIdentifierType classifies identifier, most specific form first.
func DetectIdentifierType(identifier string) IdentifierType {
	identifier = strings.TrimSpace(identifier)

	switch {
	case identifier == "":
		return IdentifierTypeUnknown
	case IsDN(identifier):
		return IdentifierTypeDN
	case IsGUID(identifier) && strings.Count(identifier, "-") == 4:
		return IdentifierTypeGUID
	case IsSID(identifier):
		return IdentifierTypeSID
	case upnPattern.MatchString(identifier):
		return IdentifierTypeUPN
	case samPattern.MatchString(identifier):
		return IdentifierTypeSAM
	default:
		return IdentifierTypeUnknown
	}
}

// StripDomainPrefix turns DOMAIN\name into name.
func StripDomainPrefix(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// IdentifierFilter returns a filter matching identifier. Names that are not
// a DN, GUID or SID match any of nameAttributes.
func IdentifierFilter(identifier string, nameAttributes ...string) (string, error) {
	identifier = strings.TrimSpace(identifier)

	switch DetectIdentifierType(identifier) {
	case IdentifierTypeDN:
		return "(distinguishedName=" + ldap.EscapeFilter(identifier) + ")", nil
	case IdentifierTypeGUID:
		return GUIDToSearchFilter(identifier)
	case IdentifierTypeSID:
		return SIDToSearchFilter(identifier)
	case IdentifierTypeUPN, IdentifierTypeSAM:
		if len(nameAttributes) == 0 {
			return "", fmt.Errorf("no attributes to match %q against", identifier)
		}
		return NameFilter(StripDomainPrefix(identifier), nameAttributes...), nil
	default:
		return "", fmt.Errorf("unrecognized identifier format: %q", identifier)
	}
}

// NameFilter matches value against any of attributes.
func NameFilter(value string, attributes ...string) string {
	escaped := ldap.EscapeFilter(value)
	if len(attributes) == 1 {
		return "(" + attributes[0] + "=" + escaped + ")"
	}

	var sb strings.Builder
	sb.WriteString("(|")
	for _, attr := range attributes {
		sb.WriteString("(" + attr + "=" + escaped + ")")
	}
	sb.WriteString(")")
	return sb.String()
}
