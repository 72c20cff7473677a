package ldap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// maxRangeRequests bounds the follow-up reads for a single attribute.
const maxRangeRequests = 1000

// parseRange splits "member;range=0-1499" into member, 0 and 1499. An open
// upper bound ("*") is reported as -1.
func parseRange(name string) (base string, low, high int, ok bool) {
	base, bounds, found := strings.Cut(name, ";range=")
	if !found {
		return name, 0, 0, false
	}

	lo, hi, found := strings.Cut(bounds, "-")
	if !found {
		return base, 0, 0, false
	}

	low, err := strconv.Atoi(lo)
	if err != nil {
		return base, 0, 0, false
	}

	if hi == "*" {
		return base, low, -1, true
	}

	high, err = strconv.Atoi(hi)
	if err != nil {
		return base, 0, 0, false
	}

	return base, low, high, true
}

// ExpandRangedAttributes completes attributes the server returned in
// ranges (Active Directory's MaxValRange, 1500 values by default) by
// reading the remaining ranges from entry.DN. Ranged names are replaced by
// the plain attribute name carrying every value.
func ExpandRangedAttributes(ctx context.Context, c Client, entry *ldap.Entry) error {
	if entry == nil {
		return nil
	}

	for i, attr := range entry.Attributes {
		base, _, high, ok := parseRange(attr.Name)
		if !ok {
			continue
		}

		values := append([]string(nil), attr.Values...)
		raw := append([][]byte(nil), attr.ByteValues...)

		for requests := 0; high >= 0; requests++ {
			if requests >= maxRangeRequests {
				return fmt.Errorf("ranged retrieval of %s on %s did not terminate", base, entry.DN)
			}

			next := fmt.Sprintf("%s;range=%d-*", base, high+1)
			result, err := c.Search(ctx, &SearchRequest{
				BaseDN:     entry.DN,
				Scope:      ScopeBaseObject,
				Filter:     "(objectClass=*)",
				Attributes: []string{next},
			})
			if err != nil {
				return fmt.Errorf("ranged retrieval of %s on %s: %w", base, entry.DN, err)
			}
			if len(result.Entries) == 0 {
				break
			}

			found := false
			for _, a := range result.Entries[0].Attributes {
				name, _, h, ok := parseRange(a.Name)
				if !ok || !strings.EqualFold(name, base) {
					continue
				}
				values = append(values, a.Values...)
				raw = append(raw, a.ByteValues...)
				high = h
				found = true
				break
			}
			if !found {
				break
			}
		}

		tflog.SubsystemTrace(ctx, Subsystem, "Expanded ranged attribute", map[string]any{
			"dn":        entry.DN,
			"attribute": base,
			"values":    len(values),
		})

		entry.Attributes[i] = &ldap.EntryAttribute{
			Name:       base,
			Values:     values,
			ByteValues: raw,
		}
	}

	return nil
}
