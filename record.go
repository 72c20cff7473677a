package activedirectory

import (
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

// Attributes holds projected attribute values keyed by the requested name.
type Attributes map[string][]string

// Values returns the values of name, matched case-insensitively.
func (a Attributes) Values(name string) []string {
	if v, ok := a[name]; ok {
		return v
	}
	for k, v := range a {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Get returns the first value of name or "".
func (a Attributes) Get(name string) string {
	if v := a.Values(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Has reports whether name is present.
func (a Attributes) Has(name string) bool {
	return a.Values(name) != nil
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	return slices.Sorted(maps.Keys(a))
}

func (a Attributes) flatten() map[string]any {
	out := make(map[string]any, len(a)+1)
	for k, v := range a {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}

// Object is any directory entry after projection.
type Object struct {
	DN         string
	Attributes Attributes
}

// Get returns the first value of the named attribute.
func (o *Object) Get(name string) string {
	return o.Attributes.Get(name)
}

func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Attributes.flatten())
}

func (o *Object) MarshalYAML() (any, error) {
	return o.Attributes.flatten(), nil
}

// User is a user entry. Groups is nil unless membership was requested.
type User struct {
	Object
	Groups []*Group
}

func (u *User) fields() map[string]any {
	out := u.Attributes.flatten()
	if u.Groups != nil {
		out["groups"] = u.Groups
	}
	return out
}

func (u *User) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.fields())
}

func (u *User) MarshalYAML() (any, error) {
	return u.fields(), nil
}

// Group is a group entry. Groups holds the groups it belongs to and is nil
// unless membership was requested.
type Group struct {
	Object
	Groups []*Group
}

func (g *Group) fields() map[string]any {
	out := g.Attributes.flatten()
	if g.Groups != nil {
		out["groups"] = g.Groups
	}
	return out
}

func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.fields())
}

func (g *Group) MarshalYAML() (any, error) {
	return g.fields(), nil
}

// binaryAttributes are rendered as strings instead of raw bytes.
var binaryAttributes = map[string]func([]byte) (string, error){
	"objectguid":  ldapclient.GUIDBytesToString,
	"objectsid":   ldapclient.SIDBytesToString,
	"sidhistory":  ldapclient.SIDBytesToString,
	"tokengroups": ldapclient.SIDBytesToString,
}

// projection maps entries onto the caller's attribute list.
type projection struct {
	names []string
	all   bool
}

func newProjection(attributes []string) projection {
	var p projection
	seen := make(map[string]bool, len(attributes))
	for _, name := range attributes {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		if name == "*" {
			p.all = true
			continue
		}
		p.names = append(p.names, name)
	}
	return p
}

// wire returns the attributes to request from the server. The dn
// pseudo-attribute is never sent; extra names are requested but not
// projected.
func (p projection) wire(extra ...string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		key := strings.ToLower(name)
		if key == "dn" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, name)
	}

	if p.all {
		add("*")
	}
	for _, name := range p.names {
		add(name)
	}
	for _, name := range extra {
		add(name)
	}

	if len(out) == 0 {
		// RFC 4511 "no attributes"
		return []string{"1.1"}
	}
	return out
}

// apply projects entry. Attributes absent from the entry are omitted.
func (p projection) apply(entry *ldap.Entry) Attributes {
	out := make(Attributes)

	if p.all {
		for _, attr := range entry.Attributes {
			if v := attributeValues(attr); len(v) > 0 {
				out[attr.Name] = v
			}
		}
	}

	for _, name := range p.names {
		if strings.EqualFold(name, "dn") {
			out[name] = []string{entry.DN}
			continue
		}

		attr := findAttribute(entry, name)
		if attr == nil {
			continue
		}
		v := attributeValues(attr)
		if len(v) == 0 {
			continue
		}
		if p.all && attr.Name != name {
			delete(out, attr.Name)
		}
		out[name] = v
	}

	return out
}

func findAttribute(entry *ldap.Entry, name string) *ldap.EntryAttribute {
	for _, attr := range entry.Attributes {
		if strings.EqualFold(attr.Name, name) {
			return attr
		}
	}
	return nil
}

func attributeValues(attr *ldap.EntryAttribute) []string {
	decode := binaryAttributes[strings.ToLower(attr.Name)]
	if decode == nil {
		return attr.Values
	}

	out := make([]string, 0, len(attr.ByteValues))
	for _, raw := range attr.ByteValues {
		if len(raw) == 0 {
			continue
		}
		s, err := decode(raw)
		if err != nil {
			s = hex.EncodeToString(raw)
		}
		out = append(out, s)
	}
	return out
}
