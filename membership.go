package activedirectory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/sync/errgroup"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

// GetGroupMembershipForUser returns every group username belongs to,
// directly or through nested groups, without duplicates. An unknown user
// yields an empty slice. opts.Attributes selects the group attributes and
// opts.Filter replaces the user lookup.
func (ad *ActiveDirectory) GetGroupMembershipForUser(ctx context.Context, opts *QueryOptions, username string) ([]*Group, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	groups := []*Group{}
	err := ad.observe(ctx, "get_group_membership_for_user", map[string]any{"username": username}, func() (bool, error) {
		dn, err := ad.userDN(ctx, opts, username)
		if err != nil || dn == "" {
			return false, err
		}
		groups, err = ad.membershipFor(ctx, opts, dn)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroupMembershipForGroup returns every group groupName belongs to,
// directly or through nested groups, without duplicates. An unknown group
// yields an empty slice.
func (ad *ActiveDirectory) GetGroupMembershipForGroup(ctx context.Context, opts *QueryOptions, groupName string) ([]*Group, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	groups := []*Group{}
	err := ad.observe(ctx, "get_group_membership_for_group", map[string]any{"group": groupName}, func() (bool, error) {
		dn, err := ad.groupDN(ctx, opts, groupName)
		if err != nil || dn == "" {
			return false, err
		}
		groups, err = ad.membershipFor(ctx, opts, dn)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// IsUserMemberOf reports whether username is a direct or nested member of
// groupName. Unknown users and groups report false.
func (ad *ActiveDirectory) IsUserMemberOf(ctx context.Context, username, groupName string) (bool, error) {
	if err := ad.check(); err != nil {
		return false, err
	}
	ctx = logging(ctx)

	member := false
	err := ad.observe(ctx, "is_user_member_of", map[string]any{"username": username, "group": groupName}, func() (bool, error) {
		groupDN, err := ad.groupDN(ctx, nil, groupName)
		if err != nil || groupDN == "" {
			return false, err
		}

		userFilter, err := UserFilter(username)
		if err != nil {
			return false, err
		}
		baseDN, err := ad.searchBase(ctx, nil)
		if err != nil {
			return false, err
		}

		filter := and(userFilter, groupUsersFilter(groupDN, true))
		entry, err := ad.searchOne(ctx, baseDN, filter, []string{"distinguishedName"})
		member = entry != nil
		return member, err
	})
	return member, err
}

// GetUsersForGroup returns the users that are members of groupName,
// directly or through nested groups, without duplicates. An unknown group
// yields an empty slice. opts.Attributes selects the user attributes.
func (ad *ActiveDirectory) GetUsersForGroup(ctx context.Context, opts *QueryOptions, groupName string) ([]*User, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	users := []*User{}
	err := ad.observe(ctx, "get_users_for_group", map[string]any{"group": groupName}, func() (bool, error) {
		baseDN, err := ad.searchBase(ctx, opts)
		if err != nil {
			return false, err
		}
		dn, err := ad.groupDN(ctx, opts, groupName)
		if err != nil || dn == "" {
			return false, err
		}
		users, err = ad.groupUsers(ctx, opts, baseDN, dn)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (ad *ActiveDirectory) membershipFor(ctx context.Context, opts *QueryOptions, dn string) ([]*Group, error) {
	baseDN, err := ad.searchBase(ctx, opts)
	if err != nil {
		return nil, err
	}
	return ad.membership(ctx, baseDN, dn, newProjection(opts.attributes(ad.config.Attributes.Group)))
}

// membership resolves the groups containing dn breadth first. Each level
// is searched concurrently; the result keeps level order, and within a
// level the order of the parents and then of the directory results. DNs
// are compared case-insensitively so cycles terminate.
func (ad *ActiveDirectory) membership(ctx context.Context, baseDN, dn string, proj projection) ([]*Group, error) {
	wire := proj.wire()
	visited := map[string]struct{}{ldapclient.DNKey(dn): {}}
	groups := []*Group{}
	level := []string{dn}

	for depth := 0; len(level) > 0; depth++ {
		parents := make([][]*ldap.Entry, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ad.concurrency())
		for i, child := range level {
			g.Go(func() error {
				entries, err := ad.parentGroups(gctx, baseDN, child, wire)
				if err != nil {
					return fmt.Errorf("failed to resolve groups of %s: %w", child, err)
				}
				parents[i] = entries
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, entries := range parents {
			for _, entry := range entries {
				key := ldapclient.DNKey(entry.DN)
				if _, seen := visited[key]; seen {
					continue
				}
				visited[key] = struct{}{}
				groups = append(groups, &Group{Object: Object{DN: entry.DN, Attributes: proj.apply(entry)}})
				next = append(next, entry.DN)
			}
		}

		tflog.SubsystemTrace(ctx, Subsystem, "Resolved membership level", map[string]any{
			"dn":         dn,
			"depth":      depth,
			"level_size": len(level),
			"new_groups": len(next),
			"total":      len(groups),
		})

		level = next
	}

	return groups, nil
}

// parentGroups returns the groups listing dn in their member attribute.
func (ad *ActiveDirectory) parentGroups(ctx context.Context, baseDN, dn string, attributes []string) ([]*ldap.Entry, error) {
	filter := parentGroupsFilter(dn)
	key := ldapclient.SearchKey(baseDN, filter, attributes)

	if entries, ok := ad.cache.GetEntries(key); ok {
		return entries, nil
	}

	entries, err := ad.searchAll(ctx, baseDN, filter, attributes)
	if err != nil {
		return nil, err
	}

	ad.cache.PutEntries(key, entries)
	return entries, nil
}

// groupUsers walks the member attribute of groupDN and of every nested
// group, collecting users. Computers and other member types are skipped.
func (ad *ActiveDirectory) groupUsers(ctx context.Context, opts *QueryOptions, baseDN, groupDN string) ([]*User, error) {
	proj := newProjection(opts.attributes(ad.config.Attributes.User))
	wire := proj.wire("objectClass")

	visited := map[string]struct{}{ldapclient.DNKey(groupDN): {}}
	users := []*User{}
	level := []string{groupDN}

	for len(level) > 0 {
		// Members of every group on this level, in order.
		var members []string
		for _, dn := range level {
			entry, err := ad.readEntry(ctx, dn, []string{"member"})
			if err != nil {
				return nil, fmt.Errorf("failed to read members of %s: %w", dn, err)
			}
			if entry == nil {
				continue
			}
			for _, m := range entry.GetAttributeValues("member") {
				key := ldapclient.DNKey(m)
				if _, seen := visited[key]; seen {
					continue
				}
				visited[key] = struct{}{}
				members = append(members, m)
			}
		}

		entries := make([]*ldap.Entry, len(members))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ad.concurrency())
		for i, m := range members {
			g.Go(func() error {
				entry, err := ad.readEntry(gctx, m, wire)
				entries[i] = entry
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, entry := range entries {
			if entry == nil {
				continue
			}
			switch objectKind(entry) {
			case kindGroup:
				next = append(next, entry.DN)
			case kindUser:
				user, err := ad.newUser(ctx, opts, baseDN, proj, entry)
				if err != nil {
					return nil, err
				}
				users = append(users, user)
			}
		}

		level = next
	}

	return users, nil
}

type kind int

const (
	kindOther kind = iota
	kindUser
	kindGroup
	kindComputer
)

// objectKind classifies entry by objectClass, falling back to
// objectCategory. Computers carry the user class, so they are checked
// first.
func objectKind(entry *ldap.Entry) kind {
	classes := entry.GetAttributeValues("objectClass")
	has := func(class string) bool {
		return slices.ContainsFunc(classes, func(c string) bool { return strings.EqualFold(c, class) })
	}

	switch {
	case has("computer"):
		return kindComputer
	case has("group"):
		return kindGroup
	case has("user") || has("inetOrgPerson"):
		return kindUser
	}

	switch strings.ToLower(ldapclient.FirstRDNValue(entry.GetAttributeValue("objectCategory"))) {
	case "computer":
		return kindComputer
	case "group":
		return kindGroup
	case "person":
		return kindUser
	}

	return kindOther
}
