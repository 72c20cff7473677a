package activedirectory

import (
	"context"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/sync/errgroup"
)

// FindGroup returns the group named groupName, matched by cn,
// sAMAccountName, distinguished name, objectGUID or objectSid, or nil when
// nothing matches. With IncludeMembership containing all or group, the
// groups it belongs to are attached.
func (ad *ActiveDirectory) FindGroup(ctx context.Context, opts *QueryOptions, groupName string) (*Group, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	var group *Group
	err := ad.observe(ctx, "find_group", map[string]any{"group": groupName}, func() (bool, error) {
		filter := opts.filter()
		if filter == "" {
			var err error
			if filter, err = GroupFilter(groupName); err != nil {
				return false, err
			}
		}

		baseDN, err := ad.searchBase(ctx, opts)
		if err != nil {
			return false, err
		}

		proj := newProjection(opts.attributes(ad.config.Attributes.Group))
		entry, err := ad.searchOne(ctx, baseDN, filter, proj.wire())
		if err != nil || entry == nil {
			return false, err
		}

		group, err = ad.newGroup(ctx, opts, baseDN, proj, entry)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// FindGroups returns every group matching query, an LDAP filter fragment
// combined with (objectCategory=Group). An empty query returns all groups.
func (ad *ActiveDirectory) FindGroups(ctx context.Context, opts *QueryOptions, query string) ([]*Group, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	groups := []*Group{}
	err := ad.observe(ctx, "find_groups", map[string]any{"query": query}, func() (bool, error) {
		filter := opts.filter()
		if filter == "" {
			filter = categoryFilter(groupCategory, query)
		}

		baseDN, err := ad.searchBase(ctx, opts)
		if err != nil {
			return false, err
		}

		proj := newProjection(opts.attributes(ad.config.Attributes.Group))
		entries, err := ad.searchAll(ctx, baseDN, filter, proj.wire())
		if err != nil {
			return false, err
		}

		groups = make([]*Group, len(entries))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ad.concurrency())
		for i, entry := range entries {
			g.Go(func() error {
				grp, err := ad.newGroup(gctx, opts, baseDN, proj, entry)
				groups[i] = grp
				return err
			})
		}
		return len(groups) > 0, g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupExists reports whether groupName resolves to a group.
func (ad *ActiveDirectory) GroupExists(ctx context.Context, groupName string) (bool, error) {
	if err := ad.check(); err != nil {
		return false, err
	}
	ctx = logging(ctx)

	exists := false
	err := ad.observe(ctx, "group_exists", map[string]any{"group": groupName}, func() (bool, error) {
		dn, err := ad.groupDN(ctx, nil, groupName)
		exists = dn != ""
		return exists, err
	})
	return exists, err
}

func (ad *ActiveDirectory) newGroup(ctx context.Context, opts *QueryOptions, baseDN string, proj projection, entry *ldap.Entry) (*Group, error) {
	group := &Group{Object: Object{DN: entry.DN, Attributes: proj.apply(entry)}}

	if opts.includes(MembershipGroup) {
		groups, err := ad.membership(ctx, baseDN, entry.DN, newProjection(ad.config.Attributes.Group))
		if err != nil {
			return nil, err
		}
		group.Groups = groups
	}

	return group, nil
}

// groupDN resolves groupName, or opts.Filter when set, to a DN. It returns
// "" when nothing matches.
func (ad *ActiveDirectory) groupDN(ctx context.Context, opts *QueryOptions, groupName string) (string, error) {
	baseDN, err := ad.searchBase(ctx, opts)
	if err != nil {
		return "", err
	}

	if filter := opts.filter(); filter != "" {
		return ad.resolveDN(ctx, baseDN, filter, "")
	}

	filter, err := GroupFilter(groupName)
	if err != nil {
		return "", err
	}
	return ad.resolveDN(ctx, baseDN, filter, "group:"+groupName)
}
