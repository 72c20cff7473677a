package activedirectory

import (
	"context"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/sync/errgroup"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

// FindUser returns the user named username, matched by userPrincipalName,
// sAMAccountName, distinguished name, objectGUID or objectSid. opts.Filter
// replaces that lookup and username is then ignored. Only the first match
// is returned; nil is returned when nothing matches.
func (ad *ActiveDirectory) FindUser(ctx context.Context, opts *QueryOptions, username string) (*User, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	var user *User
	err := ad.observe(ctx, "find_user", map[string]any{"username": username}, func() (bool, error) {
		filter := opts.filter()
		if filter == "" {
			var err error
			if filter, err = UserFilter(username); err != nil {
				return false, err
			}
		}

		baseDN, err := ad.searchBase(ctx, opts)
		if err != nil {
			return false, err
		}

		proj := newProjection(opts.attributes(ad.config.Attributes.User))
		entry, err := ad.searchOne(ctx, baseDN, filter, proj.wire())
		if err != nil || entry == nil {
			return false, err
		}

		user, err = ad.newUser(ctx, opts, baseDN, proj, entry)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindUsers returns every user matching query, an LDAP filter fragment
// combined with (objectCategory=User). opts.Filter replaces the combined
// filter. An empty query returns all users.
func (ad *ActiveDirectory) FindUsers(ctx context.Context, opts *QueryOptions, query string) ([]*User, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	users := []*User{}
	err := ad.observe(ctx, "find_users", map[string]any{"query": query}, func() (bool, error) {
		filter := opts.filter()
		if filter == "" {
			filter = categoryFilter(userCategory, query)
		}

		baseDN, err := ad.searchBase(ctx, opts)
		if err != nil {
			return false, err
		}

		proj := newProjection(opts.attributes(ad.config.Attributes.User))
		entries, err := ad.searchAll(ctx, baseDN, filter, proj.wire())
		if err != nil {
			return false, err
		}

		users = make([]*User, len(entries))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ad.concurrency())
		for i, entry := range entries {
			g.Go(func() error {
				u, err := ad.newUser(gctx, opts, baseDN, proj, entry)
				users[i] = u
				return err
			})
		}
		return len(users) > 0, g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UserExists reports whether username resolves to a user.
func (ad *ActiveDirectory) UserExists(ctx context.Context, username string) (bool, error) {
	if err := ad.check(); err != nil {
		return false, err
	}
	ctx = logging(ctx)

	exists := false
	err := ad.observe(ctx, "user_exists", map[string]any{"username": username}, func() (bool, error) {
		dn, err := ad.userDN(ctx, nil, username)
		exists = dn != ""
		return exists, err
	})
	return exists, err
}

// newUser projects entry and attaches its groups when requested.
func (ad *ActiveDirectory) newUser(ctx context.Context, opts *QueryOptions, baseDN string, proj projection, entry *ldap.Entry) (*User, error) {
	if err := ldapclient.ExpandRangedAttributes(ctx, ad.client, entry); err != nil {
		return nil, err
	}

	user := &User{Object: Object{DN: entry.DN, Attributes: proj.apply(entry)}}

	if opts.includes(MembershipUser) {
		groups, err := ad.membership(ctx, baseDN, entry.DN, newProjection(ad.config.Attributes.Group))
		if err != nil {
			return nil, err
		}
		user.Groups = groups
	}

	return user, nil
}

// userDN resolves username, or opts.Filter when set, to a DN. It returns ""
// when nothing matches.
func (ad *ActiveDirectory) userDN(ctx context.Context, opts *QueryOptions, username string) (string, error) {
	baseDN, err := ad.searchBase(ctx, opts)
	if err != nil {
		return "", err
	}

	if filter := opts.filter(); filter != "" {
		return ad.resolveDN(ctx, baseDN, filter, "")
	}

	filter, err := UserFilter(username)
	if err != nil {
		return "", err
	}
	return ad.resolveDN(ctx, baseDN, filter, "user:"+username)
}

func (ad *ActiveDirectory) concurrency() int {
	if ad.config.MembershipConcurrency <= 0 {
		return 1
	}
	return ad.config.MembershipConcurrency
}
