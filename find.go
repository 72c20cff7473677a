package activedirectory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/sync/errgroup"
)

// SearchResults are the entries of a mixed search split by object type.
type SearchResults struct {
	Users     []*User   `json:"users" yaml:"users"`
	Groups    []*Group  `json:"groups" yaml:"groups"`
	Computers []*Object `json:"computers" yaml:"computers"`
	Other     []*Object `json:"other" yaml:"other"`
}

// Len returns the total number of entries.
func (r *SearchResults) Len() int {
	return len(r.Users) + len(r.Groups) + len(r.Computers) + len(r.Other)
}

// Find runs filter, or opts.Filter when set, and classifies the results.
// Users and groups get their membership attached as opts requests.
func (ad *ActiveDirectory) Find(ctx context.Context, opts *QueryOptions, filter string) (*SearchResults, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	if f := opts.filter(); f != "" {
		filter = f
	}
	filter = strings.TrimSpace(filter)

	results := &SearchResults{
		Users:     []*User{},
		Groups:    []*Group{},
		Computers: []*Object{},
		Other:     []*Object{},
	}

	err := ad.observe(ctx, "find", map[string]any{"filter": filter}, func() (bool, error) {
		if filter == "" {
			return false, fmt.Errorf("%w: filter cannot be empty", ErrInvalidOptions)
		}
		if !strings.HasPrefix(filter, "(") {
			filter = "(" + filter + ")"
		}

		baseDN, err := ad.searchBase(ctx, opts)
		if err != nil {
			return false, err
		}

		var attrs []string
		if opts != nil {
			attrs = opts.Attributes
		}
		if len(attrs) == 0 {
			attrs = append(append([]string{}, ad.config.Attributes.User...), ad.config.Attributes.Group...)
		}
		proj := newProjection(attrs)

		entries, err := ad.searchAll(ctx, baseDN, filter, proj.wire("objectClass", "objectCategory"))
		if err != nil {
			return false, err
		}

		var userEntries, groupEntries []*ldap.Entry
		for _, entry := range entries {
			switch objectKind(entry) {
			case kindUser:
				userEntries = append(userEntries, entry)
			case kindGroup:
				groupEntries = append(groupEntries, entry)
			case kindComputer:
				results.Computers = append(results.Computers, &Object{DN: entry.DN, Attributes: proj.apply(entry)})
			default:
				results.Other = append(results.Other, &Object{DN: entry.DN, Attributes: proj.apply(entry)})
			}
		}

		users := make([]*User, len(userEntries))
		groups := make([]*Group, len(groupEntries))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ad.concurrency())
		for i, entry := range userEntries {
			g.Go(func() error {
				u, err := ad.newUser(gctx, opts, baseDN, proj, entry)
				users[i] = u
				return err
			})
		}
		for i, entry := range groupEntries {
			g.Go(func() error {
				grp, err := ad.newGroup(gctx, opts, baseDN, proj, entry)
				groups[i] = grp
				return err
			})
		}

		if err := g.Wait(); err != nil {
			return false, err
		}
		results.Users = append(results.Users, users...)
		results.Groups = append(results.Groups, groups...)

		return results.Len() > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
