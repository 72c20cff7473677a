package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	activedirectory "github.com/isometry/go-activedirectory"
)

// errNotFound is returned when a single-object lookup matches nothing.
var errNotFound = errors.New("not found")

// queryFlags are shared by commands that return users or groups.
type queryFlags struct {
	attributes []string
	membership []string
	filter     string
}

func (f *queryFlags) register(cmd *cobra.Command, withFilter bool) {
	cmd.Flags().StringSliceVarP(&f.attributes, "attributes", "a", nil, "attributes to return; dn is the entry DN and * is every attribute")
	cmd.Flags().StringSliceVarP(&f.membership, "include-membership", "m", nil, "resolve nested groups for: all, user or group")
	cmd.Flags().Lookup("include-membership").NoOptDefVal = string(activedirectory.MembershipAll)
	if withFilter {
		cmd.Flags().StringVarP(&f.filter, "filter", "f", "", "LDAP filter replacing the name lookup")
	}
}

func (f *queryFlags) options() (*activedirectory.QueryOptions, error) {
	opts := &activedirectory.QueryOptions{
		Attributes: f.attributes,
		Filter:     f.filter,
	}
	for _, m := range f.membership {
		scope, err := activedirectory.ParseMembershipScope(m)
		if err != nil {
			return nil, err
		}
		opts.IncludeMembership = append(opts.IncludeMembership, scope)
	}
	return opts, nil
}

func (a *app) userCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "user [name]",
		Short: "Look up a user by sAMAccountName, UPN, DN, objectGUID or SID",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			if len(args) == 0 && opts.Filter == "" {
				return errors.New("a user name or --filter is required")
			}
			var name string
			if len(args) > 0 {
				name = args[0]
			}

			user, err := a.client.FindUser(cmd.Context(), opts, name)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("user %q: %w", name, errNotFound)
			}
			return a.print(cmd.OutOrStdout(), user)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (a *app) usersCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "users [filter-fragment]",
		Short: "List users, optionally restricted by an LDAP filter fragment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			var query string
			if len(args) > 0 {
				query = args[0]
			}

			users, err := a.client.FindUsers(cmd.Context(), opts, query)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), users)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (a *app) groupsCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "groups <user>",
		Short: "List every group a user belongs to, including nested groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			groups, err := a.client.GetGroupMembershipForUser(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), groups)
		},
	}
	cmd.Flags().StringSliceVarP(&flags.attributes, "attributes", "a", nil, "group attributes to return")
	cmd.Flags().StringVarP(&flags.filter, "filter", "f", "", "LDAP filter replacing the user lookup")
	return cmd
}

func (a *app) groupCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "group <name>",
		Short: "Look up a group by cn, sAMAccountName, DN, objectGUID or SID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			group, err := a.client.FindGroup(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			if group == nil {
				return fmt.Errorf("group %q: %w", args[0], errNotFound)
			}
			return a.print(cmd.OutOrStdout(), group)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (a *app) membersCommand() *cobra.Command {
	var attributes []string
	cmd := &cobra.Command{
		Use:   "members <group>",
		Short: "List the users of a group and its nested groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.client.GetUsersForGroup(cmd.Context(), &activedirectory.QueryOptions{Attributes: attributes}, args[0])
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), users)
		},
	}
	cmd.Flags().StringSliceVarP(&attributes, "attributes", "a", nil, "user attributes to return")
	return cmd
}

func (a *app) memberOfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "member-of <user> <group>",
		Short: "Report whether a user is in a group, directly or through nesting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := a.client.IsUserMemberOf(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), map[string]any{
				"user":   args[0],
				"group":  args[1],
				"member": member,
			})
		},
	}
}

func (a *app) findCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "find <filter>",
		Short: "Run an LDAP filter and classify the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			results, err := a.client.Find(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), results)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (a *app) authCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auth <user>",
		Short: "Check a user's password, read from AD_AUTH_PASSWORD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := a.lookup("AD_AUTH_PASSWORD")
			if password == "" {
				return errors.New("AD_AUTH_PASSWORD must be set")
			}
			ok, err := a.client.Authenticate(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), map[string]any{
				"user":          args[0],
				"authenticated": ok,
			})
		},
	}
}

func (a *app) rootDSECommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rootdse [attribute...]",
		Short: "Read the root DSE",
		RunE: func(cmd *cobra.Command, args []string) error {
			dse, err := a.client.GetRootDSE(cmd.Context(), args)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), dse)
		},
	}
}

func (a *app) whoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity the client is bound as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.client.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), id)
		},
	}
}
