// Package activedirectory queries Active Directory over LDAP.
//
// It looks up users and groups by any of their names, projects the
// attributes a caller asks for, and resolves nested group membership:
//
//	ad, err := activedirectory.New(ctx, &activedirectory.Config{
//		URLs:     []string{"ldaps://dc1.example.com"},
//		Username: "svc-query@example.com",
//		Password: os.Getenv("AD_PASSWORD"),
//	})
//	if err != nil {
//		return err
//	}
//	defer ad.Close()
//
//	user, err := ad.FindUser(ctx, &activedirectory.QueryOptions{
//		IncludeMembership: []activedirectory.MembershipScope{activedirectory.MembershipUser},
//	}, "jdoe")
//
// Lookups that match nothing are not errors: FindUser and FindGroup return
// nil, and the membership operations return an empty slice. Directory
// failures are returned wrapped, and can be inspected with errors.As for
// *ldap.Error from github.com/go-ldap/ldap/v3.
//
// Logging goes through terraform-plugin-log under the "activedirectory"
// and "ldap" subsystems and is silent unless the context carries a root
// logger.
package activedirectory
