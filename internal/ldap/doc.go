/*
Package ldap is the Active Directory transport used by the query layer.

# Connections

Client wraps a ConnectionPool that:

  - discovers domain controllers through DNS SRV records, or uses explicit URLs
  - dials LDAPS directly or upgrades plain connections with StartTLS
  - binds with a password, Kerberos (GSSAPI) or a TLS client certificate
  - retries retryable failures with exponential backoff
  - health-checks idle connections in the background

Searches are paged with the RFC 2696 control. Attributes the server returns
in ranges (member;range=0-1499) are completed by ExpandRangedAttributes.

# Identifiers

Objects may be named by DN, GUID, SID, userPrincipalName or sAMAccountName.
DetectIdentifierType classifies a name and IdentifierFilter turns it into a
search filter. objectGUID and objectSid values convert between their binary
and string forms with GUIDBytesToString and SIDBytesToString.

# Errors

Failures are returned as *LDAPError, which records the operation, result
code and an ErrorCategory, and reports whether a retry may succeed.

# Logging

All logging goes through the tflog "ldap" subsystem. Install it with
WithLogging; its level is read from TF_LOG_PROVIDER_AD_LDAP.

	ctx = ldap.WithLogging(ctx)
	client, err := ldap.NewClient(ctx, &ldap.ConnectionConfig{
		Domain:   "example.com",
		Username: "svc-query@example.com",
		Password: password,
		// remaining fields from ldap.DefaultConfig()
	})
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := client.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN: "DC=example,DC=com",
		Scope:  ldap.ScopeWholeSubtree,
		Filter: "(objectCategory=Group)",
	})
*/
package ldap
