package activedirectory

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Authenticate checks username and password with a simple bind on a
// dedicated connection. Rejected credentials report false with a nil
// error; any other failure is returned. Empty passwords are refused
// because the directory would accept them as an unauthenticated bind.
func (ad *ActiveDirectory) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if err := ad.check(); err != nil {
		return false, err
	}
	if username == "" {
		return false, fmt.Errorf("%w: username cannot be empty", ErrInvalidOptions)
	}
	if password == "" {
		return false, fmt.Errorf("%w: password cannot be empty", ErrInvalidOptions)
	}
	ctx = logging(ctx)

	ok := false
	err := ad.observe(ctx, "authenticate", map[string]any{"username": username}, func() (bool, error) {
		err := ad.client.VerifyCredentials(ctx, username, password)
		switch {
		case err == nil:
			ok = true
		case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials):
			tflog.SubsystemInfo(ctx, Subsystem, "Authentication rejected", map[string]any{"username": username})
			return false, nil
		default:
			return false, err
		}
		return true, nil
	})
	return ok, err
}
