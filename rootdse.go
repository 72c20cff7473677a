package activedirectory

import (
	"context"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

// Identity is the authorization identity of the bound connection.
type Identity struct {
	AuthzID           string `json:"authz_id" yaml:"authz_id"`
	Format            string `json:"format" yaml:"format"`
	DN                string `json:"dn,omitempty" yaml:"dn,omitempty"`
	UserPrincipalName string `json:"user_principal_name,omitempty" yaml:"user_principal_name,omitempty"`
	SAMAccountName    string `json:"sam_account_name,omitempty" yaml:"sam_account_name,omitempty"`
	SID               string `json:"sid,omitempty" yaml:"sid,omitempty"`
}

// GetRootDSE reads the root DSE. Every attribute, operational ones
// included, is returned when attributes is empty.
func (ad *ActiveDirectory) GetRootDSE(ctx context.Context, attributes []string) (map[string][]string, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	var out map[string][]string
	err := ad.observe(ctx, "get_root_dse", nil, func() (bool, error) {
		entry, err := ad.client.GetRootDSE(ctx, attributes)
		if err != nil {
			return false, err
		}
		out = make(map[string][]string, len(entry.Attributes))
		for _, attr := range entry.Attributes {
			out[attr.Name] = attr.Values
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WhoAmI returns the identity the pooled connections are bound as.
func (ad *ActiveDirectory) WhoAmI(ctx context.Context) (*Identity, error) {
	if err := ad.check(); err != nil {
		return nil, err
	}
	ctx = logging(ctx)

	var id *Identity
	err := ad.observe(ctx, "whoami", nil, func() (bool, error) {
		res, err := ad.client.WhoAmI(ctx)
		if err != nil {
			return false, err
		}
		id = identity(res)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

func identity(res *ldapclient.WhoAmIResult) *Identity {
	return &Identity{
		AuthzID:           res.AuthzID,
		Format:            res.Format,
		DN:                res.DN,
		UserPrincipalName: res.UserPrincipalName,
		SAMAccountName:    res.SAMAccountName,
		SID:               res.SID,
	}
}
