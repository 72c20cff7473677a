package provider

import (
	"context"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	activedirectory "github.com/isometry/go-activedirectory"
)

const (
	jdoeDN        = "CN=John Doe,OU=Users,DC=example,DC=com"
	janeDN        = "CN=Jane Roe,OU=Users,DC=example,DC=com"
	developersDN  = "CN=Developers,OU=Groups,DC=example,DC=com"
	engineeringDN = "CN=Engineering,OU=Groups,DC=example,DC=com"
)

type mockDirectory struct {
	mock.Mock
}

func newMockDirectory(t *testing.T) *mockDirectory {
	m := &mockDirectory{}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockDirectory) FindUser(ctx context.Context, opts *activedirectory.QueryOptions, username string) (*activedirectory.User, error) {
	args := m.Called(opts, username)
	user, _ := args.Get(0).(*activedirectory.User)
	return user, args.Error(1)
}

func (m *mockDirectory) GetGroupMembershipForUser(ctx context.Context, opts *activedirectory.QueryOptions, username string) ([]*activedirectory.Group, error) {
	args := m.Called(opts, username)
	groups, _ := args.Get(0).([]*activedirectory.Group)
	return groups, args.Error(1)
}

func (m *mockDirectory) FindGroup(ctx context.Context, opts *activedirectory.QueryOptions, groupName string) (*activedirectory.Group, error) {
	args := m.Called(opts, groupName)
	group, _ := args.Get(0).(*activedirectory.Group)
	return group, args.Error(1)
}

func (m *mockDirectory) GetUsersForGroup(ctx context.Context, opts *activedirectory.QueryOptions, groupName string) ([]*activedirectory.User, error) {
	args := m.Called(opts, groupName)
	users, _ := args.Get(0).([]*activedirectory.User)
	return users, args.Error(1)
}

func testGroup(dn, cn, description string) *activedirectory.Group {
	attrs := activedirectory.Attributes{"distinguishedName": {dn}, "cn": {cn}}
	if description != "" {
		attrs["description"] = []string{description}
	}
	return &activedirectory.Group{Object: activedirectory.Object{DN: dn, Attributes: attrs}}
}

func str(s string) tftypes.Value {
	return tftypes.NewValue(tftypes.String, s)
}

func strList(values ...string) tftypes.Value {
	elems := make([]tftypes.Value, len(values))
	for i, v := range values {
		elems[i] = str(v)
	}
	return tftypes.NewValue(tftypes.List{ElementType: tftypes.String}, elems)
}

// dataSourceConfig builds a configuration for ds from values keyed by
// attribute name. Attributes not in values are null.
func dataSourceConfig(t *testing.T, ds datasource.DataSource, values map[string]tftypes.Value) tfsdk.Config {
	t.Helper()

	resp := &datasource.SchemaResponse{}
	ds.Schema(t.Context(), datasource.SchemaRequest{}, resp)
	require.False(t, resp.Diagnostics.HasError(), resp.Diagnostics)

	typ, ok := resp.Schema.Type().TerraformType(t.Context()).(tftypes.Object)
	require.True(t, ok)

	raw := make(map[string]tftypes.Value, len(typ.AttributeTypes))
	for name, attrType := range typ.AttributeTypes {
		if v, ok := values[name]; ok {
			raw[name] = v
		} else {
			raw[name] = tftypes.NewValue(attrType, nil)
		}
	}

	return tfsdk.Config{Schema: resp.Schema, Raw: tftypes.NewValue(typ, raw)}
}

// readDataSource configures ds with dir and runs Read.
func readDataSource(t *testing.T, ds datasource.DataSource, dir directory, values map[string]tftypes.Value) (tfsdk.State, diag.Diagnostics) {
	t.Helper()
	ctx := t.Context()

	if dir != nil {
		configureResp := &datasource.ConfigureResponse{}
		ds.(datasource.DataSourceWithConfigure).Configure(ctx, datasource.ConfigureRequest{ProviderData: dir}, configureResp)
		require.False(t, configureResp.Diagnostics.HasError(), configureResp.Diagnostics)
	}

	config := dataSourceConfig(t, ds, values)
	resp := &datasource.ReadResponse{
		State: tfsdk.State{Schema: config.Schema, Raw: tftypes.NewValue(config.Raw.Type(), nil)},
	}
	ds.Read(ctx, datasource.ReadRequest{Config: config}, resp)
	return resp.State, resp.Diagnostics
}

// validateDataSource runs the data source level config validators.
func validateDataSource(t *testing.T, ds datasource.DataSourceWithConfigValidators, values map[string]tftypes.Value) diag.Diagnostics {
	t.Helper()

	config := dataSourceConfig(t, ds, values)
	var diags diag.Diagnostics
	for _, v := range ds.ConfigValidators(t.Context()) {
		resp := &datasource.ValidateConfigResponse{}
		v.ValidateDataSource(t.Context(), datasource.ValidateConfigRequest{Config: config}, resp)
		diags.Append(resp.Diagnostics...)
	}
	return diags
}

func configureDiagnostics(t *testing.T, ds datasource.DataSource, providerData any) diag.Diagnostics {
	t.Helper()

	resp := &datasource.ConfigureResponse{}
	ds.(datasource.DataSourceWithConfigure).Configure(t.Context(), datasource.ConfigureRequest{ProviderData: providerData}, resp)
	return resp.Diagnostics
}
