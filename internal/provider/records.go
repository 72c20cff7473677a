package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"

	activedirectory "github.com/isometry/go-activedirectory"
)

// ValueSeparator joins multi-valued attributes in the values map.
const ValueSeparator = ";"

// directory is the subset of *activedirectory.ActiveDirectory the data
// sources read from.
type directory interface {
	FindUser(ctx context.Context, opts *activedirectory.QueryOptions, username string) (*activedirectory.User, error)
	GetGroupMembershipForUser(ctx context.Context, opts *activedirectory.QueryOptions, username string) ([]*activedirectory.Group, error)
	FindGroup(ctx context.Context, opts *activedirectory.QueryOptions, groupName string) (*activedirectory.Group, error)
	GetUsersForGroup(ctx context.Context, opts *activedirectory.QueryOptions, groupName string) ([]*activedirectory.User, error)
}

var _ directory = (*activedirectory.ActiveDirectory)(nil)

// configureDirectory extracts the client handed over by the provider. It
// returns nil when the provider has not been configured yet.
func configureDirectory(providerData any, diags *diag.Diagnostics) directory {
	if providerData == nil {
		return nil
	}
	dir, ok := providerData.(directory)
	if !ok {
		diags.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *activedirectory.ActiveDirectory, got: %T. Please report this issue to the provider developers.", providerData),
		)
		return nil
	}
	return dir
}

func notConfigured(resp *datasource.ReadResponse) {
	resp.Diagnostics.AddError(
		"Provider Not Configured",
		"The Active Directory provider has not been configured. Check the provider block for errors.",
	)
}

// groupModel is one entry of a groups list.
type groupModel struct {
	DN          types.String `tfsdk:"dn"`
	CN          types.String `tfsdk:"cn"`
	Description types.String `tfsdk:"description"`
}

var groupObjectType = types.ObjectType{AttrTypes: map[string]attr.Type{
	"dn":          types.StringType,
	"cn":          types.StringType,
	"description": types.StringType,
}}

// attributeValue is null when name was not returned.
func attributeValue(a activedirectory.Attributes, name string) types.String {
	if !a.Has(name) {
		return types.StringNull()
	}
	return types.StringValue(strings.Join(a.Values(name), ValueSeparator))
}

func valuesMap(a activedirectory.Attributes) types.Map {
	elements := make(map[string]attr.Value, len(a))
	for _, k := range a.Keys() {
		elements[k] = types.StringValue(strings.Join(a[k], ValueSeparator))
	}
	return types.MapValueMust(types.StringType, elements)
}

func groupsList(ctx context.Context, groups []*activedirectory.Group) (types.List, diag.Diagnostics) {
	models := make([]groupModel, 0, len(groups))
	for _, g := range groups {
		models = append(models, groupModel{
			DN:          types.StringValue(g.DN),
			CN:          attributeValue(g.Attributes, "cn"),
			Description: attributeValue(g.Attributes, "description"),
		})
	}
	return types.ListValueFrom(ctx, groupObjectType, models)
}

// stringList returns the elements of a configured list of strings, or nil
// when it is null.
func stringList(ctx context.Context, list types.List, diags *diag.Diagnostics) []string {
	if list.IsNull() || list.IsUnknown() {
		return nil
	}
	var out []string
	diags.Append(list.ElementsAs(ctx, &out, false)...)
	return out
}
