package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	activedirectory "github.com/isometry/go-activedirectory"
	"github.com/isometry/go-activedirectory/internal/provider/validators"
)

var _ datasource.DataSource = &GroupDataSource{}
var _ datasource.DataSourceWithConfigure = &GroupDataSource{}

func NewGroupDataSource() datasource.DataSource {
	return &GroupDataSource{}
}

// GroupDataSource looks up a group, its parent groups and its users.
type GroupDataSource struct {
	directory directory
}

type GroupDataSourceModel struct {
	Name       types.String `tfsdk:"name"`
	BaseDN     types.String `tfsdk:"base_dn"`
	Attributes types.List   `tfsdk:"attributes"`

	ID       types.String `tfsdk:"id"`
	DN       types.String `tfsdk:"dn"`
	Scope    types.String `tfsdk:"scope"`
	Security types.Bool   `tfsdk:"security"`
	Values   types.Map    `tfsdk:"values"`
	MemberOf types.List   `tfsdk:"member_of"`
	UserDNs  types.List   `tfsdk:"user_dns"`
}

func (d *GroupDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_group"
}

func (d *GroupDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Retrieves an Active Directory group with the groups it belongs to and its nested user members.",

		Attributes: map[string]schema.Attribute{
			"name": schema.StringAttribute{
				MarkdownDescription: "The group, as a common name, SAM account name, Distinguished Name, objectGUID or SID.",
				Required:            true,
				Validators:          []validator.String{stringvalidator.LengthAtLeast(1)},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Search base. Defaults to the provider's base DN.",
				Optional:            true,
				Validators:          []validator.String{validators.IsValidDN()},
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attributes to return in `values`. Defaults to " +
					"`objectCategory`, `distinguishedName`, `cn` and `description`.",
				ElementType: types.StringType,
				Optional:    true,
			},

			"id": schema.StringAttribute{
				MarkdownDescription: "The Distinguished Name of the group.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The Distinguished Name of the group.",
				Computed:            true,
			},
			"scope": schema.StringAttribute{
				MarkdownDescription: "`Global`, `DomainLocal` or `Universal`. Null unless `groupType` was requested.",
				Computed:            true,
			},
			"security": schema.BoolAttribute{
				MarkdownDescription: "Whether this is a security group. Null unless `groupType` was requested.",
				Computed:            true,
			},
			"values": schema.MapAttribute{
				MarkdownDescription: "Returned attributes keyed by the requested name. " +
					"Multiple values are joined with `" + ValueSeparator + "`.",
				ElementType: types.StringType,
				Computed:    true,
			},
			"member_of": schema.ListNestedAttribute{
				MarkdownDescription: "Groups this group belongs to, directly or through nesting.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: groupAttributes(),
				},
			},
			"user_dns": schema.ListAttribute{
				MarkdownDescription: "Distinguished Names of the users in this group and its nested groups.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

func (d *GroupDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if dir := configureDirectory(req.ProviderData, &resp.Diagnostics); dir != nil {
		d.directory = dir
	}
}

func (d *GroupDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx, "ad_group")

	var data GroupDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if d.directory == nil {
		notConfigured(resp)
		return
	}

	name := data.Name.ValueString()
	baseDN := data.BaseDN.ValueString()

	group, err := d.directory.FindGroup(ctx, &activedirectory.QueryOptions{
		BaseDN:            baseDN,
		Attributes:        stringList(ctx, data.Attributes, &resp.Diagnostics),
		IncludeMembership: []activedirectory.MembershipScope{activedirectory.MembershipGroup},
	}, name)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Group",
			fmt.Sprintf("Could not read Active Directory group %q: %s", name, err.Error()),
		)
		return
	}
	if group == nil {
		resp.Diagnostics.AddError(
			"Group Not Found",
			fmt.Sprintf("No Active Directory group matched %q.", name),
		)
		return
	}

	// Members are looked up by DN so a renamed cn cannot match another group.
	users, err := d.directory.GetUsersForGroup(ctx, &activedirectory.QueryOptions{
		BaseDN:     baseDN,
		Attributes: []string{"dn"},
	}, group.DN)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Group Members",
			fmt.Sprintf("Could not resolve members of %q: %s", group.DN, err.Error()),
		)
		return
	}

	userDNs := make([]string, 0, len(users))
	for _, u := range users {
		userDNs = append(userDNs, u.DN)
	}

	data.ID = types.StringValue(group.DN)
	data.DN = types.StringValue(group.DN)
	data.Values = valuesMap(group.Attributes)

	data.Scope = types.StringNull()
	data.Security = types.BoolNull()
	if scope := group.Scope(); scope != "" {
		data.Scope = types.StringValue(scope)
		data.Security = types.BoolValue(group.Security())
	}

	memberOf, diags := groupsList(ctx, group.Groups)
	resp.Diagnostics.Append(diags...)
	data.MemberOf = memberOf

	dns, diags := types.ListValueFrom(ctx, types.StringType, userDNs)
	resp.Diagnostics.Append(diags...)
	data.UserDNs = dns
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.SubsystemDebug(ctx, subsystem, "Read group", map[string]any{
		"dn":           group.DN,
		"member_of":    len(group.Groups),
		"member_users": len(userDNs),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
