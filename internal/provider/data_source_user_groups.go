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

var _ datasource.DataSource = &UserGroupsDataSource{}
var _ datasource.DataSourceWithConfigure = &UserGroupsDataSource{}

func NewUserGroupsDataSource() datasource.DataSource {
	return &UserGroupsDataSource{}
}

// UserGroupsDataSource lists the nested groups of a user.
type UserGroupsDataSource struct {
	directory directory
}

type UserGroupsDataSourceModel struct {
	Username types.String `tfsdk:"username"`
	BaseDN   types.String `tfsdk:"base_dn"`

	ID     types.String `tfsdk:"id"`
	Groups types.List   `tfsdk:"groups"`
}

func (d *UserGroupsDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user_groups"
}

func (d *UserGroupsDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists every group a user belongs to, directly or through nested groups. " +
			"An unknown user yields an empty list.",

		Attributes: map[string]schema.Attribute{
			"username": schema.StringAttribute{
				MarkdownDescription: "The user, as a SAM account name, User Principal Name or Distinguished Name.",
				Required:            true,
				Validators:          []validator.String{stringvalidator.LengthAtLeast(1)},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Search base. Defaults to the provider's base DN.",
				Optional:            true,
				Validators:          []validator.String{validators.IsValidDN()},
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "The username that was looked up.",
				Computed:            true,
			},
			"groups": schema.ListNestedAttribute{
				MarkdownDescription: "The user's groups in breadth-first order, deduplicated by DN.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: groupAttributes(),
				},
			},
		},
	}
}

func (d *UserGroupsDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if dir := configureDirectory(req.ProviderData, &resp.Diagnostics); dir != nil {
		d.directory = dir
	}
}

func (d *UserGroupsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx, "ad_user_groups")

	var data UserGroupsDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if d.directory == nil {
		notConfigured(resp)
		return
	}

	username := data.Username.ValueString()
	opts := &activedirectory.QueryOptions{BaseDN: data.BaseDN.ValueString()}

	groups, err := d.directory.GetGroupMembershipForUser(ctx, opts, username)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading User Groups",
			fmt.Sprintf("Could not resolve group membership for %q: %s", username, err.Error()),
		)
		return
	}

	list, diags := groupsList(ctx, groups)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(username)
	data.Groups = list

	tflog.SubsystemDebug(ctx, subsystem, "Resolved user groups", map[string]any{
		"username":    username,
		"group_count": len(groups),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
