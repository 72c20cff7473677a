package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/datasourcevalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	activedirectory "github.com/isometry/go-activedirectory"
	"github.com/isometry/go-activedirectory/internal/provider/validators"
)

var _ datasource.DataSource = &UserDataSource{}
var _ datasource.DataSourceWithConfigure = &UserDataSource{}
var _ datasource.DataSourceWithConfigValidators = &UserDataSource{}

func NewUserDataSource() datasource.DataSource {
	return &UserDataSource{}
}

// UserDataSource looks up a single user.
type UserDataSource struct {
	directory directory
}

// UserDataSourceModel describes the ad_user data source.
type UserDataSourceModel struct {
	// Lookup (mutually exclusive)
	Username types.String `tfsdk:"username"`
	Filter   types.String `tfsdk:"filter"`

	BaseDN            types.String `tfsdk:"base_dn"`
	Attributes        types.List   `tfsdk:"attributes"`
	IncludeMembership types.List   `tfsdk:"include_membership"`

	// Computed
	ID     types.String `tfsdk:"id"`
	DN     types.String `tfsdk:"dn"`
	Values types.Map    `tfsdk:"values"`
	Groups types.List   `tfsdk:"groups"`
}

func (d *UserDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user"
}

func (d *UserDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Retrieves an Active Directory user by name or LDAP filter, optionally with its nested group membership.",

		Attributes: map[string]schema.Attribute{
			"username": schema.StringAttribute{
				MarkdownDescription: "The user to retrieve, as a SAM account name (`jdoe`), `DOMAIN\\jdoe`, " +
					"a User Principal Name (`jdoe@example.com`) or a Distinguished Name.",
				Optional: true,
			},
			"filter": schema.StringAttribute{
				MarkdownDescription: "An LDAP filter selecting the user, e.g. `(employeeID=1234)`. " +
					"The first matching entry is returned.",
				Optional:   true,
				Validators: []validator.String{validators.IsValidFilter()},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Search base. Defaults to the provider's base DN.",
				Optional:            true,
				Validators:          []validator.String{validators.IsValidDN()},
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attributes to return in `values`. Use `dn` for the entry DN and `*` for every attribute. " +
					"Defaults to a standard set of user attributes.",
				ElementType: types.StringType,
				Optional:    true,
			},
			"include_membership": schema.ListAttribute{
				MarkdownDescription: "Resolve nested group membership when this contains `all` or `user`. " +
					"Values are case-insensitive.",
				ElementType: types.StringType,
				Optional:    true,
				Validators: []validator.List{
					listvalidator.ValueStringsAre(validators.MembershipScope()),
				},
			},

			"id": schema.StringAttribute{
				MarkdownDescription: "The Distinguished Name of the user.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The Distinguished Name of the user.",
				Computed:            true,
			},
			"values": schema.MapAttribute{
				MarkdownDescription: "Returned attributes keyed by the requested name. " +
					"Multiple values are joined with `" + ValueSeparator + "`.",
				ElementType: types.StringType,
				Computed:    true,
			},
			"groups": schema.ListNestedAttribute{
				MarkdownDescription: "Nested groups of the user, deduplicated. Null unless `include_membership` was set.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: groupAttributes(),
				},
			},
		},
	}
}

func groupAttributes() map[string]schema.Attribute {
	return map[string]schema.Attribute{
		"dn": schema.StringAttribute{
			MarkdownDescription: "The Distinguished Name of the group.",
			Computed:            true,
		},
		"cn": schema.StringAttribute{
			MarkdownDescription: "The common name of the group.",
			Computed:            true,
		},
		"description": schema.StringAttribute{
			MarkdownDescription: "The description of the group.",
			Computed:            true,
		},
	}
}

func (d *UserDataSource) ConfigValidators(ctx context.Context) []datasource.ConfigValidator {
	return []datasource.ConfigValidator{
		datasourcevalidator.ExactlyOneOf(
			path.MatchRoot("username"),
			path.MatchRoot("filter"),
		),
	}
}

func (d *UserDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if dir := configureDirectory(req.ProviderData, &resp.Diagnostics); dir != nil {
		d.directory = dir
	}
}

func (d *UserDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx, "ad_user")

	var data UserDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if d.directory == nil {
		notConfigured(resp)
		return
	}

	opts := &activedirectory.QueryOptions{
		Filter:     data.Filter.ValueString(),
		BaseDN:     data.BaseDN.ValueString(),
		Attributes: stringList(ctx, data.Attributes, &resp.Diagnostics),
	}
	for _, s := range stringList(ctx, data.IncludeMembership, &resp.Diagnostics) {
		scope, err := activedirectory.ParseMembershipScope(s)
		if err != nil {
			resp.Diagnostics.AddAttributeError(path.Root("include_membership"), "Invalid Membership Scope", err.Error())
			continue
		}
		opts.IncludeMembership = append(opts.IncludeMembership, scope)
	}
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.SubsystemDebug(ctx, subsystem, "Looking up user", map[string]any{
		"username":           data.Username.ValueString(),
		"filter":             opts.Filter,
		"include_membership": opts.IncludeMembership,
	})

	user, err := d.directory.FindUser(ctx, opts, data.Username.ValueString())
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading User",
			fmt.Sprintf("Could not read Active Directory user: %s", err.Error()),
		)
		return
	}
	if user == nil {
		resp.Diagnostics.AddError(
			"User Not Found",
			"No Active Directory user matched the given username or filter.",
		)
		return
	}

	data.ID = types.StringValue(user.DN)
	data.DN = types.StringValue(user.DN)
	data.Values = valuesMap(user.Attributes)

	if user.Groups != nil {
		groups, diags := groupsList(ctx, user.Groups)
		resp.Diagnostics.Append(diags...)
		data.Groups = groups
	} else {
		data.Groups = types.ListNull(groupObjectType)
	}
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.SubsystemTrace(ctx, subsystem, "Read user", map[string]any{
		"dn":          user.DN,
		"attributes":  len(user.Attributes),
		"group_count": len(user.Groups),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
