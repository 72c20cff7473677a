package validators

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	activedirectory "github.com/isometry/go-activedirectory"
)

var _ validator.String = membershipScopeValidator{}

type membershipScopeValidator struct{}

func (v membershipScopeValidator) Description(_ context.Context) string {
	return fmt.Sprintf("value must be one of: %s (case-insensitive)", scopeList())
}

func (v membershipScopeValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

func (v membershipScopeValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	if _, err := activedirectory.ParseMembershipScope(value); err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Membership Scope",
			fmt.Sprintf("The value %q is not valid. Must be one of: %s (case-insensitive)", value, scopeList()),
		)
	}
}

func scopeList() string {
	names := make([]string, len(activedirectory.MembershipScopes))
	for i, s := range activedirectory.MembershipScopes {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// MembershipScope returns a validator which accepts the include_membership
// values understood by the client, ignoring case and surrounding space.
//
// Unknown values and null values are skipped from validation.
func MembershipScope() validator.String {
	return membershipScopeValidator{}
}
