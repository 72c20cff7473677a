package validators

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
)

var _ validator.String = syntaxValidator{}

// syntaxValidator rejects strings that go-ldap cannot parse.
type syntaxValidator struct {
	kind  string
	parse func(string) error
}

func (v syntaxValidator) Description(_ context.Context) string {
	return "value must be a valid " + v.kind
}

func (v syntaxValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

func (v syntaxValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()

	err := v.parse(value)
	if err == nil && strings.TrimSpace(value) == "" {
		err = fmt.Errorf("%s cannot be empty", v.kind)
	}
	if err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid "+v.kind,
			fmt.Sprintf("The value %q is not a valid %s: %s", value, v.kind, err.Error()),
		)
	}
}

// IsValidDN returns a validator which ensures that any configured
// attribute value is a Distinguished Name.
//
// Unknown values and null values are skipped from validation.
func IsValidDN() validator.String {
	return syntaxValidator{
		kind: "Distinguished Name",
		parse: func(s string) error {
			_, err := ldap.ParseDN(s)
			return err
		},
	}
}

// IsValidFilter returns a validator which ensures that any configured
// attribute value compiles as an RFC 4515 search filter.
func IsValidFilter() validator.String {
	return syntaxValidator{
		kind: "LDAP filter",
		parse: func(s string) error {
			_, err := ldap.CompileFilter(strings.TrimSpace(s))
			return err
		},
	}
}
