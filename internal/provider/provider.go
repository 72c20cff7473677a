package provider

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	activedirectory "github.com/isometry/go-activedirectory"
	"github.com/isometry/go-activedirectory/internal/provider/validators"
)

var _ provider.Provider = &ActiveDirectoryProvider{}
var _ provider.ProviderWithConfigValidators = &ActiveDirectoryProvider{}

// ActiveDirectoryProvider defines the provider implementation.
type ActiveDirectoryProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string

	// getenv resolves AD_* fallbacks. Nil means os.Getenv.
	getenv func(string) string
}

// ActiveDirectoryProviderModel describes the provider data model.
type ActiveDirectoryProviderModel struct {
	Domain  types.String `tfsdk:"domain"`
	LdapURL types.String `tfsdk:"ldap_url"`
	BaseDN  types.String `tfsdk:"base_dn"`

	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	KerberosRealm  types.String `tfsdk:"kerberos_realm"`
	KerberosKeytab types.String `tfsdk:"kerberos_keytab"`
	KerberosConfig types.String `tfsdk:"kerberos_config"`
	KerberosCCache types.String `tfsdk:"kerberos_ccache"`
	KerberosSPN    types.String `tfsdk:"kerberos_spn"`

	UseTLS            types.Bool   `tfsdk:"use_tls"`
	SkipTLSVerify     types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile     types.String `tfsdk:"tls_ca_cert_file"`
	TLSCACert         types.String `tfsdk:"tls_ca_cert"`
	TLSClientCertFile types.String `tfsdk:"tls_client_cert_file"`
	TLSClientKeyFile  types.String `tfsdk:"tls_client_key_file"`

	// Seconds, except initial_backoff which is milliseconds.
	MaxConnections types.Int64 `tfsdk:"max_connections"`
	MaxIdleTime    types.Int64 `tfsdk:"max_idle_time"`
	ConnectTimeout types.Int64 `tfsdk:"connect_timeout"`
	MaxRetries     types.Int64 `tfsdk:"max_retries"`
	InitialBackoff types.Int64 `tfsdk:"initial_backoff"`
	MaxBackoff     types.Int64 `tfsdk:"max_backoff"`

	CacheTTL              types.Int64 `tfsdk:"cache_ttl"`
	MembershipConcurrency types.Int64 `tfsdk:"membership_concurrency"`
}

func (p *ActiveDirectoryProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "ad"
	resp.Version = p.version
}

func envDescription(description, envVar string) string {
	return description + " Can be set via the `" + envVar + "` environment variable."
}

func (p *ActiveDirectoryProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The Active Directory provider reads users, groups and nested group membership via LDAP/LDAPS. " +
			"Domain controllers are found through SRV records or given directly as URLs.",
		Attributes: map[string]schema.Attribute{
			"domain": schema.StringAttribute{
				MarkdownDescription: envDescription("Active Directory domain name for SRV-based discovery (e.g., `example.com`). "+
					"Mutually exclusive with `ldap_url`.", "AD_DOMAIN"),
				Optional:   true,
				Validators: []validator.String{stringvalidator.LengthAtLeast(1)},
			},
			"ldap_url": schema.StringAttribute{
				MarkdownDescription: envDescription("Comma-separated LDAP/LDAPS URLs (e.g., `ldaps://dc1.example.com:636`). "+
					"Mutually exclusive with `domain`.", "AD_LDAP_URL"),
				Optional:   true,
				Validators: []validator.String{stringvalidator.LengthAtLeast(1)},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: envDescription("Base DN for searches (e.g., `DC=example,DC=com`). "+
					"Discovered from the root DSE when unset.", "AD_BASE_DN"),
				Optional:   true,
				Validators: []validator.String{validators.IsValidDN()},
			},

			"username": schema.StringAttribute{
				MarkdownDescription: envDescription("Bind username as a DN, UPN or SAM account name.", "AD_USERNAME"),
				Optional:            true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: envDescription("Bind password.", "AD_PASSWORD"),
				Optional:            true,
				Sensitive:           true,
			},

			"kerberos_realm": schema.StringAttribute{
				MarkdownDescription: envDescription("Kerberos realm for GSSAPI binds (e.g., `EXAMPLE.COM`).", "AD_KERBEROS_REALM"),
				Optional:            true,
			},
			"kerberos_keytab": schema.StringAttribute{
				MarkdownDescription: envDescription("Path to a Kerberos keytab.", "AD_KERBEROS_KEYTAB"),
				Optional:            true,
			},
			"kerberos_config": schema.StringAttribute{
				MarkdownDescription: envDescription("Path to krb5.conf.", "AD_KERBEROS_CONFIG"),
				Optional:            true,
			},
			"kerberos_ccache": schema.StringAttribute{
				MarkdownDescription: envDescription("Path to a Kerberos credential cache.", "AD_KERBEROS_CCACHE"),
				Optional:            true,
			},
			"kerberos_spn": schema.StringAttribute{
				MarkdownDescription: envDescription("Service principal name of the LDAP service.", "AD_KERBEROS_SPN"),
				Optional:            true,
			},

			"use_tls": schema.BoolAttribute{
				MarkdownDescription: envDescription("Upgrade `ldap://` connections with StartTLS. Defaults to `true`.", "AD_USE_TLS"),
				Optional:            true,
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: envDescription("Skip server certificate verification.", "AD_SKIP_TLS_VERIFY"),
				Optional:            true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: envDescription("Path to a PEM CA bundle.", "AD_TLS_CA_CERT_FILE"),
				Optional:            true,
			},
			"tls_ca_cert": schema.StringAttribute{
				MarkdownDescription: envDescription("PEM CA bundle content.", "AD_TLS_CA_CERT"),
				Optional:            true,
				Sensitive:           true,
			},
			"tls_client_cert_file": schema.StringAttribute{
				MarkdownDescription: envDescription("Path to a PEM client certificate.", "AD_TLS_CLIENT_CERT_FILE"),
				Optional:            true,
			},
			"tls_client_key_file": schema.StringAttribute{
				MarkdownDescription: envDescription("Path to a PEM client key.", "AD_TLS_CLIENT_KEY_FILE"),
				Optional:            true,
			},

			"max_connections": schema.Int64Attribute{
				MarkdownDescription: envDescription("Maximum pooled connections. Defaults to `10`.", "AD_MAX_CONNECTIONS"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.Between(1, 100)},
			},
			"max_idle_time": schema.Int64Attribute{
				MarkdownDescription: envDescription("Seconds before an idle connection is closed. Defaults to `300`.", "AD_MAX_IDLE_TIME"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: envDescription("Connection timeout in seconds. Defaults to `30`.", "AD_CONNECT_TIMEOUT"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: envDescription("Retries for transient failures. Defaults to `3`.", "AD_MAX_RETRIES"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(0)},
			},
			"initial_backoff": schema.Int64Attribute{
				MarkdownDescription: envDescription("First retry delay in milliseconds. Defaults to `500`.", "AD_INITIAL_BACKOFF"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},
			"max_backoff": schema.Int64Attribute{
				MarkdownDescription: envDescription("Longest retry delay in seconds. Defaults to `30`.", "AD_MAX_BACKOFF"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},

			"cache_ttl": schema.Int64Attribute{
				MarkdownDescription: envDescription("Seconds to cache name and parent group lookups. `0` disables caching.", "AD_CACHE_TTL"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(0)},
			},
			"membership_concurrency": schema.Int64Attribute{
				MarkdownDescription: envDescription("Parallel searches per level of nested membership. Defaults to `8`.", "AD_MEMBERSHIP_CONCURRENCY"),
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},
		},
	}
}

func (p *ActiveDirectoryProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		providervalidator.Conflicting(
			path.MatchRoot("domain"),
			path.MatchRoot("ldap_url"),
		),
		providervalidator.Conflicting(
			path.MatchRoot("tls_ca_cert_file"),
			path.MatchRoot("tls_ca_cert"),
		),
	}
}

func (p *ActiveDirectoryProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	ctx = p.configureLogging(ctx)

	var data ActiveDirectoryProviderModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	cfg := p.buildConfig(&data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Info(ctx, "Configuring Active Directory provider", map[string]any{
		"domain":         cfg.Domain,
		"ldap_url":       cfg.URLs,
		"base_dn":        cfg.BaseDN,
		"kerberos_realm": cfg.Kerberos.Realm,
		"tls_disabled":   cfg.TLS.Disable,
	})

	ad, err := activedirectory.New(ctx, cfg)
	if err != nil {
		summary := "Failed to Create Active Directory Client"
		if errors.Is(err, activedirectory.ErrInvalidConfig) {
			summary = "Invalid Provider Configuration"
		}
		resp.Diagnostics.AddError(summary, err.Error())
		return
	}

	start := time.Now()
	if err := ad.Ping(ctx); err != nil {
		_ = ad.Close()
		resp.Diagnostics.AddError(
			"Unable to Connect to Active Directory",
			"The provider could not bind to a domain controller: "+err.Error(),
		)
		return
	}
	tflog.Debug(ctx, "Connected to Active Directory", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	resp.DataSourceData = ad
	resp.ResourceData = ad
}

func (p *ActiveDirectoryProvider) configureLogging(ctx context.Context) context.Context {
	ctx = tflog.SetField(ctx, "provider", "ad")
	ctx = tflog.SetField(ctx, "provider_version", p.version)
	return tflog.MaskFieldValuesWithFieldKeys(ctx, "password")
}

// buildConfig resolves data and its AD_* fallbacks into a client
// configuration. Defaults are left to activedirectory.Config.
func (p *ActiveDirectoryProvider) buildConfig(data *ActiveDirectoryProviderModel, diags *diag.Diagnostics) *activedirectory.Config {
	cfg := &activedirectory.Config{
		Domain:   p.stringValue(data.Domain, "AD_DOMAIN"),
		BaseDN:   p.stringValue(data.BaseDN, "AD_BASE_DN"),
		Username: p.stringValue(data.Username, "AD_USERNAME"),
		Password: p.stringValue(data.Password, "AD_PASSWORD"),
		Kerberos: activedirectory.KerberosConfig{
			Realm:  p.stringValue(data.KerberosRealm, "AD_KERBEROS_REALM"),
			Keytab: p.stringValue(data.KerberosKeytab, "AD_KERBEROS_KEYTAB"),
			Config: p.stringValue(data.KerberosConfig, "AD_KERBEROS_CONFIG"),
			CCache: p.stringValue(data.KerberosCCache, "AD_KERBEROS_CCACHE"),
			SPN:    p.stringValue(data.KerberosSPN, "AD_KERBEROS_SPN"),
		},
		TLS: activedirectory.TLSConfig{
			Disable:        !p.boolValue(data.UseTLS, "AD_USE_TLS", true),
			SkipVerify:     p.boolValue(data.SkipTLSVerify, "AD_SKIP_TLS_VERIFY", false),
			CACertFile:     p.stringValue(data.TLSCACertFile, "AD_TLS_CA_CERT_FILE"),
			CACert:         p.stringValue(data.TLSCACert, "AD_TLS_CA_CERT"),
			ClientCertFile: p.stringValue(data.TLSClientCertFile, "AD_TLS_CLIENT_CERT_FILE"),
			ClientKeyFile:  p.stringValue(data.TLSClientKeyFile, "AD_TLS_CLIENT_KEY_FILE"),
		},
		Pool: activedirectory.PoolConfig{
			MaxConnections: int(p.int64Value(data.MaxConnections, "AD_MAX_CONNECTIONS")),
			MaxIdleTime:    time.Duration(p.int64Value(data.MaxIdleTime, "AD_MAX_IDLE_TIME")) * time.Second,
			Timeout:        time.Duration(p.int64Value(data.ConnectTimeout, "AD_CONNECT_TIMEOUT")) * time.Second,
		},
		Retry: activedirectory.RetryConfig{
			MaxRetries:     int(p.int64Value(data.MaxRetries, "AD_MAX_RETRIES")),
			InitialBackoff: time.Duration(p.int64Value(data.InitialBackoff, "AD_INITIAL_BACKOFF")) * time.Millisecond,
			MaxBackoff:     time.Duration(p.int64Value(data.MaxBackoff, "AD_MAX_BACKOFF")) * time.Second,
		},
		CacheTTL:              time.Duration(p.int64Value(data.CacheTTL, "AD_CACHE_TTL")) * time.Second,
		MembershipConcurrency: int(p.int64Value(data.MembershipConcurrency, "AD_MEMBERSHIP_CONCURRENCY")),
	}

	for u := range strings.SplitSeq(p.stringValue(data.LdapURL, "AD_LDAP_URL"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			cfg.URLs = append(cfg.URLs, u)
		}
	}

	switch {
	case cfg.Domain == "" && len(cfg.URLs) == 0:
		diags.AddError(
			"Missing Connection Configuration",
			"Either 'domain' or 'ldap_url' must be configured, or set the AD_DOMAIN or AD_LDAP_URL environment variable.",
		)
	case cfg.Domain != "" && len(cfg.URLs) > 0:
		diags.AddError(
			"Conflicting Connection Configuration",
			"Only one of 'domain' (AD_DOMAIN) and 'ldap_url' (AD_LDAP_URL) may be set.",
		)
	}

	hasPassword := cfg.Username != "" && cfg.Password != ""
	hasKerberos := cfg.Kerberos.Realm != "" && (cfg.Kerberos.Keytab != "" || cfg.Kerberos.CCache != "" || hasPassword)
	if !hasPassword && !hasKerberos {
		diags.AddError(
			"Missing Authentication Configuration",
			"Either username/password or Kerberos authentication must be configured. "+
				"For username/password: provide 'username' and 'password' or set AD_USERNAME and AD_PASSWORD. "+
				"For Kerberos: provide 'kerberos_realm' and one of 'kerberos_keytab', 'kerberos_ccache' or 'username'/'password'.",
		)
	}

	return cfg
}

func (p *ActiveDirectoryProvider) env(name string) string {
	if p.getenv != nil {
		return p.getenv(name)
	}
	return os.Getenv(name)
}

func (p *ActiveDirectoryProvider) stringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && !configValue.IsUnknown() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return p.env(envVar)
}

func (p *ActiveDirectoryProvider) boolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() && !configValue.IsUnknown() {
		return configValue.ValueBool()
	}
	if parsed, err := strconv.ParseBool(p.env(envVar)); err == nil {
		return parsed
	}
	return defaultValue
}

// int64Value returns zero when neither is set, leaving the field to its
// default tag.
func (p *ActiveDirectoryProvider) int64Value(configValue types.Int64, envVar string) int64 {
	if !configValue.IsNull() && !configValue.IsUnknown() {
		return configValue.ValueInt64()
	}
	if parsed, err := strconv.ParseInt(p.env(envVar), 10, 64); err == nil {
		return parsed
	}
	return 0
}

func (p *ActiveDirectoryProvider) Resources(ctx context.Context) []func() resource.Resource {
	return nil
}

func (p *ActiveDirectoryProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewUserDataSource,
		NewUserGroupsDataSource,
		NewGroupDataSource,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &ActiveDirectoryProvider{version: version}
	}
}
