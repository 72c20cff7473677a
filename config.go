package activedirectory

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

// Config configures an ActiveDirectory client. Zero fields take the values
// in their default tags; see ApplyDefaults.
type Config struct {
	// URLs are ldap:// or ldaps:// server URLs. Mutually exclusive with Domain.
	URLs []string `json:"url,omitempty" yaml:"url,omitempty"`

	// Domain is resolved to domain controllers through DNS SRV records.
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// BaseDN is the search base. The server's defaultNamingContext is used
	// when empty.
	BaseDN string `json:"base_dn,omitempty" yaml:"base_dn,omitempty"`

	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"password,omitempty"`

	Kerberos KerberosConfig `json:"kerberos" yaml:"kerberos"`
	TLS      TLSConfig      `json:"tls" yaml:"tls"`
	Pool     PoolConfig     `json:"pool" yaml:"pool"`
	Retry    RetryConfig    `json:"retry" yaml:"retry"`

	Attributes AttributeDefaults `json:"attributes" yaml:"attributes"`

	// MembershipConcurrency bounds the parallel searches issued per level
	// of nested membership resolution.
	MembershipConcurrency int `json:"membership_concurrency,omitempty" yaml:"membership_concurrency,omitempty" default:"8"`

	// CacheTTL enables caching of name resolution and parent group lookups.
	// Zero disables the cache.
	CacheTTL time.Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// PageSize is the RFC 2696 page size for multi-entry searches.
	PageSize uint32 `json:"page_size,omitempty" yaml:"page_size,omitempty" default:"1000"`
}

// KerberosConfig selects GSSAPI binds. Realm enables Kerberos; credentials
// come from CCache, Keytab or Username and Password, in that order.
type KerberosConfig struct {
	Realm  string `json:"realm,omitempty" yaml:"realm,omitempty"`
	Keytab string `json:"keytab,omitempty" yaml:"keytab,omitempty"`
	Config string `json:"config,omitempty" yaml:"config,omitempty"`
	CCache string `json:"ccache,omitempty" yaml:"ccache,omitempty"`
	SPN    string `json:"spn,omitempty" yaml:"spn,omitempty"`
}

type TLSConfig struct {
	// Disable keeps ldap:// connections in plain text instead of upgrading
	// them with StartTLS.
	Disable bool `json:"disable,omitempty" yaml:"disable,omitempty"`

	SkipVerify     bool   `json:"skip_verify,omitempty" yaml:"skip_verify,omitempty"`
	CACertFile     string `json:"ca_cert_file,omitempty" yaml:"ca_cert_file,omitempty"`
	CACert         string `json:"ca_cert,omitempty" yaml:"ca_cert,omitempty"`
	ClientCertFile string `json:"client_cert_file,omitempty" yaml:"client_cert_file,omitempty"`
	ClientKeyFile  string `json:"client_key_file,omitempty" yaml:"client_key_file,omitempty"`
}

type PoolConfig struct {
	MaxConnections int           `json:"max_connections,omitempty" yaml:"max_connections,omitempty" default:"10"`
	MaxIdleTime    time.Duration `json:"max_idle_time,omitempty" yaml:"max_idle_time,omitempty" default:"5m"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" default:"30s"`

	// HealthCheck is the background health check interval. A negative
	// value disables it.
	HealthCheck time.Duration `json:"health_check,omitempty" yaml:"health_check,omitempty" default:"30s"`
}

type RetryConfig struct {
	MaxRetries     int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty" default:"3"`
	InitialBackoff time.Duration `json:"initial_backoff,omitempty" yaml:"initial_backoff,omitempty" default:"500ms"`
	MaxBackoff     time.Duration `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty" default:"30s"`
	BackoffFactor  float64       `json:"backoff_factor,omitempty" yaml:"backoff_factor,omitempty" default:"2.0"`
}

// AttributeDefaults are the attributes returned when QueryOptions names none.
type AttributeDefaults struct {
	User  []string `json:"user,omitempty" yaml:"user,omitempty" default:"[\"dn\",\"userPrincipalName\",\"sAMAccountName\",\"mail\",\"lockoutTime\",\"whenCreated\",\"pwdLastSet\",\"userAccountControl\",\"employeeID\",\"sn\",\"givenName\",\"initials\",\"cn\",\"displayName\",\"comment\",\"description\"]"`
	Group []string `json:"group,omitempty" yaml:"group,omitempty" default:"[\"objectCategory\",\"distinguishedName\",\"cn\",\"description\"]"`
}

// DefaultUserAttributes returns the attributes returned for users when none
// are requested.
func DefaultUserAttributes() []string {
	var a AttributeDefaults
	_ = defaults.Set(&a)
	return a.User
}

// DefaultGroupAttributes returns the attributes returned for groups when
// none are requested.
func DefaultGroupAttributes() []string {
	var a AttributeDefaults
	_ = defaults.Set(&a)
	return a.Group
}

// ApplyDefaults fills zero fields from their default tags.
func (c *Config) ApplyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to set default values: %w", err)
	}
	return nil
}

// Validate checks c after defaults have been applied.
func (c *Config) Validate() error {
	switch {
	case len(c.URLs) == 0 && c.Domain == "":
		return fmt.Errorf("%w: either url or domain must be set", ErrInvalidConfig)
	case len(c.URLs) > 0 && c.Domain != "":
		return fmt.Errorf("%w: url and domain are mutually exclusive", ErrInvalidConfig)
	case len(c.Attributes.User) == 0:
		return fmt.Errorf("%w: default user attributes cannot be empty", ErrInvalidConfig)
	case len(c.Attributes.Group) == 0:
		return fmt.Errorf("%w: default group attributes cannot be empty", ErrInvalidConfig)
	case c.MembershipConcurrency < 0:
		return fmt.Errorf("%w: membership concurrency cannot be negative", ErrInvalidConfig)
	case c.CacheTTL < 0:
		return fmt.Errorf("%w: cache TTL cannot be negative", ErrInvalidConfig)
	case c.Pool.MaxConnections < 0 || c.Pool.MaxConnections > ldapclient.MaxConnectionPoolLimit:
		return fmt.Errorf("%w: max connections must be between 1 and %d", ErrInvalidConfig, ldapclient.MaxConnectionPoolLimit)
	case c.Pool.Timeout < 0 || c.Pool.MaxIdleTime < 0:
		return fmt.Errorf("%w: pool durations cannot be negative", ErrInvalidConfig)
	case c.Retry.MaxRetries < 0:
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	case c.Retry.BackoffFactor <= 1:
		return fmt.Errorf("%w: backoff factor must be greater than 1", ErrInvalidConfig)
	}

	for _, u := range c.URLs {
		if _, err := ldapclient.ParseLDAPURL(u); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if c.Kerberos.Realm != "" && c.Kerberos.Keytab == "" && c.Kerberos.CCache == "" && c.Username == "" {
		return fmt.Errorf("%w: kerberos requires a keytab, credential cache or username", ErrInvalidConfig)
	}

	return nil
}

// connectionConfig maps c onto the transport configuration.
func (c *Config) connectionConfig() *ldapclient.ConnectionConfig {
	cc := ldapclient.DefaultConfig()

	cc.Domain = strings.TrimSpace(c.Domain)
	cc.LDAPURLs = c.URLs
	cc.BaseDN = c.BaseDN
	cc.Timeout = c.Pool.Timeout
	cc.PageSize = c.PageSize

	cc.Username = c.Username
	cc.Password = c.Password
	cc.KerberosRealm = c.Kerberos.Realm
	cc.KerberosKeytab = c.Kerberos.Keytab
	cc.KerberosConfig = c.Kerberos.Config
	cc.KerberosCCache = c.Kerberos.CCache
	cc.KerberosSPN = c.Kerberos.SPN

	cc.UseTLS = !c.TLS.Disable
	cc.SkipTLS = c.TLS.Disable
	cc.TLSConfig.InsecureSkipVerify = c.TLS.SkipVerify
	cc.TLSCACertFile = c.TLS.CACertFile
	cc.TLSCACert = c.TLS.CACert
	cc.TLSClientCertFile = c.TLS.ClientCertFile
	cc.TLSClientKeyFile = c.TLS.ClientKeyFile

	cc.MaxConnections = c.Pool.MaxConnections
	cc.MaxIdleTime = c.Pool.MaxIdleTime
	cc.HealthCheck = max(c.Pool.HealthCheck, 0)

	cc.MaxRetries = c.Retry.MaxRetries
	cc.InitialBackoff = c.Retry.InitialBackoff
	cc.MaxBackoff = c.Retry.MaxBackoff
	cc.BackoffFactor = c.Retry.BackoffFactor

	return cc
}
