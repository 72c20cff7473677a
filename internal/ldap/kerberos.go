package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const defaultKrb5ConfPath = "/etc/krb5.conf"

// performKerberosAuth performs a GSSAPI bind on conn.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo) error {
	krb5conf, err := loadKrb5Config(ctx, cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	client, err := newKerberosClient(ctx, cfg, krb5conf)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer client.Close()

	spn, err := buildServicePrincipal(cfg, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Performing GSSAPI bind", map[string]any{
		"spn": spn,
	})

	if err := conn.GSSAPIBind(client, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// loadKrb5Config loads krb5.conf from the configured or default path. When
// neither exists, a configuration relying on DNS KDC discovery is generated
// for the realm.
func loadKrb5Config(ctx context.Context, cfg *ConnectionConfig) (*krb5config.Config, error) {
	if cfg.KerberosConfig != "" {
		if !fileExists(cfg.KerberosConfig) {
			return nil, fmt.Errorf("kerberos configuration file not found at %s", cfg.KerberosConfig)
		}
		return krb5config.Load(cfg.KerberosConfig)
	}

	if fileExists(defaultKrb5ConfPath) {
		return krb5config.Load(defaultKrb5ConfPath)
	}

	_, realm := kerberosPrincipal(cfg)
	if realm == "" {
		return nil, fmt.Errorf("no krb5.conf found and no realm available to generate one")
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Generating runtime krb5.conf", map[string]any{
		"realm":  realm,
		"domain": cfg.Domain,
	})

	return krb5config.NewFromString(runtimeKrb5Conf(realm, cfg.Domain))
}

// runtimeKrb5Conf renders a krb5.conf that discovers KDCs through DNS.
func runtimeKrb5Conf(realm, domain string) string {
	realm = strings.ToUpper(realm)
	if domain == "" {
		domain = realm
	}
	domain = strings.ToLower(domain)

	return fmt.Sprintf(`[libdefaults]
  default_realm = %[1]s
  dns_lookup_kdc = true
  dns_lookup_realm = false
  rdns = false

[domain_realm]
  .%[2]s = %[1]s
  %[2]s = %[1]s
`, realm, domain)
}

// newKerberosClient picks credentials in order: explicit ccache, default
// ccache, explicit keytab, default keytab, password.
func newKerberosClient(ctx context.Context, cfg *ConnectionConfig, krb5conf *krb5config.Config) (*gssapi.Client, error) {
	username, realm := kerberosPrincipal(cfg)
	settings := []func(*krb5client.Settings){krb5client.DisablePAFXFAST(true)}

	for _, path := range []string{cfg.KerberosCCache, defaultCCachePath()} {
		if !fileExists(path) {
			continue
		}
		ccache, err := credentials.LoadCCache(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load credential cache %s: %w", path, err)
		}
		client, err := krb5client.NewFromCCache(ccache, krb5conf, settings...)
		if err != nil {
			return nil, err
		}
		tflog.SubsystemDebug(ctx, Subsystem, "Using Kerberos credential cache", map[string]any{"ccache": path})
		return &gssapi.Client{Client: client}, nil
	}

	if username == "" {
		return nil, fmt.Errorf("username (principal) is required for Kerberos authentication")
	}

	keytabPaths := []string{cfg.KerberosKeytab, defaultKeytabPath()}
	for _, path := range keytabPaths {
		if !fileExists(path) {
			continue
		}
		kt, err := keytab.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load keytab %s: %w", path, err)
		}
		tflog.SubsystemDebug(ctx, Subsystem, "Using Kerberos keytab", map[string]any{"keytab": path})
		return &gssapi.Client{Client: krb5client.NewWithKeytab(username, realm, kt, krb5conf, settings...)}, nil
	}

	if cfg.Password != "" {
		return &gssapi.Client{Client: krb5client.NewWithPassword(username, realm, cfg.Password, krb5conf, settings...)}, nil
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// kerberosPrincipal splits the configured username into principal and
// realm. user@REALM supplies the realm when none is configured, and a
// DOMAIN\ prefix is dropped.
func kerberosPrincipal(cfg *ConnectionConfig) (string, string) {
	username := cfg.Username
	realm := cfg.KerberosRealm

	if i := strings.LastIndex(username, `\`); i >= 0 {
		username = username[i+1:]
	}

	if at := strings.LastIndex(username, "@"); at >= 0 {
		if realm == "" {
			realm = username[at+1:]
		}
		username = username[:at]
	}

	if realm == "" && cfg.Domain != "" {
		realm = cfg.Domain
	}

	return username, strings.ToUpper(realm)
}

// buildServicePrincipal returns the configured SPN or ldap/<host>.
func buildServicePrincipal(cfg *ConnectionConfig, server *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + server.Host, nil
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func defaultKeytabPath() string {
	if kt := os.Getenv("KRB5_KTNAME"); kt != "" {
		return strings.TrimPrefix(kt, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
