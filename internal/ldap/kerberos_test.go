package ldap

import (
	"os"
	"path/filepath"
	"testing"

	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKerberosPrincipal(t *testing.T) {
	tests := []struct {
		name      string
		config    *ConnectionConfig
		wantUser  string
		wantRealm string
	}{
		{
			name:      "explicit realm",
			config:    &ConnectionConfig{Username: "svc-query", KerberosRealm: "example.com"},
			wantUser:  "svc-query",
			wantRealm: "EXAMPLE.COM",
		},
		{
			name:      "realm from principal",
			config:    &ConnectionConfig{Username: "svc-query@corp.example.com"},
			wantUser:  "svc-query",
			wantRealm: "CORP.EXAMPLE.COM",
		},
		{
			name:      "configured realm wins",
			config:    &ConnectionConfig{Username: "svc-query@other.example.com", KerberosRealm: "EXAMPLE.COM"},
			wantUser:  "svc-query",
			wantRealm: "EXAMPLE.COM",
		},
		{
			name:      "netbios prefix and domain fallback",
			config:    &ConnectionConfig{Username: `EXAMPLE\svc-query`, Domain: "example.com"},
			wantUser:  "svc-query",
			wantRealm: "EXAMPLE.COM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, realm := kerberosPrincipal(tt.config)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantRealm, realm)
		})
	}
}

func TestBuildServicePrincipal(t *testing.T) {
	server := &ServerInfo{Host: "dc1.example.com", Port: 636}

	spn, err := buildServicePrincipal(&ConnectionConfig{}, server)
	require.NoError(t, err)
	assert.Equal(t, "ldap/dc1.example.com", spn)

	spn, err = buildServicePrincipal(&ConnectionConfig{KerberosSPN: "ldap/ldap.example.com"}, server)
	require.NoError(t, err)
	assert.Equal(t, "ldap/ldap.example.com", spn)

	_, err = buildServicePrincipal(nil, server)
	assert.Error(t, err)

	_, err = buildServicePrincipal(&ConnectionConfig{}, &ServerInfo{})
	assert.Error(t, err)
}

func TestRuntimeKrb5Conf(t *testing.T) {
	cfg, err := krb5config.NewFromString(runtimeKrb5Conf("example.com", "Example.COM"))
	require.NoError(t, err)

	assert.Equal(t, "EXAMPLE.COM", cfg.LibDefaults.DefaultRealm)
	assert.True(t, cfg.LibDefaults.DNSLookupKDC)
	assert.Equal(t, "EXAMPLE.COM", cfg.DomainRealm[".example.com"])
	assert.Equal(t, "EXAMPLE.COM", cfg.DomainRealm["example.com"])
}

func TestLoadKrb5Config(t *testing.T) {
	t.Run("explicit path missing", func(t *testing.T) {
		_, err := loadKrb5Config(t.Context(), &ConnectionConfig{KerberosConfig: filepath.Join(t.TempDir(), "krb5.conf")})
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "krb5.conf")
		require.NoError(t, os.WriteFile(path, []byte(runtimeKrb5Conf("CORP.EXAMPLE.COM", "")), 0o600))

		cfg, err := loadKrb5Config(t.Context(), &ConnectionConfig{KerberosConfig: path})
		require.NoError(t, err)
		assert.Equal(t, "CORP.EXAMPLE.COM", cfg.LibDefaults.DefaultRealm)
	})
}

func TestNewKerberosClient_NoCredentials(t *testing.T) {
	t.Setenv("KRB5CCNAME", filepath.Join(t.TempDir(), "missing-ccache"))
	t.Setenv("KRB5_KTNAME", filepath.Join(t.TempDir(), "missing-keytab"))

	krb5conf, err := krb5config.NewFromString(runtimeKrb5Conf("EXAMPLE.COM", "example.com"))
	require.NoError(t, err)

	_, err = newKerberosClient(t.Context(), &ConnectionConfig{KerberosRealm: "EXAMPLE.COM"}, krb5conf)
	assert.ErrorContains(t, err, "username")

	_, err = newKerberosClient(t.Context(), &ConnectionConfig{Username: "svc-query", KerberosRealm: "EXAMPLE.COM"}, krb5conf)
	assert.ErrorContains(t, err, "no suitable credentials")

	client, err := newKerberosClient(t.Context(), &ConnectionConfig{Username: "svc-query", Password: "secret", KerberosRealm: "EXAMPLE.COM"}, krb5conf)
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", client.Credentials.Domain())
	assert.Equal(t, "svc-query", client.Credentials.UserName())
}

func TestDefaultCredentialPaths(t *testing.T) {
	t.Setenv("KRB5CCNAME", "FILE:/tmp/krb5cc_test")
	assert.Equal(t, "/tmp/krb5cc_test", defaultCCachePath())

	t.Setenv("KRB5_KTNAME", "FILE:/etc/test.keytab")
	assert.Equal(t, "/etc/test.keytab", defaultKeytabPath())
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.True(t, fileExists(path))
	assert.False(t, fileExists(""))
	assert.False(t, fileExists(dir))
	assert.False(t, fileExists(filepath.Join(dir, "absent")))
}
