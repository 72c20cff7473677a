package ldap

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionConfig_GetAuthMethod(t *testing.T) {
	tests := []struct {
		name     string
		config   *ConnectionConfig
		expected AuthMethod
	}{
		{
			name:     "simple bind",
			config:   &ConnectionConfig{Username: "svc-query", Password: "secret"},
			expected: AuthMethodSimpleBind,
		},
		{
			name:     "kerberos keytab",
			config:   &ConnectionConfig{KerberosRealm: "EXAMPLE.COM", KerberosKeytab: "/etc/svc.keytab"},
			expected: AuthMethodKerberos,
		},
		{
			name:     "kerberos wins over simple bind",
			config:   &ConnectionConfig{Username: "svc-query", Password: "secret", KerberosRealm: "EXAMPLE.COM"},
			expected: AuthMethodKerberos,
		},
		{
			name:     "client certificate",
			config:   &ConnectionConfig{TLSClientCertFile: "cert.pem", TLSClientKeyFile: "key.pem"},
			expected: AuthMethodExternal,
		},
		{
			name:     "empty config",
			config:   &ConnectionConfig{},
			expected: AuthMethodSimpleBind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.GetAuthMethod())
		})
	}
}

func TestConnectionConfig_HasAuthentication(t *testing.T) {
	assert.True(t, (&ConnectionConfig{Username: "u", Password: "p"}).HasAuthentication())
	assert.True(t, (&ConnectionConfig{KerberosRealm: "EXAMPLE.COM", KerberosCCache: "/tmp/cc"}).HasAuthentication())
	assert.True(t, (&ConnectionConfig{TLSClientCertFile: "c", TLSClientKeyFile: "k"}).HasAuthentication())
	assert.False(t, (&ConnectionConfig{Username: "u"}).HasAuthentication())
	assert.False(t, (&ConnectionConfig{TLSClientCertFile: "c"}).HasAuthentication())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.True(t, cfg.UseTLS)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.NotNil(t, cfg.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.TLSConfig.MinVersion)
	assert.NoError(t, validateConfig(cfg))
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "base", ScopeBaseObject.String())
	assert.Equal(t, "one", ScopeSingleLevel.String())
	assert.Equal(t, "sub", ScopeWholeSubtree.String())
	assert.Equal(t, "unknown", SearchScope(9).String())

	assert.Equal(t, "simple", AuthMethodSimpleBind.String())
	assert.Equal(t, "kerberos", AuthMethodKerberos.String())
	assert.Equal(t, "external", AuthMethodExternal.String())
}

func TestConnectionError(t *testing.T) {
	cause := assert.AnError
	err := NewConnectionError("dial failed", true, cause)

	assert.Equal(t, "dial failed: "+cause.Error(), err.Error())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryableError(err))

	assert.Equal(t, "no servers", NewConnectionError("no servers", false, nil).Error())
}
