package ldap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoolConfig() *ConnectionConfig {
	cfg := DefaultConfig()
	cfg.LDAPURLs = []string{"ldaps://dc1.example.com", "ldap://dc2.example.com:389"}
	cfg.HealthCheck = 0
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ConnectionConfig)
	}{
		{"zero connections", func(c *ConnectionConfig) { c.MaxConnections = 0 }},
		{"too many connections", func(c *ConnectionConfig) { c.MaxConnections = MaxConnectionPoolLimit + 1 }},
		{"zero idle time", func(c *ConnectionConfig) { c.MaxIdleTime = 0 }},
		{"zero timeout", func(c *ConnectionConfig) { c.Timeout = 0 }},
		{"negative retries", func(c *ConnectionConfig) { c.MaxRetries = -1 }},
		{"flat backoff", func(c *ConnectionConfig) { c.BackoffFactor = 1.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestNewConnectionPool(t *testing.T) {
	t.Run("configured urls", func(t *testing.T) {
		pool, err := newConnectionPool(t.Context(), testPoolConfig(), NewSRVDiscoveryWithResolver(fakeResolver{}))
		require.NoError(t, err)
		defer pool.Close()

		require.Len(t, pool.servers, 2)
		assert.Equal(t, "dc1.example.com", pool.servers[0].Host)
		assert.True(t, pool.servers[0].UseTLS)
		assert.Equal(t, 389, pool.servers[1].Port)
	})

	t.Run("domain discovery", func(t *testing.T) {
		cfg := testPoolConfig()
		cfg.LDAPURLs = nil
		cfg.Domain = "example.com"

		pool, err := newConnectionPool(t.Context(), cfg, NewSRVDiscoveryWithResolver(fakeResolver{}))
		require.NoError(t, err)
		defer pool.Close()

		assert.Len(t, pool.servers, 2)
		assert.Equal(t, "fallback", pool.servers[0].Source)
	})

	t.Run("no servers", func(t *testing.T) {
		cfg := testPoolConfig()
		cfg.LDAPURLs = nil
		_, err := NewConnectionPool(t.Context(), cfg)
		assert.ErrorContains(t, err, "either domain or LDAP URLs")
	})

	t.Run("invalid url", func(t *testing.T) {
		cfg := testPoolConfig()
		cfg.LDAPURLs = []string{"http://dc1.example.com"}
		_, err := NewConnectionPool(t.Context(), cfg)
		assert.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testPoolConfig()
		cfg.MaxConnections = 0
		_, err := NewConnectionPool(t.Context(), cfg)
		assert.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("half a client certificate", func(t *testing.T) {
		cfg := testPoolConfig()
		cfg.TLSClientCertFile = "client.pem"
		_, err := NewConnectionPool(t.Context(), cfg)
		assert.ErrorContains(t, err, "invalid TLS configuration")
	})
}

func TestConnectionPool_Close(t *testing.T) {
	cfg := testPoolConfig()
	cfg.HealthCheck = time.Hour

	pool, err := NewConnectionPool(t.Context(), cfg)
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Get(t.Context())
	assert.ErrorIs(t, err, errPoolClosed)

	_, _, err = pool.Dial(t.Context())
	assert.ErrorIs(t, err, errPoolClosed)
}

func TestConnectionPool_Stats(t *testing.T) {
	pool, err := NewConnectionPool(t.Context(), testPoolConfig())
	require.NoError(t, err)
	defer pool.Close()

	stats := pool.Stats()
	assert.Zero(t, stats.Active)
	assert.Zero(t, stats.Idle)
	assert.Zero(t, stats.Created)
	assert.GreaterOrEqual(t, stats.Uptime, time.Duration(0))
}

func TestConnectionPool_NeedsReAuthentication(t *testing.T) {
	p := &connectionPool{config: testPoolConfig()}

	assert.True(t, p.needsReAuthentication(nil))
	assert.True(t, p.needsReAuthentication(&PooledConnection{}))
	assert.False(t, p.needsReAuthentication(&PooledConnection{authenticated: true, authTime: time.Now()}))
	assert.True(t, p.needsReAuthentication(&PooledConnection{authenticated: true, authTime: time.Now().Add(-maxAuthAge - time.Second)}))
}

func TestPooledConnection(t *testing.T) {
	returned := 0
	server := &ServerInfo{Host: "dc1.example.com", Port: 636}
	pc := &PooledConnection{healthy: true, serverInfo: server, returnToPool: func(*PooledConnection) { returned++ }}

	assert.Same(t, server, pc.ServerInfo())
	assert.Nil(t, pc.Conn())

	pc.MarkUnhealthy()
	assert.False(t, pc.healthy)

	pc.Close()
	assert.Equal(t, 1, returned)
}
