package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// MaxConnectionPoolLimit bounds ConnectionConfig.MaxConnections.
const MaxConnectionPoolLimit = 100

// maxAuthAge is how long a bind is trusted before a pooled connection rebinds.
const maxAuthAge = 5 * time.Minute

var errPoolClosed = errors.New("connection pool is closed")

type connectionPool struct {
	ctx         context.Context // logging context
	config      *ConnectionConfig
	tlsConfig   *tls.Config
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool
	discovery   *SRVDiscovery

	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time

	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWg     sync.WaitGroup
}

// NewConnectionPool validates config, resolves the server list and starts
// the health checker. Connections are opened lazily by Get.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig) (ConnectionPool, error) {
	return newConnectionPool(ctx, config, NewSRVDiscovery())
}

func newConnectionPool(ctx context.Context, config *ConnectionConfig, discovery *SRVDiscovery) (*connectionPool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := BuildTLSConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	pool := &connectionPool{
		ctx:         ctx,
		config:      config,
		tlsConfig:   tlsConfig,
		connections: make(chan *PooledConnection, config.MaxConnections),
		discovery:   discovery,
		startTime:   time.Now(),
		healthStop:  make(chan struct{}),
	}

	if err := pool.discoverServers(ctx); err != nil {
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}

	if config.HealthCheck > 0 {
		pool.startHealthChecker()
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Connection pool created", map[string]any{
		"servers":         len(pool.servers),
		"max_connections": config.MaxConnections,
		"auth_method":     config.GetAuthMethod().String(),
	})

	return pool, nil
}

// discoverServers prefers explicit URLs over SRV discovery for the domain.
func (p *connectionPool) discoverServers(ctx context.Context) error {
	var servers []*ServerInfo

	switch {
	case len(p.config.LDAPURLs) > 0:
		for _, u := range p.config.LDAPURLs {
			server, err := ParseLDAPURL(u)
			if err != nil {
				return fmt.Errorf("invalid LDAP URL %s: %w", u, err)
			}
			servers = append(servers, server)
		}
	case p.config.Domain != "":
		ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		discovered, err := p.discovery.DiscoverServers(ctx, p.config.Domain)
		if err != nil {
			return err
		}
		servers = discovered
	default:
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return errors.New("no servers discovered")
	}

	p.mu.Lock()
	p.servers = servers
	p.mu.Unlock()

	return nil
}

func (p *connectionPool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Get returns an idle healthy connection or opens a new one.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	if p.isClosed() {
		return nil, errPoolClosed
	}

	for {
		select {
		case conn := <-p.connections:
			if !p.isConnectionHealthy(conn) {
				p.closeConnection(conn)
				continue
			}
			if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
				if err := p.authenticateConnection(ctx, conn); err != nil {
					p.closeConnection(conn)
					continue
				}
			}
			conn.lastUsed = time.Now()
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		default:
		}
		break
	}

	conn, err := p.createConnection(ctx, true)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&p.activeConns, 1)
	return conn, nil
}

// Dial opens a connection that never returns to the pool and is not bound.
func (p *connectionPool) Dial(ctx context.Context) (*ldap.Conn, *ServerInfo, error) {
	if p.isClosed() {
		return nil, nil, errPoolClosed
	}

	conn, err := p.createConnection(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	return conn.conn, conn.serverInfo, nil
}

// createConnection tries every server in order, backing off between rounds.
func (p *connectionPool) createConnection(ctx context.Context, authenticate bool) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	p.mu.RLock()
	servers := p.servers
	p.mu.RUnlock()

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		for _, server := range servers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			conn, err := p.createSingleConnection(ctx, server, authenticate)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				LogPoolEvent(p.ctx, "connection_failed", map[string]any{
					"server":  ServerInfoToURL(server),
					"attempt": attempt + 1,
					"error":   err.Error(),
				})
				// Bad credentials fail the same way on every server.
				if IsAuthenticationError(err) {
					return nil, err
				}
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			LogPoolEvent(p.ctx, "connection_created", map[string]any{
				"server": ServerInfoToURL(server),
			})
			return conn, nil
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	LogPoolEvent(p.ctx, "all_connections_failed", map[string]any{
		"servers": len(servers),
	})

	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

func (p *connectionPool) createSingleConnection(ctx context.Context, server *ServerInfo, authenticate bool) (*PooledConnection, error) {
	url := ServerInfoToURL(server)
	tlsConfig := tlsConfigFor(p.tlsConfig, server.Host)

	var conn *ldap.Conn
	var err error

	if server.UseTLS {
		conn, err = ldap.DialURL(url, ldap.DialWithTLSConfig(tlsConfig))
	} else {
		conn, err = ldap.DialURL(url)
		if err == nil && p.config.UseTLS && !p.config.SkipTLS {
			if tlsErr := conn.StartTLS(tlsConfig); tlsErr != nil {
				conn.Close()
				err = tlsErr
			}
		}
	}

	if err != nil {
		return nil, NewConnectionError(fmt.Sprintf("failed to connect to %s", url), true, err)
	}

	conn.SetTimeout(p.config.Timeout)

	pooled := &PooledConnection{
		conn:         conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	if authenticate && p.config.HasAuthentication() {
		if err := p.authenticateConnection(ctx, pooled); err != nil {
			conn.Close()
			return nil, WrapError("bind", err)
		}
	}

	return pooled, nil
}

// authenticateConnection binds pc with the configured method.
func (p *connectionPool) authenticateConnection(ctx context.Context, pc *PooledConnection) error {
	if pc == nil || pc.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	method := p.config.GetAuthMethod()
	var err error

	switch method {
	case AuthMethodSimpleBind:
		if p.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		err = pc.conn.Bind(p.config.Username, p.config.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(ctx, pc.conn, p.config, pc.serverInfo)
	case AuthMethodExternal:
		err = pc.conn.ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method: %s", method)
	}

	if err != nil {
		pc.authenticated = false
		pc.authTime = time.Time{}
		return err
	}

	pc.authenticated = true
	pc.authTime = time.Now()

	tflog.SubsystemTrace(ctx, Subsystem, "Connection authenticated", map[string]any{
		"method": method.String(),
		"server": pc.serverInfo.Host,
	})

	return nil
}

func (p *connectionPool) needsReAuthentication(conn *PooledConnection) bool {
	if conn == nil || !conn.authenticated {
		return true
	}
	return time.Since(conn.authTime) > maxAuthAge
}

func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || !p.isConnectionHealthy(conn) {
		p.closeConnection(conn)
		return
	}

	select {
	case p.connections <- conn:
	default:
		p.closeConnection(conn)
	}
}

func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy || conn.conn.IsClosing() {
		return false
	}

	if time.Since(conn.lastUsed) > p.config.MaxIdleTime {
		return false
	}

	if p.config.HasAuthentication() && !conn.authenticated {
		return false
	}

	return true
}

func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn == nil || conn.conn == nil {
		return
	}
	conn.conn.Close()
	conn.healthy = false
	conn.authenticated = false
	conn.authTime = time.Time{}

	LogPoolEvent(p.ctx, "connection_closed", map[string]any{
		"server": conn.serverInfo.Host,
	})
}

// Close stops the health checker and closes every idle connection.
// Checked-out connections are closed when they are returned.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.healthTicker != nil {
		close(p.healthStop)
		p.healthWg.Wait()
		p.healthTicker.Stop()
	}

	for {
		select {
		case conn := <-p.connections:
			p.closeConnection(conn)
		default:
			return nil
		}
	}
}

func (p *connectionPool) Stats() PoolStats {
	idle := len(p.connections)
	active := atomic.LoadInt64(&p.activeConns)

	return PoolStats{
		Total:   idle + int(active),
		Active:  active,
		Idle:    idle,
		Created: atomic.LoadInt64(&p.totalCreated),
		Errors:  atomic.LoadInt64(&p.totalErrors),
		Uptime:  time.Since(p.startTime),
	}
}

// HealthCheck checks out a connection and reads the root DSE with it.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	conn, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !p.testConnection(ctx, conn) {
		conn.healthy = false
		LogPoolEvent(p.ctx, "health_check_failed", map[string]any{
			"server": conn.serverInfo.Host,
		})
		return NewConnectionError("health check failed", true, nil)
	}

	return nil
}

func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)

	p.healthWg.Go(func() {
		for {
			select {
			case <-p.healthTicker.C:
				p.performHealthCheck()
			case <-p.healthStop:
				return
			}
		}
	})
}

// performHealthCheck tests up to three idle connections.
func (p *connectionPool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	var toCheck []*PooledConnection
drain:
	for range 3 {
		select {
		case conn := <-p.connections:
			toCheck = append(toCheck, conn)
		default:
			break drain
		}
	}

	for _, conn := range toCheck {
		// returnConnection decrements the active count.
		atomic.AddInt64(&p.activeConns, 1)
		if !p.testConnection(ctx, conn) {
			conn.healthy = false
			LogPoolEvent(p.ctx, "health_check_failed", map[string]any{
				"server": conn.serverInfo.Host,
			})
		}
		p.returnConnection(conn)
	}
}

func (p *connectionPool) testConnection(ctx context.Context, conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil {
		return false
	}

	if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
		if err := p.authenticateConnection(ctx, conn); err != nil {
			return false
		}
	}

	req := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"defaultNamingContext"},
		nil,
	)

	if _, err := conn.conn.Search(req); err != nil {
		conn.authenticated = false
		conn.authTime = time.Time{}
		return false
	}

	return true
}

func validateConfig(config *ConnectionConfig) error {
	switch {
	case config.MaxConnections <= 0:
		return errors.New("MaxConnections must be positive")
	case config.MaxConnections > MaxConnectionPoolLimit:
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	case config.MaxIdleTime <= 0:
		return errors.New("MaxIdleTime must be positive")
	case config.Timeout <= 0:
		return errors.New("timeout must be positive")
	case config.MaxRetries < 0:
		return errors.New("MaxRetries cannot be negative")
	case config.BackoffFactor <= 1.0:
		return errors.New("BackoffFactor must be greater than 1.0")
	}
	return nil
}

// Close returns the connection to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

// MarkUnhealthy ensures the connection is discarded rather than reused.
func (pc *PooledConnection) MarkUnhealthy() {
	pc.healthy = false
}

func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}

func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}
