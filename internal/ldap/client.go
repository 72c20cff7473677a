package ldap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

var (
	sidPattern = regexp.MustCompile(`^S-\d+-\d+(-\d+)*$`)

	// maxPagesPerSearch stops runaway paged searches.
	maxPagesPerSearch = 10000
)

type client struct {
	pool   ConnectionPool
	config *ConnectionConfig
}

// NewClient creates a pooled client for config. Servers are resolved
// immediately; connections open on first use.
func NewClient(ctx context.Context, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Creating LDAP client", map[string]any{
		"domain":          config.Domain,
		"ldap_urls_count": len(config.LDAPURLs),
		"auth_method":     config.GetAuthMethod().String(),
		"use_tls":         config.UseTLS,
		"max_connections": config.MaxConnections,
	})

	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return NewClientWithPool(config, pool), nil
}

// NewClientWithPool creates a client over an existing pool.
func NewClientWithPool(config *ConnectionConfig, pool ConnectionPool) Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &client{pool: pool, config: config}
}

// Connect verifies that a bound connection can be established.
func (c *client) Connect(ctx context.Context) error {
	return LogOperation(ctx, Subsystem, "connect", nil, func() error {
		return c.Ping(ctx)
	})
}

func (c *client) Close() error {
	return c.pool.Close()
}

// BindWithConfig checks out a connection, which the pool binds with the
// configured credentials, and returns it straight away.
func (c *client) BindWithConfig(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return WrapError("bind", err)
	}
	conn.Close()
	return nil
}

// VerifyCredentials performs a simple bind as username on a dedicated
// connection so pooled connections keep their service identity.
func (c *client) VerifyCredentials(ctx context.Context, username, password string) error {
	if password == "" {
		return NewLDAPError("bind", ldap.NewError(ldap.ErrorEmptyPassword, errors.New("empty password not allowed")))
	}

	conn, server, err := c.pool.Dial(ctx)
	if err != nil {
		return WrapError("bind", err)
	}
	defer conn.Close()

	if err := conn.Bind(username, password); err != nil {
		LogLDAPError(ctx, Subsystem, "verify_credentials", err, map[string]any{
			"username": username,
			"server":   server.Host,
		})
		return NewLDAPError("bind", err)
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Credentials verified", map[string]any{
		"username": username,
		"server":   server.Host,
	})

	return nil
}

func toLDAPRequest(req *SearchRequest, sizeLimit int, controls []ldap.Control) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		sizeLimit,
		int(req.TimeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		controls,
	)
}

func searchFields(req *SearchRequest) map[string]any {
	return map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
	}
}

// Search performs a single unpaged search. A size limit hit by the server
// yields the entries received so far with HasMore set. A missing base
// object yields an empty result.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	start := time.Now()
	fields := searchFields(req)

	var result *SearchResult
	err := c.withConn(ctx, "search", func(conn *ldap.Conn) error {
		res, err := conn.Search(toLDAPRequest(req, req.SizeLimit, nil))
		switch {
		case err == nil:
			result = &SearchResult{
				Entries: res.Entries,
				Total:   len(res.Entries),
				HasMore: req.SizeLimit > 0 && len(res.Entries) >= req.SizeLimit,
			}
			return nil
		case ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded):
			var entries []*ldap.Entry
			if res != nil {
				entries = res.Entries
			}
			result = &SearchResult{Entries: entries, Total: len(entries), HasMore: true}
			return nil
		case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
			result = &SearchResult{}
			return nil
		}
		return err
	})

	if err != nil {
		LogLDAPError(ctx, Subsystem, "search", err, fields)
		return nil, err
	}

	fields["entries_found"] = result.Total
	fields["has_more"] = result.HasMore
	LogPerformance(ctx, Subsystem, "search", time.Since(start), fields)

	return result, nil
}

// SearchWithPaging performs an RFC 2696 paged search and returns every
// entry. Cancellation is checked between pages.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	pageSize := c.config.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	start := time.Now()
	fields := searchFields(req)
	fields["page_size"] = pageSize

	var entries []*ldap.Entry
	pages := 0

	err := c.withConn(ctx, "paged_search", func(conn *ldap.Conn) error {
		// A retry restarts the search from the first page.
		entries = entries[:0]
		pages = 0
		paging := ldap.NewControlPaging(pageSize)
		ldapReq := toLDAPRequest(req, 0, []ldap.Control{paging})

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if pages >= maxPagesPerSearch {
				return fmt.Errorf("paged search exceeded %d pages", maxPagesPerSearch)
			}
			pages++

			res, err := conn.Search(ldapReq)
			if err != nil {
				if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
					return nil
				}
				return err
			}
			entries = append(entries, res.Entries...)

			tflog.SubsystemTrace(ctx, Subsystem, "Completed search page", map[string]any{
				"page_number":     pages,
				"entries_in_page": len(res.Entries),
				"total_entries":   len(entries),
			})

			control, ok := ldap.FindControl(res.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
			if !ok || len(control.Cookie) == 0 {
				return nil
			}
			paging.SetCookie(control.Cookie)
		}
	})

	if err != nil {
		LogLDAPError(ctx, Subsystem, "paged_search", err, fields)
		return nil, err
	}

	if req.SizeLimit > 0 && len(entries) > req.SizeLimit {
		entries = entries[:req.SizeLimit]
	}

	fields["entries_found"] = len(entries)
	fields["pages"] = pages
	LogPerformance(ctx, Subsystem, "paged_search", time.Since(start), fields)

	return &SearchResult{Entries: entries, Total: len(entries)}, nil
}

// withConn runs fn on a pooled connection, retrying retryable failures on
// a fresh connection with exponential backoff.
func (c *client) withConn(ctx context.Context, operation string, fn func(*ldap.Conn) error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			tflog.SubsystemDebug(ctx, Subsystem, "Retrying operation", map[string]any{
				"operation":  operation,
				"attempt":    attempt + 1,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
			}
		}

		conn, err := c.pool.Get(ctx)
		if err != nil {
			if errors.Is(err, errPoolClosed) || ctx.Err() != nil {
				return err
			}
			lastErr = err
			if !IsRetryableError(err) {
				break
			}
			continue
		}

		err = fn(conn.Conn())
		if err != nil && GetErrorCategory(err) == ErrorCategoryConnection {
			conn.MarkUnhealthy()
		}
		conn.Close()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		if !IsRetryableError(err) {
			break
		}
	}

	return WrapError(operation, lastErr)
}

func (c *client) Ping(ctx context.Context) error {
	return c.withConn(ctx, "ping", func(conn *ldap.Conn) error {
		_, err := conn.Search(ldap.NewSearchRequest(
			"",
			ldap.ScopeBaseObject,
			ldap.NeverDerefAliases,
			1, 5, false,
			"(objectClass=*)",
			[]string{"defaultNamingContext"},
			nil,
		))
		return err
	})
}

func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// WhoAmI performs the RFC 4532 Who Am I? extended operation.
func (c *client) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	var res *ldap.WhoAmIResult
	err := c.withConn(ctx, "whoami", func(conn *ldap.Conn) error {
		var err error
		res, err = conn.WhoAmI(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("WhoAmI operation returned nil result")
	}

	result := &WhoAmIResult{AuthzID: res.AuthzID}
	parseAuthzID(result)
	return result, nil
}

// parseAuthzID classifies the authorization identity. Active Directory
// answers dn:<DN> for simple binds and u:DOMAIN\user for Kerberos.
func parseAuthzID(result *WhoAmIResult) {
	id := result.AuthzID

	switch {
	case id == "":
		result.Format = "empty"
	case strings.HasPrefix(id, "dn:"):
		result.Format = "dn"
		result.DN = strings.TrimPrefix(id, "dn:")
	default:
		id = strings.TrimPrefix(id, "u:")
		switch {
		case IsDN(id):
			result.Format = "dn"
			result.DN = id
		case sidPattern.MatchString(id):
			result.Format = "sid"
			result.SID = id
		case strings.Contains(id, `\`):
			result.Format = "sam"
			result.SAMAccountName = id
		case strings.Contains(id, "@"):
			result.Format = "upn"
			result.UserPrincipalName = id
		default:
			result.Format = "unknown"
		}
	}
}

// GetRootDSE reads the root DSE. All operational attributes are requested
// when attributes is empty.
func (c *client) GetRootDSE(ctx context.Context, attributes []string) (*ldap.Entry, error) {
	if len(attributes) == 0 {
		attributes = []string{"*", "+"}
	}

	result, err := c.Search(ctx, &SearchRequest{
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: attributes,
		SizeLimit:  1,
		TimeLimit:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read root DSE: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("no root DSE found")
	}

	return result.Entries[0], nil
}

// GetBaseDN returns the configured base DN or the server's
// defaultNamingContext.
func (c *client) GetBaseDN(ctx context.Context) (string, error) {
	if c.config.BaseDN != "" {
		return c.config.BaseDN, nil
	}

	entry, err := c.GetRootDSE(ctx, []string{"defaultNamingContext"})
	if err != nil {
		return "", fmt.Errorf("failed to get base DN: %w", err)
	}

	baseDN := entry.GetAttributeValue("defaultNamingContext")
	if baseDN == "" {
		return "", fmt.Errorf("no defaultNamingContext found in root DSE")
	}

	return baseDN, nil
}
