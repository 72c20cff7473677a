package activedirectory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/go-activedirectory/internal/ldap"
)

// Subsystem is the tflog subsystem used for query logging.
const Subsystem = "activedirectory"

// LogLevelEnv controls the query subsystem log level.
const LogLevelEnv = "TF_LOG_PROVIDER_AD_ACTIVEDIRECTORY"

// ActiveDirectory queries users and groups and resolves nested group
// membership. It is safe for concurrent use.
type ActiveDirectory struct {
	config  Config
	client  ldapclient.Client
	cache   *ldapclient.CacheManager
	metrics *metrics

	baseMu sync.Mutex
	baseDN string

	closed atomic.Bool
}

// New validates cfg and creates a client. Servers are resolved immediately
// but no connection is opened until the first query.
func New(ctx context.Context, cfg *Config) (*ActiveDirectory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}

	c := *cfg
	if err := c.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ctx = logging(ctx)

	client, err := ldapclient.NewClient(ctx, c.connectionConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create LDAP client: %w", err)
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Created Active Directory client", map[string]any{
		"domain":      c.Domain,
		"urls":        c.URLs,
		"base_dn":     c.BaseDN,
		"cache_ttl":   c.CacheTTL.String(),
		"concurrency": c.MembershipConcurrency,
	})

	return newWithClient(&c, client), nil
}

// newWithClient wraps an existing transport. cfg must already carry its
// defaults.
func newWithClient(cfg *Config, client ldapclient.Client) *ActiveDirectory {
	ad := &ActiveDirectory{
		config:  *cfg,
		client:  client,
		metrics: newMetrics(),
	}
	if cfg.CacheTTL > 0 {
		ad.cache = ldapclient.NewCacheManager(cfg.CacheTTL)
	}
	return ad
}

// logging installs both subsystems used below the public API.
func logging(ctx context.Context) context.Context {
	ctx = ldapclient.WithLogging(ctx)
	return tflog.NewSubsystem(ctx, Subsystem, tflog.WithLevelFromEnv(LogLevelEnv))
}

// Close releases every pooled connection. Further calls return ErrClosed.
func (ad *ActiveDirectory) Close() error {
	if ad.closed.Swap(true) {
		return nil
	}
	ad.cache.Clear()
	return ad.client.Close()
}

// Ping checks that a bound connection can be established.
func (ad *ActiveDirectory) Ping(ctx context.Context) error {
	if err := ad.check(); err != nil {
		return err
	}
	return ad.client.Connect(logging(ctx))
}

func (ad *ActiveDirectory) check() error {
	if ad.closed.Load() {
		return ErrClosed
	}
	return nil
}

// searchBase returns the base DN for a query: the per-query override, the
// configured base or the discovered defaultNamingContext.
func (ad *ActiveDirectory) searchBase(ctx context.Context, opts *QueryOptions) (string, error) {
	if dn := opts.baseDN(); dn != "" {
		return dn, nil
	}
	if ad.config.BaseDN != "" {
		return ad.config.BaseDN, nil
	}

	ad.baseMu.Lock()
	defer ad.baseMu.Unlock()

	if ad.baseDN == "" {
		dn, err := ad.client.GetBaseDN(ctx)
		if err != nil {
			return "", err
		}
		ad.baseDN = dn
		tflog.SubsystemDebug(ctx, Subsystem, "Discovered base DN", map[string]any{"base_dn": dn})
	}
	return ad.baseDN, nil
}

// searchOne returns the first entry matching filter, or nil.
func (ad *ActiveDirectory) searchOne(ctx context.Context, baseDN, filter string, attributes []string) (*ldap.Entry, error) {
	result, err := ad.client.Search(ctx, &ldapclient.SearchRequest{
		BaseDN:     baseDN,
		Scope:      ldapclient.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: attributes,
		SizeLimit:  1,
		TimeLimit:  ad.config.Pool.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, nil
	}
	return result.Entries[0], nil
}

// searchAll returns every entry matching filter using paged results.
func (ad *ActiveDirectory) searchAll(ctx context.Context, baseDN, filter string, attributes []string) ([]*ldap.Entry, error) {
	result, err := ad.client.SearchWithPaging(ctx, &ldapclient.SearchRequest{
		BaseDN:     baseDN,
		Scope:      ldapclient.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: attributes,
		TimeLimit:  ad.config.Pool.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// readEntry reads dn itself. A missing entry yields nil.
func (ad *ActiveDirectory) readEntry(ctx context.Context, dn string, attributes []string) (*ldap.Entry, error) {
	result, err := ad.client.Search(ctx, &ldapclient.SearchRequest{
		BaseDN:     dn,
		Scope:      ldapclient.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: attributes,
		SizeLimit:  1,
		TimeLimit:  ad.config.Pool.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, nil
	}
	if err := ldapclient.ExpandRangedAttributes(ctx, ad.client, result.Entries[0]); err != nil {
		return nil, err
	}
	return result.Entries[0], nil
}

// resolveDN finds the DN of the first entry matching filter. Lookups by
// name are cached under cacheKey when caching is enabled.
func (ad *ActiveDirectory) resolveDN(ctx context.Context, baseDN, filter, cacheKey string) (string, error) {
	if cacheKey != "" {
		if dn, ok := ad.cache.GetDN(baseDN + "|" + cacheKey); ok {
			return dn, nil
		}
	}

	entry, err := ad.searchOne(ctx, baseDN, filter, []string{"distinguishedName"})
	if err != nil || entry == nil {
		return "", err
	}

	if cacheKey != "" {
		ad.cache.PutDN(baseDN+"|"+cacheKey, entry.DN)
	}
	return entry.DN, nil
}

// observe records the outcome and duration of operation. fn reports
// whether anything was found.
func (ad *ActiveDirectory) observe(ctx context.Context, operation string, fields map[string]any, fn func() (bool, error)) error {
	start := time.Now()
	found := false

	err := ldapclient.LogOperation(ctx, Subsystem, operation, fields, func() error {
		var err error
		found, err = fn()
		return err
	})

	result := "success"
	switch {
	case err != nil:
		result = "error"
	case !found:
		result = "not_found"
	}
	ad.metrics.observe(operation, result, time.Since(start))

	return err
}
