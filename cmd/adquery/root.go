package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	activedirectory "github.com/isometry/go-activedirectory"
)

// querier is the part of *activedirectory.ActiveDirectory the commands use.
type querier interface {
	FindUser(ctx context.Context, opts *activedirectory.QueryOptions, username string) (*activedirectory.User, error)
	FindUsers(ctx context.Context, opts *activedirectory.QueryOptions, query string) ([]*activedirectory.User, error)
	GetGroupMembershipForUser(ctx context.Context, opts *activedirectory.QueryOptions, username string) ([]*activedirectory.Group, error)
	FindGroup(ctx context.Context, opts *activedirectory.QueryOptions, groupName string) (*activedirectory.Group, error)
	GetUsersForGroup(ctx context.Context, opts *activedirectory.QueryOptions, groupName string) ([]*activedirectory.User, error)
	IsUserMemberOf(ctx context.Context, username, groupName string) (bool, error)
	Find(ctx context.Context, opts *activedirectory.QueryOptions, filter string) (*activedirectory.SearchResults, error)
	Authenticate(ctx context.Context, username, password string) (bool, error)
	GetRootDSE(ctx context.Context, attributes []string) (map[string][]string, error)
	WhoAmI(ctx context.Context) (*activedirectory.Identity, error)
	Close() error
}

var _ querier = (*activedirectory.ActiveDirectory)(nil)

type connectFunc func(ctx context.Context, cfg *activedirectory.Config) (querier, error)

func connect(ctx context.Context, cfg *activedirectory.Config) (querier, error) {
	ad, err := activedirectory.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return ad, nil
}

type globalFlags struct {
	urls          []string
	domain        string
	baseDN        string
	username      string
	password      string
	kerberosRealm string
	insecure      bool
	output        string
	logLevel      string
	envFile       string
	configFile    string
}

// app carries state shared by every command of one invocation.
type app struct {
	connect connectFunc
	getenv  func(string) string
	flags   globalFlags

	env    map[string]string
	client querier
}

func newApp() *app {
	return &app{connect: connect, getenv: os.Getenv}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adquery",
		Short: "Query Active Directory users, groups and nested group membership",
		Long: `Query Active Directory over LDAP.

Connection settings come from flags, then AD_* environment variables
(optionally loaded from an env file), then a YAML configuration file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := cmd.PersistentFlags()
	pf.StringSliceVar(&a.flags.urls, "url", nil, "LDAP server URLs, ldap:// or ldaps:// [AD_LDAP_URL]")
	pf.StringVar(&a.flags.domain, "domain", "", "domain for SRV-based discovery [AD_DOMAIN]")
	pf.StringVar(&a.flags.baseDN, "base-dn", "", "search base; discovered when empty [AD_BASE_DN]")
	pf.StringVarP(&a.flags.username, "username", "u", "", "bind username [AD_USERNAME]")
	pf.StringVarP(&a.flags.password, "password", "p", "", "bind password [AD_PASSWORD]")
	pf.StringVar(&a.flags.kerberosRealm, "kerberos-realm", "", "use GSSAPI in this realm [AD_KERBEROS_REALM]")
	pf.BoolVar(&a.flags.insecure, "insecure", false, "skip TLS certificate verification [AD_SKIP_TLS_VERIFY]")
	pf.StringVarP(&a.flags.output, "output", "o", "json", "output format: json or yaml")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "log level: trace, debug, info, warn, error or off")
	pf.StringVar(&a.flags.envFile, "env-file", "", "read AD_* variables from this file (default .env if present)")
	pf.StringVar(&a.flags.configFile, "config", "", "YAML client configuration")

	cmd.AddCommand(
		a.userCommand(),
		a.usersCommand(),
		a.groupsCommand(),
		a.groupCommand(),
		a.membersCommand(),
		a.memberOfCommand(),
		a.findCommand(),
		a.authCommand(),
		a.rootDSECommand(),
		a.whoAmICommand(),
	)

	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	switch a.flags.output {
	case "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q", a.flags.output)
	}

	level := hclog.LevelFromString(a.flags.logLevel)
	if level == hclog.NoLevel {
		return fmt.Errorf("unsupported log level %q", a.flags.logLevel)
	}
	ctx := tfsdklog.NewRootProviderLogger(cmd.Context(),
		tfsdklog.WithLogName("adquery"),
		tfsdklog.WithLevel(level),
		tfsdklog.WithoutLocation(),
	)
	ctx = tflog.MaskFieldValuesWithFieldKeys(ctx, "password")
	cmd.SetContext(ctx)

	if err := a.loadEnvFile(); err != nil {
		return err
	}

	cfg, err := a.config(cmd)
	if err != nil {
		return err
	}

	a.client, err = a.connect(ctx, cfg)
	return err
}

// run executes one invocation and releases the client whether or not the
// command succeeded.
func run(ctx context.Context, a *app, args []string, stdout io.Writer) (err error) {
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	defer func() {
		if a.client != nil {
			err = errors.Join(err, a.client.Close())
		}
	}()
	return cmd.ExecuteContext(ctx)
}

func (a *app) loadEnvFile() error {
	path := a.flags.envFile
	if path == "" {
		path = ".env"
	}
	env, err := godotenv.Read(path)
	switch {
	case err == nil:
		a.env = env
	case a.flags.envFile == "" && errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("failed to read env file: %w", err)
	}
	return nil
}

// lookup returns a process variable, falling back to the env file.
func (a *app) lookup(name string) string {
	if v := a.getenv(name); v != "" {
		return v
	}
	return a.env[name]
}

// source is the configuration layer a setting came from, lowest first.
type source int

const (
	unset source = iota
	fromFile
	fromEnv
	fromFlag
)

// config layers flags over AD_* variables over the configuration file.
func (a *app) config(cmd *cobra.Command) (*activedirectory.Config, error) {
	cfg := &activedirectory.Config{}
	if a.flags.configFile != "" {
		data, err := os.ReadFile(a.flags.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", a.flags.configFile, err)
		}
	}

	// Each setting remembers which layer supplied it so that domain and url,
	// which are mutually exclusive, resolve to the higher layer.
	setString := func(dst *string, flag, env string) source {
		switch {
		case cmd.Flags().Changed(flag):
			*dst = cmd.Flag(flag).Value.String()
			return fromFlag
		case a.lookup(env) != "":
			*dst = a.lookup(env)
			return fromEnv
		case *dst != "":
			return fromFile
		}
		return unset
	}

	domainSource := setString(&cfg.Domain, "domain", "AD_DOMAIN")
	setString(&cfg.BaseDN, "base-dn", "AD_BASE_DN")
	setString(&cfg.Username, "username", "AD_USERNAME")
	setString(&cfg.Password, "password", "AD_PASSWORD")
	setString(&cfg.Kerberos.Realm, "kerberos-realm", "AD_KERBEROS_REALM")

	if v := a.lookup("AD_KERBEROS_KEYTAB"); v != "" {
		cfg.Kerberos.Keytab = v
	}
	if v := a.lookup("AD_KERBEROS_CCACHE"); v != "" {
		cfg.Kerberos.CCache = v
	}

	urlSource := unset
	switch {
	case cmd.Flags().Changed("url"):
		cfg.URLs = a.flags.urls
		urlSource = fromFlag
	case a.lookup("AD_LDAP_URL") != "":
		cfg.URLs = nil
		for u := range strings.SplitSeq(a.lookup("AD_LDAP_URL"), ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.URLs = append(cfg.URLs, u)
			}
		}
		urlSource = fromEnv
	case len(cfg.URLs) > 0:
		urlSource = fromFile
	}
	switch {
	case domainSource > urlSource:
		cfg.URLs = nil
	case urlSource > domainSource:
		cfg.Domain = ""
	}

	switch {
	case cmd.Flags().Changed("insecure"):
		cfg.TLS.SkipVerify = a.flags.insecure
	default:
		if v, err := strconv.ParseBool(a.lookup("AD_SKIP_TLS_VERIFY")); err == nil {
			cfg.TLS.SkipVerify = v
		}
	}
	if v, err := strconv.ParseBool(a.lookup("AD_USE_TLS")); err == nil {
		cfg.TLS.Disable = !v
	}

	return cfg, nil
}

// print writes v in the selected output format.
func (a *app) print(w io.Writer, v any) error {
	if a.flags.output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
