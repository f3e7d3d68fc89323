package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/config"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/filter"
	"github.com/atomicbase/directory/query"
	"github.com/atomicbase/directory/settings"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Driver   string
	DSN      string
	Settings string
	Format   string // "json" | "text"
	Surface  string // "public" | "admin" | "api"
	Roles    []string
	Attrs    []string // key=value filter attributes
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

var surfaces = map[string]access.Surface{
	"public": access.SurfacePublic,
	"admin":  access.SurfaceAdmin,
	"api":    access.SurfaceAPI,
}

// NewRootCommand creates the dirquery root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dirquery",
		Short: "Query a directory store from the command line",
		Long:  "Bootstrap a directory store and run list, search, count and upcoming-event queries against it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, ok := surfaces[opts.Surface]; !ok {
				return fmt.Errorf("invalid surface %q: must be public, admin or api", opts.Surface)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", config.Cfg.DBDriver, "database driver (sqlite|libsql|pgx)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", config.Cfg.DBDSN, "database data source name")
	cmd.PersistentFlags().StringVar(&opts.Settings, "settings", config.Cfg.SettingsPath, "settings file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Surface, "surface", "admin", "caller surface (public|admin|api)")
	cmd.PersistentFlags().StringSliceVar(&opts.Roles, "role", nil, "caller roles; none means anonymous")
	cmd.PersistentFlags().StringArrayVarP(&opts.Attrs, "attr", "a", nil, "filter attribute key=value (repeatable)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewUpcomingCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// env is what every query command needs: an open store, the service over it
// and the caller the flags describe.
type env struct {
	db     *data.Database
	svc    *query.Service
	caller access.Context
	attrs  filter.Attributes
}

func (e *env) Close() error {
	return e.db.Close()
}

func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	st, err := settings.Load(opts.Settings)
	if err != nil {
		return nil, err
	}

	db, err := data.Open(ctx, opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", opts.Driver, err)
	}

	svc := query.New(db, st)
	caller, err := callerFor(opts, st, svc.Policy())
	if err != nil {
		db.Close()
		return nil, err
	}

	attrs, err := parseAttrs(opts.Attrs)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &env{db: db, svc: svc, caller: caller, attrs: attrs}, nil
}

// callerFor builds the caller from --surface and --role. Roles resolve
// through the same policy the HTTP surface uses.
func callerFor(opts *RootOptions, st *settings.Settings, policy access.Policy) (access.Context, error) {
	c := access.Anonymous(policy)
	c.Surface = surfaces[opts.Surface]
	c.RemoteAddr = "127.0.0.1"
	if len(opts.Roles) == 0 {
		return c, nil
	}

	en, err := access.NewEnforcer(st.Roles)
	if err != nil {
		return c, err
	}
	caps, err := en.Capabilities(opts.Roles)
	if err != nil {
		return c, err
	}
	c.UserID = "cli"
	c.Authenticated = true
	c.Capabilities = caps
	return c, nil
}

// parseAttrs reads key=value pairs. A repeated key becomes a list.
func parseAttrs(pairs []string) (filter.Attributes, error) {
	attrs := filter.Attributes{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q: want key=value", p)
		}
		switch prev := attrs[key].(type) {
		case nil:
			attrs[key] = value
		case []any:
			attrs[key] = append(prev, value)
		default:
			attrs[key] = []any{prev, value}
		}
	}
	return attrs, nil
}
