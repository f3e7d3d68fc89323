package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/config"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/query"
	"github.com/atomicbase/directory/search"
	"github.com/atomicbase/directory/settings"
	"github.com/spf13/cobra"
)

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	var fts bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the directory tables",
		Long: `Create the directory tables when they are missing.

With --fts, also build the SQLite full-text indexes over the configured
search fields. Without them search degrades to substring matching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.db.EnsureSchema(ctx); err != nil {
				return err
			}

			var indexed []string
			if fts {
				fields := search.GroupFields(e.svc.Settings.Search.Fields)
				for _, idx := range []struct {
					table   string
					columns []string
				}{
					{data.TableEntries, fields.Entry},
					{data.TableAddresses, fields.Address},
					{data.TablePhones, fields.Phone},
				} {
					if len(idx.columns) == 0 {
						continue
					}
					if err := e.db.CreateFullTextIndex(ctx, idx.table, idx.columns); err != nil {
						return err
					}
					indexed = append(indexed, idx.table)
				}
			}

			return formatter(opts, cmd).Success(map[string]any{"indexed": indexed}, func(w io.Writer) {
				fmt.Fprintln(w, "schema ready")
				for _, t := range indexed {
					fmt.Fprintf(w, "full-text index on %s\n", t)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&fts, "fts", false, "build full-text indexes")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entries matching the --attr filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			rs := e.svc.ListEntries(cmd.Context(), e.caller, e.svc.Spec(e.caller, e.attrs, nil))
			if rs.Err != nil {
				return rs.Err
			}

			out := map[string]any{"entries": rs.Rows, "total": rs.Total, "corrected": rs.Corrected}
			return formatter(opts, cmd).Success(out, func(w io.Writer) {
				writeRows(w, rs.Rows, "distance")
				fmt.Fprintf(w, "%d of %d\n", len(rs.Rows), rs.Total)
			})
		},
	}
}

// NewSearchCommand creates the search command.
func NewSearchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <terms>...",
		Short: "Print the ids of entries matching the terms, best match first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ids, err := e.svc.SearchEntries(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return formatter(opts, cmd).Success(map[string]any{"ids": ids}, func(w io.Writer) {
				writeIDs(w, ids)
			})
		},
	}
}

// NewCountCommand creates the count command.
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count the entries the caller may see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.svc.RecordCount(cmd.Context(), e.caller, e.svc.Spec(e.caller, e.attrs, nil))
			if err != nil {
				return err
			}
			return formatter(opts, cmd).Success(map[string]int64{"count": n}, func(w io.Writer) {
				fmt.Fprintln(w, n)
			})
		},
	}
}

// NewUpcomingCommand creates the upcoming command.
func NewUpcomingCommand(opts *RootOptions) *cobra.Command {
	u := query.DefaultUpcoming()
	var from string
	var noToday bool

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List entries with a recurring date coming up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from != "" {
				d, err := time.Parse(query.DateLayout, from)
				if err != nil {
					return fmt.Errorf("invalid --from %q: want YYYY-MM-DD", from)
				}
				u.From = d
			}
			u.Today = !noToday

			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.UpcomingEvents(cmd.Context(), e.caller, u)
			if err != nil {
				return err
			}
			out := map[string]any{"ids": res.IDs, "entries": res.Entries.Rows}
			return formatter(opts, cmd).Success(out, func(w io.Writer) {
				if u.ReturnIDs {
					writeIDs(w, res.IDs)
					return
				}
				writeRows(w, res.Entries.Rows)
			})
		},
	}

	cmd.Flags().StringVar(&u.Type, "type", u.Type, "date type")
	cmd.Flags().IntVar(&u.Days, "days", u.Days, "window length in days")
	cmd.Flags().BoolVar(&noToday, "no-today", false, "exclude events falling today")
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&u.ReturnIDs, "ids", false, "print ids only")
	return cmd
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain",
		Short: "Print the SQL a list call would run",
		Long: `Compile the --attr filter and print the row and count statements with
their bound values. Statements the compiler runs itself, such as a search
for search_terms, are printed first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			rec := data.NewRecorder(e.db.Exec)
			e.db.Exec = rec

			plan, err := e.svc.Plan(cmd.Context(), e.caller, e.svc.Spec(e.caller, e.attrs, nil))
			if err != nil {
				return err
			}
			selectSQL, selectArgs, err := plan.Select(e.db.Dialect)
			if err != nil {
				return err
			}
			countSQL, countArgs, err := plan.Count(e.db.Dialect)
			if err != nil {
				return err
			}

			statements := append(rec.Statements(),
				data.Statement{SQL: selectSQL, Args: selectArgs},
				data.Statement{SQL: countSQL, Args: countArgs},
			)
			return formatter(opts, cmd).Success(statements, func(w io.Writer) {
				for _, s := range statements {
					fmt.Fprintln(w, s.SQL)
					fmt.Fprintf(w, "  args: %v\n", s.Args)
				}
			})
		},
	}
}

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var secret, subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := settings.Load(opts.Settings)
			if err != nil {
				return err
			}
			// Reject roles the policy does not know so a typo does not mint a
			// token with no capabilities.
			en, err := access.NewEnforcer(st.Roles)
			if err != nil {
				return err
			}
			for _, role := range opts.Roles {
				caps, err := en.Capabilities([]string{role})
				if err != nil {
					return err
				}
				if len(caps) == 0 {
					return fmt.Errorf("role %q grants no capabilities", role)
				}
			}

			token, err := access.NewToken([]byte(secret), subject, opts.Roles, ttl)
			if err != nil {
				return err
			}
			return formatter(opts, cmd).Success(map[string]string{"token": token}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&secret, "secret", config.Cfg.JWTSecret, "signing secret")
	cmd.Flags().StringVar(&subject, "sub", "dirquery", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
