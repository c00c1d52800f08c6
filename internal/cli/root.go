package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"dividi/internal/backend"
	"dividi/internal/core"
	"dividi/internal/services"
	"dividi/internal/store"
	"dividi/internal/tracker"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DB     string
	Format string // text or json
	As     string

	open Opener
	env  *Env
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Env is what a command runs against.
type Env struct {
	Store        store.ExpenseStore
	Participants core.Participants
	Expenses     *services.ExpenseService
	Settlement   *services.SettlementController
	Formatter    *tracker.Formatter
	Report       core.ReportOptions
	Now          func() time.Time
	Close        func() error
}

// Opener builds the environment once flags are parsed.
type Opener func(ctx context.Context, opts *RootOptions) (*Env, error)

// NewRootCommand creates dividictl backed by the configured SQLite store.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(OpenFromConfig)
}

// NewRootCommandWith creates dividictl with a custom environment opener.
func NewRootCommandWith(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "dividictl",
		Short: "Track and settle shared expenses",
		Long: `dividictl records shared expenses, shows who owes whom, and exports
monthly reports. It works on the same SQLite store as the dividi server;
when AMQP is configured, running servers pick up its changes right away.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			env, err := opts.open(cmd.Context(), opts)
			if err != nil {
				return WrapExitError(ExitFailure, "open store", err)
			}
			opts.env = env
			if opts.As != "" {
				if _, err := tracker.NewSession(env.Participants, opts.As); err != nil {
					return WrapExitError(ExitCommandError, "invalid --as", err)
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.env != nil && opts.env.Close != nil {
				return opts.env.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite database path (default from SQLITE_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "act as this participant")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewSettleCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewExpensesCommand(opts))
	cmd.AddCommand(NewBalancesCommand(opts))
	cmd.AddCommand(NewMonthlyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) output(cmd *cobra.Command) Output {
	return Output{Format: o.Format, W: cmd.OutOrStdout()}
}

// OpenFromConfig loads configuration and opens the SQLite store, wiring the
// AMQP feed as change publisher when one is configured.
func OpenFromConfig(ctx context.Context, opts *RootOptions) (*Env, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	SetupLogger(cfg, "cli")

	participants, err := cfg.ParticipantSet()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcfg.Type = backend.SQLiteBackend
	if opts.DB != "" {
		bcfg.SQLiteDBPath = opts.DB
	}
	res, err := backend.NewFactory(slog.Default()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	svcOpts := []services.Option{services.WithLocation(loc), services.WithOrigin(Origin("dividictl"))}
	if res.Feed != nil {
		svcOpts = append(svcOpts, services.WithPublisher(res.Feed))
	}
	return &Env{
		Store:        res.Store,
		Participants: participants,
		Expenses:     services.NewExpenseService(res.Store, participants, svcOpts...),
		Settlement:   services.NewSettlementController(res.Store, svcOpts...),
		Formatter:    tracker.NewFormatter(cfg.CurrencySymbol, cfg.Language(), loc),
		Report:       cfg.ReportOptions(),
		Now:          time.Now,
		Close:        res.Cleanup,
	}, nil
}
