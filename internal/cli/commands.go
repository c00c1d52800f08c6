package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"dividi/internal/core"
	"dividi/internal/report"
	"dividi/internal/tracker"
)

const noDataMessage = "No unsettled expenses found for this month."

// domainExit maps service errors onto exit codes.
func domainExit(action string, err error) error {
	if core.IsValidation(err) {
		return WrapExitError(ExitCommandError, action, err)
	}
	return WrapExitError(ExitFailure, action, err)
}

// view reads the store once and derives balances and monthly totals.
func (o *RootOptions) view(cmd *cobra.Command) (tracker.View, error) {
	snap, err := o.env.Store.Snapshot(cmd.Context())
	if err != nil {
		return tracker.View{}, WrapExitError(ExitFailure, "read expenses", err)
	}
	return tracker.Compute(snap, o.env.Participants, o.env.Formatter.Location), nil
}

func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var paidBy string

	cmd := &cobra.Command{
		Use:   "add <description> <amount>",
		Short: "Record a new shared expense",
		Example: `  dividictl add "Groceries" 42.50 --paid-by Alice
  dividictl --as Bob add "Taxi" 18`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if paidBy == "" {
				paidBy = rootOpts.As
			}
			if paidBy == "" {
				return NewExitError(ExitCommandError, "--paid-by is required unless --as is set")
			}

			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return domainExit("invalid amount", &core.ValidationError{Field: "amount", Err: err})
			}

			id, err := rootOpts.env.Expenses.CreateExpense(cmd.Context(), core.ExpenseInput{
				Description: args[0],
				Amount:      amount,
				PaidBy:      paidBy,
			})
			if err != nil {
				return domainExit("add expense", err)
			}

			return rootOpts.output(cmd).Print(map[string]string{"id": id}, func(w io.Writer) {
				fmt.Fprintf(w, "Added %s (%s paid by %s)\n", id, rootOpts.env.Formatter.Money(amount), paidBy)
			})
		},
	}

	cmd.Flags().StringVar(&paidBy, "paid-by", "", "participant who paid (defaults to --as)")
	return cmd
}

func NewSettleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "settle <id>",
		Short:         "Mark an expense as settled",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := rootOpts.env.Settlement.MarkSettled(cmd.Context(), id); err != nil {
				return domainExit("settle", err)
			}
			return rootOpts.output(cmd).Print(map[string]string{"id": id}, func(w io.Writer) {
				fmt.Fprintf(w, "Settled %s\n", id)
			})
		},
	}
}

func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:           "clear",
		Short:         "Delete every expense",
		Long:          "Delete every expense, settled or not. Asks for confirmation unless --yes is given.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Delete all expenses? This cannot be undone. [y/N] ")
				if err != nil {
					return WrapExitError(ExitFailure, "read confirmation", err)
				}
				if !ok {
					return out.Info("cancelled", "Nothing deleted.")
				}
			}
			if err := rootOpts.env.Settlement.ClearAll(cmd.Context()); err != nil {
				return domainExit("clear", err)
			}
			return out.Info("ok", "All expenses deleted.")
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, prompt io.Writer, question string) (bool, error) {
	fmt.Fprint(prompt, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

type expensesOutput struct {
	Revision    uint64                `json:"revision"`
	Expenses    []tracker.ExpenseLine `json:"expenses"`
	Outstanding decimal.Decimal       `json:"outstanding"`
}

func NewExpensesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "expenses",
		Aliases:       []string{"ls"},
		Short:         "List all expenses in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := rootOpts.view(cmd)
			if err != nil {
				return err
			}
			f := rootOpts.env.Formatter
			lines := tracker.ExpenseLines(v, f)
			data := expensesOutput{Revision: v.Revision, Expenses: lines, Outstanding: v.Outstanding()}
			return rootOpts.output(cmd).Print(data, func(w io.Writer) {
				if len(lines) == 0 {
					fmt.Fprintln(w, "No expenses yet.")
					return
				}
				for _, l := range lines {
					fmt.Fprintf(w, "%s  %s  %s\n", l.ID, l.When, l.Text)
				}
				fmt.Fprintf(w, "Outstanding: %s\n", f.Money(v.Outstanding()))
			})
		},
	}
}

func NewBalancesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "balances",
		Short:         "Show each participant's net balance",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := tracker.NewSession(rootOpts.env.Participants, rootOpts.As)
			if err != nil {
				return domainExit("invalid --as", err)
			}
			v, err := rootOpts.view(cmd)
			if err != nil {
				return err
			}
			lines := tracker.BalanceLines(v, session, rootOpts.env.Formatter)
			return rootOpts.output(cmd).Print(lines, func(w io.Writer) {
				for _, l := range lines {
					fmt.Fprintln(w, l.String())
				}
			})
		},
	}
}

func NewMonthlyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "monthly",
		Short:         "Show expense totals per calendar month",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := rootOpts.view(cmd)
			if err != nil {
				return err
			}
			lines := tracker.MonthLines(v, rootOpts.env.Formatter)
			return rootOpts.output(cmd).Print(lines, func(w io.Writer) {
				if len(lines) == 0 {
					fmt.Fprintln(w, "No expenses yet.")
					return
				}
				for _, l := range lines {
					fmt.Fprintln(w, l.Text)
				}
			})
		},
	}
}

type exportOutput struct {
	File  string          `json:"file"`
	Month string          `json:"month"`
	Rows  int             `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		year  int
		month int
		out   string
		xlsx  bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one month's unsettled expenses as CSV or XLSX",
		Long: `Write the unsettled expenses of one calendar month to a report file.
The month defaults to the current one. Use --out - to write to stdout.`,
		Example: `  dividictl export
  dividictl export --year 2024 --month 3 --xlsx
  dividictl export --out - > march.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := rootOpts.env
			now := env.Now().In(env.Formatter.Location)
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			if year < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --year %d", year))
			}
			if month < 1 || month > 12 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --month %d: must be 1-12", month))
			}
			format := report.FormatCSV
			if xlsx {
				format = report.FormatXLSX
			}

			snap, err := env.Store.Snapshot(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "read expenses", err)
			}
			rep, err := core.ExportMonth(snap.Expenses, year, time.Month(month), env.Report)
			if errors.Is(err, core.ErrNoData) {
				return rootOpts.output(cmd).Info("nodata", noDataMessage)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "export", err)
			}
			body, _, err := report.Render(rep, format)
			if err != nil {
				return WrapExitError(ExitFailure, "render report", err)
			}

			if out == "-" {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			if out == "" {
				out = rep.Filename(format)
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return WrapExitError(ExitFailure, "write report", err)
			}

			data := exportOutput{File: out, Month: rep.Key.String(), Rows: len(rep.Rows), Total: rep.Total()}
			return rootOpts.output(cmd).Print(data, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote %d expenses (%s) to %s\n", data.Rows, env.Formatter.Money(data.Total), out)
			})
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "report year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "report month 1-12 (default current)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default Expenses_YYYY-MM.<ext>)")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "write an XLSX workbook instead of CSV")
	return cmd
}
