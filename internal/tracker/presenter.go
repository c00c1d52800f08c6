package tracker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"dividi/internal/core"
)

// DefaultCurrencySymbol is prefixed to every displayed amount.
const DefaultCurrencySymbol = "₹"

// DefaultLanguage drives digit grouping when no locale is configured.
var DefaultLanguage = language.English

// Formatter renders amounts and dates for display.
type Formatter struct {
	Symbol     string
	Location   *time.Location
	TimeLayout string
	printer    *message.Printer
}

func NewFormatter(symbol string, tag language.Tag, loc *time.Location) *Formatter {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{
		Symbol:     symbol,
		Location:   loc,
		TimeLayout: "1/2/2006, 3:04:05 PM",
		printer:    message.NewPrinter(tag),
	}
}

// Money formats d with two decimals and locale grouping, e.g. ₹1,234.50.
func (f *Formatter) Money(d decimal.Decimal) string {
	v, _ := d.Round(2).Float64()
	return f.Symbol + f.printer.Sprintf("%.2f", v)
}

func (f *Formatter) Time(t time.Time) string {
	return t.In(f.Location).Format(f.TimeLayout)
}

// BalanceLine is one rendered participant balance.
type BalanceLine struct {
	Participant string             `json:"participant"`
	Net         decimal.Decimal    `json:"net"`
	Status      core.BalanceStatus `json:"status"`
	Text        string             `json:"text"`
	Current     bool               `json:"current"`
}

func (l BalanceLine) String() string {
	s := l.Participant + ": " + l.Text
	if l.Current {
		s = "* " + s
	}
	return s
}

// BalanceLines renders each participant's net balance in participant order.
// The session's user is flagged as current.
func BalanceLines(v View, s Session, f *Formatter) []BalanceLine {
	out := make([]BalanceLine, 0, len(v.Balances))
	for _, b := range v.Balances {
		line := BalanceLine{
			Participant: b.Participant,
			Net:         b.Net,
			Status:      b.Status(),
			Current:     s.Is(b.Participant),
		}
		switch line.Status {
		case core.Owed:
			line.Text = "You are owed " + f.Money(b.Net)
		case core.Owes:
			line.Text = "You owe " + f.Money(b.Net.Neg())
		default:
			line.Text = "Settled up"
		}
		out = append(out, line)
	}
	return out
}

// MonthLine is one rendered monthly total.
type MonthLine struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
	Text  string          `json:"text"`
}

// MonthLines renders monthly totals in the order they were aggregated.
func MonthLines(v View, f *Formatter) []MonthLine {
	out := make([]MonthLine, 0, len(v.Monthly))
	for _, m := range v.Monthly {
		out = append(out, MonthLine{
			Key:   m.Key.String(),
			Label: m.Key.Label(),
			Total: m.Total,
			Count: m.Count,
			Text:  fmt.Sprintf("%s: %s", m.Key.Label(), f.Money(m.Total)),
		})
	}
	return out
}

// ExpenseLine is one rendered expense.
type ExpenseLine struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      string          `json:"paid_by"`
	Date        time.Time       `json:"date"`
	Settled     bool            `json:"settled"`
	Text        string          `json:"text"`
	When        string          `json:"when"`
}

func ExpenseLines(v View, f *Formatter) []ExpenseLine {
	out := make([]ExpenseLine, 0, len(v.Expenses))
	for _, e := range v.Expenses {
		text := fmt.Sprintf("%s - %s paid by %s", e.Description, f.Money(e.Amount), e.PaidBy)
		if e.Settled {
			text += " ✓ Settled"
		}
		out = append(out, ExpenseLine{
			ID:          e.ID,
			Description: e.Description,
			Amount:      e.Amount,
			PaidBy:      e.PaidBy,
			Date:        e.Date,
			Settled:     e.Settled,
			Text:        text,
			When:        f.Time(e.Date),
		})
	}
	return out
}
