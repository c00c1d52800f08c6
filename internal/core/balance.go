package core

import "github.com/shopspring/decimal"

// BalanceStatus classifies a net balance.
type BalanceStatus int

const (
	SettledUp BalanceStatus = iota
	Owed                    // paid more than the share
	Owes                    // paid less than the share
)

func (s BalanceStatus) String() string {
	switch s {
	case Owed:
		return "owed"
	case Owes:
		return "owes"
	default:
		return "settled"
	}
}

func (s BalanceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Balance is one participant's position over the unsettled expenses.
type Balance struct {
	Participant string
	Paid        decimal.Decimal // sum of unsettled expenses this participant paid
	Share       decimal.Decimal // equal share of the unsettled total
	Net         decimal.Decimal // Paid - Share; positive = owed money, negative = owes money
}

// Status reports whether the participant is owed money, owes money or is square.
func (b Balance) Status() BalanceStatus {
	switch b.Net.Sign() {
	case 1:
		return Owed
	case -1:
		return Owes
	default:
		return SettledUp
	}
}

// Balances holds one Balance per participant, in participant order.
type Balances []Balance

// Get returns the net balance of a participant.
func (bs Balances) Get(participant string) (decimal.Decimal, bool) {
	for _, b := range bs {
		if b.Participant == participant {
			return b.Net, true
		}
	}
	return decimal.Zero, false
}

// Sum adds all net balances. It is zero, up to division precision, for any input.
func (bs Balances) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, b := range bs {
		total = total.Add(b.Net)
	}
	return total
}

// ComputeBalances splits the unsettled total equally between participants and
// returns, for each of them, what they paid minus their share.
//
// Settled expenses are ignored. No correction is applied for a total that does
// not divide evenly, so the balances may sum to a tiny non-zero remainder.
// An expense paid by someone outside the set still counts toward the total
// but produces no balance line.
func ComputeBalances(expenses []Expense, participants Participants) Balances {
	if participants.Len() == 0 {
		return nil
	}

	paid := make(map[string]decimal.Decimal, participants.Len())
	total := decimal.Zero
	for _, e := range expenses {
		if e.Settled {
			continue
		}
		paid[e.PaidBy] = paid[e.PaidBy].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	share := total.Div(decimal.NewFromInt(int64(participants.Len())))

	out := make(Balances, 0, participants.Len())
	for _, p := range participants.names {
		out = append(out, Balance{
			Participant: p,
			Paid:        paid[p],
			Share:       share,
			Net:         paid[p].Sub(share),
		})
	}
	return out
}
