package projection

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
)

// FundingPayment is one trader's settled funding for a funding application.
// Payment sign follows the trader's cash account: positive means the trader
// received funding, negative means the trader paid.
type FundingPayment struct {
	TraderID  uuid.UUID
	MarketID  string
	Amount    int64
	Sequence  int64
	Timestamp int64
}

// recordFundingPayment extracts the trader side of a funding journal and
// appends it to the funding payment history table. Funding journals always
// have exactly one trader account; the other side is the group funding pool.
func recordFundingPayment(ctx context.Context, tx *sql.Tx, seq int64, marketID *string, ts int64, j JournalEntry) error {
	traderID, amount, ok := traderSideOf(j)
	if !ok {
		return nil
	}

	market := ""
	if marketID != nil {
		market = *marketID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.funding_payments
			(trader_id, market_id, amount, sequence, timestamp_us)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, traderID, market, amount, seq, ts)
	return err
}

// traderSideOf returns the trader UUID touched by a journal and the signed
// amount from the trader's perspective (debit positive, credit negative).
func traderSideOf(j JournalEntry) (uuid.UUID, int64, bool) {
	if id, ok := traderFromPath(j.DebitAccount); ok {
		return id, j.Amount, true
	}
	if id, ok := traderFromPath(j.CreditAccount); ok {
		return id, -j.Amount, true
	}
	return uuid.Nil, 0, false
}

func traderFromPath(path string) (uuid.UUID, bool) {
	if !strings.HasPrefix(path, "trader:") {
		return uuid.Nil, false
	}
	parts := strings.Split(path, ":")
	if len(parts) < 2 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
