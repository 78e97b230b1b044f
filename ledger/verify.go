package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/store"
)

// Pair identifies one chain.
type Pair struct {
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
}

// VerifyReport summarizes a verified chain.
type VerifyReport struct {
	Entries  int
	Balance  money.Amount
	LastHash string
}

// VerifyChain re-derives a chain from its entries, in order: hash linkage,
// content hashes, dense sequence numbers, and running balances must all
// match what was recorded. It is pure; loading is the caller's concern.
func VerifyChain(entries []Entry) (VerifyReport, error) {
	var report VerifyReport
	var balance = money.Zero()
	var prevHash string
	var byID = make(map[uuid.UUID]Entry, len(entries))

	for i, e := range entries {
		if e.Seq != int64(i)+1 {
			return report, fmt.Errorf("entry %s: sequence %d at position %d breaks the chain", e.ID, e.Seq, i+1)
		}
		if e.PrevHash != prevHash {
			return report, fmt.Errorf("entry %s: prev_hash %q does not match predecessor hash %q", e.ID, e.PrevHash, prevHash)
		}
		if got := ContentHash(e.Type, e.Amount, e.OrderID, e.PrevHash, e.CreatedAt); got != e.ContentHash {
			return report, fmt.Errorf("entry %s: content_hash %q does not match recomputation %q", e.ID, e.ContentHash, got)
		}
		if !e.Amount.IsPositive() {
			return report, fmt.Errorf("entry %s: amount %s is not positive", e.ID, money.String(e.Amount))
		}

		var expect money.Amount
		switch e.Type {
		case Debit:
			expect = balance.Add(e.Amount)
		case Credit:
			expect = balance.Sub(e.Amount)
		case Adjustment:
			// The stored magnitude is unsigned; the recorded balance tells
			// us the direction, and must differ by exactly the magnitude.
			if e.BalanceAfter.Equal(balance.Add(e.Amount)) || e.BalanceAfter.Equal(balance.Sub(e.Amount)) {
				expect = e.BalanceAfter
			} else {
				return report, fmt.Errorf("entry %s: adjustment of %s cannot reach balance %s from %s",
					e.ID, money.String(e.Amount), money.String(e.BalanceAfter), money.String(balance))
			}
		case Reversal:
			if e.ReversesEntry == nil {
				return report, fmt.Errorf("entry %s: reversal without a referenced entry", e.ID)
			}
			ref, ok := byID[*e.ReversesEntry]
			if !ok {
				return report, fmt.Errorf("entry %s: reverses unknown entry %s", e.ID, e.ReversesEntry)
			}
			switch ref.Type {
			case Debit:
				expect = balance.Sub(e.Amount)
			case Credit:
				expect = balance.Add(e.Amount)
			default:
				return report, fmt.Errorf("entry %s: reverses a %s entry", e.ID, ref.Type)
			}
			if !e.Amount.Equal(ref.Amount) {
				return report, fmt.Errorf("entry %s: reversal amount %s differs from reversed amount %s",
					e.ID, money.String(e.Amount), money.String(ref.Amount))
			}
		default:
			return report, fmt.Errorf("entry %s: unknown type %q", e.ID, e.Type)
		}

		if !e.BalanceAfter.Equal(expect) {
			return report, fmt.Errorf("entry %s: balance_after %s does not match running balance %s",
				e.ID, money.String(e.BalanceAfter), money.String(expect))
		}

		balance = e.BalanceAfter
		prevHash = e.ContentHash
		byID[e.ID] = e
	}

	report.Entries = len(entries)
	report.Balance = balance
	report.LastHash = prevHash
	return report, nil
}

// ChainEntries loads a pair's full chain in order.
func (Ledger) ChainEntries(ctx context.Context, q store.Querier, retailer, wholesaler uuid.UUID) ([]Entry, error) {
	rows, err := q.Query(ctx,
		`SELECT entry_id::text, seq, entry_type, amount::text, balance_after::text,
			order_id::text, reverses_entry_id::text, due_date, created_by,
			COALESCE(prev_hash, ''), content_hash, created_at
		 FROM ledger_entries
		 WHERE retailer_id = $1::uuid AND wholesaler_id = $2::uuid
		 ORDER BY seq`,
		retailer.String(), wholesaler.String())
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "loading chain of pair (%s, %s)", retailer, wholesaler)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e = Entry{RetailerID: retailer, WholesalerID: wholesaler}
		var id, entryType, amount, balance string
		var orderID, reverses *string

		if err = rows.Scan(&id, &e.Seq, &entryType, &amount, &balance,
			&orderID, &reverses, &e.DueDate, &e.CreatedBy,
			&e.PrevHash, &e.ContentHash, &e.CreatedAt); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "scanning ledger entry")
		}

		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing entry id")
		}
		e.Type = EntryType(entryType)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing entry amount")
		}
		if e.BalanceAfter, err = decimal.NewFromString(balance); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing entry balance")
		}
		if orderID != nil {
			v, err := uuid.Parse(*orderID)
			if err != nil {
				return nil, fault.Wrap(err, fault.Internal, "parsing entry order id")
			}
			e.OrderID = &v
		}
		if reverses != nil {
			v, err := uuid.Parse(*reverses)
			if err != nil {
				return nil, fault.Wrap(err, fault.Internal, "parsing reversed entry id")
			}
			e.ReversesEntry = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Pairs lists every chain known to the ledger.
func (Ledger) Pairs(ctx context.Context, q store.Querier) ([]Pair, error) {
	rows, err := q.Query(ctx,
		`SELECT retailer_id::text, wholesaler_id::text FROM ledger_heads
		 ORDER BY retailer_id, wholesaler_id`)
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "listing ledger pairs")
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var r, w string
		if err = rows.Scan(&r, &w); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "scanning ledger pair")
		}
		var p Pair
		if p.RetailerID, err = uuid.Parse(r); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing pair retailer")
		}
		if p.WholesalerID, err = uuid.Parse(w); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing pair wholesaler")
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// VerifyPair loads and verifies one chain, and confirms the stored head
// matches the recomputation.
func (l Ledger) VerifyPair(ctx context.Context, q store.Querier, retailer, wholesaler uuid.UUID) (VerifyReport, error) {
	entries, err := l.ChainEntries(ctx, q, retailer, wholesaler)
	if err != nil {
		return VerifyReport{}, err
	}
	report, err := VerifyChain(entries)
	if err != nil {
		verifyFailures.Inc()
		return report, err
	}

	var lastHash *string
	var balance string
	var count int64
	err = q.QueryRow(ctx,
		`SELECT last_hash, balance::text, entry_count FROM ledger_heads
		 WHERE retailer_id = $1::uuid AND wholesaler_id = $2::uuid`,
		retailer.String(), wholesaler.String()).Scan(&lastHash, &balance, &count)

	if err == pgx.ErrNoRows {
		if len(entries) != 0 {
			verifyFailures.Inc()
			return report, fmt.Errorf("chain has %d entries but no head row", len(entries))
		}
		return report, nil
	} else if err != nil {
		return report, fault.Wrap(err, fault.Internal, "loading chain head")
	}

	headBalance, err := decimal.NewFromString(balance)
	if err != nil {
		return report, fault.Wrap(err, fault.Internal, "parsing head balance")
	}

	if count != int64(report.Entries) {
		verifyFailures.Inc()
		return report, fmt.Errorf("head counts %d entries but the chain has %d", count, report.Entries)
	}
	if !headBalance.Equal(report.Balance) {
		verifyFailures.Inc()
		return report, fmt.Errorf("head balance %s does not match chain balance %s",
			money.String(headBalance), money.String(report.Balance))
	}
	if (lastHash == nil) != (report.LastHash == "") || (lastHash != nil && *lastHash != report.LastHash) {
		verifyFailures.Inc()
		return report, fmt.Errorf("head hash does not match the chain's final entry")
	}
	return report, nil
}
