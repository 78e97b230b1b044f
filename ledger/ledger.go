// Package ledger implements the append-only, hash-chained credit ledger
// kept per (retailer, wholesaler) pair, and the credit-limit policy applied
// to every entry which increases the retailer's exposure.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/store"
)

// EntryType classifies a ledger entry. DEBIT raises the retailer's
// outstanding balance, CREDIT lowers it, ADJUSTMENT moves it in either
// direction, and REVERSAL exactly undoes one earlier DEBIT or CREDIT.
type EntryType string

const (
	Debit      EntryType = "DEBIT"
	Credit     EntryType = "CREDIT"
	Adjustment EntryType = "ADJUSTMENT"
	Reversal   EntryType = "REVERSAL"
)

// Creators recorded on entries.
const (
	CreatorSystem = "SYSTEM"
	CreatorAdmin  = "ADMIN"
)

// Entry is one committed ledger row. Amount is always a positive magnitude;
// the type (and, for ADJUSTMENT, the balance delta) carries the sign.
type Entry struct {
	ID            uuid.UUID
	RetailerID    uuid.UUID
	WholesalerID  uuid.UUID
	Seq           int64
	Type          EntryType
	Amount        money.Amount
	BalanceAfter  money.Amount
	OrderID       *uuid.UUID
	ReversesEntry *uuid.UUID
	DueDate       *time.Time
	CreatedBy     string
	PrevHash      string
	ContentHash   string
	CreatedAt     time.Time
}

// Append describes an entry to append.
type Append struct {
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
	Type         EntryType
	// Amount is positive for DEBIT and CREDIT and signed for ADJUSTMENT.
	// It is ignored for REVERSAL, which takes its magnitude from the
	// entry being reversed.
	Amount   money.Amount
	OrderID  *uuid.UUID
	Reverses *uuid.UUID
	DueDate  *time.Time
	// CreatedBy is SYSTEM when empty.
	CreatedBy string
}

// Terms is the credit policy in force for one pair: the per-pair override
// when present, the retailer's account otherwise.
type Terms struct {
	Limit              money.Amount
	MaxOrderValue      *money.Amount
	MaxOutstandingDays *int
	Paused             bool
	BlockReason        string
}

// Ledger appends to and reads pair chains. Mutations require the caller's
// Querier to be a serializable transaction.
type Ledger struct{}

// CurrentBalance returns the pair's balance after its most recent entry,
// or zero for a pair with no entries.
func (Ledger) CurrentBalance(ctx context.Context, q store.Querier, retailer, wholesaler uuid.UUID) (money.Amount, error) {
	var raw string
	var err = q.QueryRow(ctx,
		`SELECT balance::text FROM ledger_heads
		 WHERE retailer_id = $1::uuid AND wholesaler_id = $2::uuid`,
		retailer.String(), wholesaler.String()).Scan(&raw)

	if err == pgx.ErrNoRows {
		return money.Zero(), nil
	} else if err != nil {
		return money.Zero(), fault.Wrap(err, fault.Internal, "reading balance of pair (%s, %s)", retailer, wholesaler)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return money.Zero(), fault.Wrap(err, fault.Internal, "parsing balance of pair (%s, %s)", retailer, wholesaler)
	}
	return balance, nil
}

// PairTerms resolves the credit terms in force for a pair.
func (Ledger) PairTerms(ctx context.Context, q store.Querier, retailer, wholesaler uuid.UUID) (Terms, error) {
	var t Terms
	var limit string
	var maxOrder *string
	var maxDays *int
	var active bool
	var blockReason *string

	var err = q.QueryRow(ctx,
		`SELECT credit_limit::text, max_order_value::text, max_outstanding_days, is_active, block_reason
		 FROM retailer_wholesaler_credits
		 WHERE retailer_id = $1::uuid AND wholesaler_id = $2::uuid`,
		retailer.String(), wholesaler.String()).
		Scan(&limit, &maxOrder, &maxDays, &active, &blockReason)

	if err == pgx.ErrNoRows {
		// Fall back to the retailer's account. A retailer with no account
		// has no credit at all.
		err = q.QueryRow(ctx,
			`SELECT credit_limit::text, max_order_value::text, max_outstanding_days
			 FROM credit_accounts WHERE retailer_id = $1::uuid`,
			retailer.String()).Scan(&limit, &maxOrder, &maxDays)

		if err == pgx.ErrNoRows {
			return Terms{Limit: money.Zero()}, nil
		} else if err != nil {
			return Terms{}, fault.Wrap(err, fault.Internal, "reading credit account of %s", retailer)
		}
	} else if err != nil {
		return Terms{}, fault.Wrap(err, fault.Internal, "reading credit terms of pair (%s, %s)", retailer, wholesaler)
	} else if !active {
		t.Paused = true
		if blockReason != nil {
			t.BlockReason = *blockReason
		}
	}

	if t.Limit, err = decimal.NewFromString(limit); err != nil {
		return Terms{}, fault.Wrap(err, fault.Internal, "parsing credit limit")
	}
	if maxOrder != nil {
		v, err := decimal.NewFromString(*maxOrder)
		if err != nil {
			return Terms{}, fault.Wrap(err, fault.Internal, "parsing max order value")
		}
		t.MaxOrderValue = &v
	}
	t.MaxOutstandingDays = maxDays
	return t, nil
}

// AppendEntry appends one entry to a pair's chain under the pair's head
// lock, enforcing the credit limit whenever the entry raises exposure. It
// must run inside the caller's serializable transaction; the head lock
// guarantees each entry's prev_hash is well defined.
func (l Ledger) AppendEntry(ctx context.Context, q store.Querier, req Append) (Entry, error) {
	if err := validateAppend(&req); err != nil {
		return Entry{}, err
	}

	head, err := lockHead(ctx, q, req.RetailerID, req.WholesalerID)
	if err != nil {
		return Entry{}, err
	}

	var magnitude, delta money.Amount
	switch req.Type {
	case Debit:
		magnitude, delta = req.Amount, req.Amount
	case Credit:
		magnitude, delta = req.Amount, req.Amount.Neg()
	case Adjustment:
		magnitude, delta = req.Amount.Abs(), req.Amount
	case Reversal:
		if magnitude, delta, err = l.reversalDelta(ctx, q, req); err != nil {
			return Entry{}, err
		}
	}

	var balance = head.balance.Add(delta)

	if delta.IsPositive() {
		terms, err := l.PairTerms(ctx, q, req.RetailerID, req.WholesalerID)
		if err != nil {
			return Entry{}, err
		}
		if terms.Paused {
			return Entry{}, fault.New(fault.CreditPaused, "credit is paused for pair (%s, %s)",
				req.RetailerID, req.WholesalerID).WithDetail("blockReason", terms.BlockReason)
		}
		if balance.GreaterThan(terms.Limit) {
			return Entry{}, fault.New(fault.CreditLimitExceeded,
				"balance %s would exceed credit limit %s",
				money.String(balance), money.String(terms.Limit)).
				WithDetail("balance", money.String(balance)).
				WithDetail("limit", money.String(terms.Limit))
		}
		if req.Type == Debit && terms.MaxOrderValue != nil && magnitude.GreaterThan(*terms.MaxOrderValue) {
			return Entry{}, fault.New(fault.CreditLimitExceeded,
				"order value %s exceeds per-order cap %s",
				money.String(magnitude), money.String(*terms.MaxOrderValue)).
				WithDetail("cap", money.String(*terms.MaxOrderValue))
		}
		// Debits fall due; default the due date from the pair's terms.
		if req.Type == Debit && req.DueDate == nil && terms.MaxOutstandingDays != nil {
			var due = time.Now().UTC().AddDate(0, 0, *terms.MaxOutstandingDays)
			req.DueDate = &due
		}
	}

	var entry = Entry{
		ID:            uuid.New(),
		RetailerID:    req.RetailerID,
		WholesalerID:  req.WholesalerID,
		Seq:           head.count + 1,
		Type:          req.Type,
		Amount:        magnitude,
		BalanceAfter:  balance,
		OrderID:       req.OrderID,
		ReversesEntry: req.Reverses,
		DueDate:       req.DueDate,
		CreatedBy:     req.CreatedBy,
		PrevHash:      head.lastHash,
		CreatedAt:     time.Now().UTC(),
	}
	entry.ContentHash = ContentHash(entry.Type, entry.Amount, entry.OrderID, entry.PrevHash, entry.CreatedAt)

	if err = insertEntry(ctx, q, entry); err != nil {
		return Entry{}, err
	}
	if _, err = q.Exec(ctx,
		`UPDATE ledger_heads
		 SET last_hash = $3, balance = $4::numeric, entry_count = $5, updated_at = now()
		 WHERE retailer_id = $1::uuid AND wholesaler_id = $2::uuid`,
		entry.RetailerID.String(), entry.WholesalerID.String(),
		entry.ContentHash, money.String(balance), entry.Seq); err != nil {
		return Entry{}, fault.Wrap(err, fault.Internal, "updating chain head")
	}

	// Mirror the retailer's total exposure onto the account row. The mirror
	// is display data clamped into the account's own bounds; reconciliation
	// trusts the chains, never this column.
	if _, err = q.Exec(ctx,
		`UPDATE credit_accounts
		 SET used_credit = LEAST(credit_limit, GREATEST(0, used_credit + $2::numeric)),
			updated_at = now()
		 WHERE retailer_id = $1::uuid`,
		entry.RetailerID.String(), money.String(delta)); err != nil {
		return Entry{}, fault.Wrap(err, fault.Internal, "updating used credit of %s", entry.RetailerID)
	}

	appendsTotal.WithLabelValues(string(entry.Type)).Inc()
	return entry, nil
}

func validateAppend(req *Append) error {
	switch req.Type {
	case Debit, Credit:
		if !req.Amount.IsPositive() {
			return fault.New(fault.InvalidInput, "%s amount must be positive", req.Type)
		}
	case Adjustment:
		if req.Amount.IsZero() {
			return fault.New(fault.InvalidInput, "ADJUSTMENT amount must be nonzero")
		}
	case Reversal:
		if req.Reverses == nil {
			return fault.New(fault.InvalidInput, "REVERSAL requires the entry to reverse")
		}
	default:
		return fault.New(fault.InvalidInput, "unknown ledger entry type %q", req.Type)
	}

	switch req.CreatedBy {
	case "":
		req.CreatedBy = CreatorSystem
	case CreatorSystem, CreatorAdmin:
	default:
		return fault.New(fault.InvalidInput, "unknown ledger creator %q", req.CreatedBy)
	}
	return nil
}

// reversalDelta resolves the entry being reversed and returns its magnitude
// and the opposite of its delta. Only DEBIT and CREDIT entries can be
// reversed, and each at most once.
func (Ledger) reversalDelta(ctx context.Context, q store.Querier, req Append) (magnitude, delta money.Amount, err error) {
	var refType, refAmount string
	err = q.QueryRow(ctx,
		`SELECT entry_type, amount::text FROM ledger_entries
		 WHERE entry_id = $1::uuid AND retailer_id = $2::uuid AND wholesaler_id = $3::uuid`,
		req.Reverses.String(), req.RetailerID.String(), req.WholesalerID.String()).
		Scan(&refType, &refAmount)

	if err == pgx.ErrNoRows {
		return magnitude, delta, fault.New(fault.InvalidInput,
			"entry %s does not exist in this pair's chain", req.Reverses)
	} else if err != nil {
		return magnitude, delta, fault.Wrap(err, fault.Internal, "loading entry %s", req.Reverses)
	}

	if magnitude, err = decimal.NewFromString(refAmount); err != nil {
		return magnitude, delta, fault.Wrap(err, fault.Internal, "parsing amount of entry %s", req.Reverses)
	}

	switch EntryType(refType) {
	case Debit:
		delta = magnitude.Neg()
	case Credit:
		delta = magnitude
	default:
		return magnitude, delta, fault.New(fault.InvalidInput,
			"only DEBIT and CREDIT entries can be reversed, not %s", refType)
	}

	var reversed bool
	if err = q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE reverses_entry_id = $1::uuid)`,
		req.Reverses.String()).Scan(&reversed); err != nil {
		return magnitude, delta, fault.Wrap(err, fault.Internal, "checking reversals of entry %s", req.Reverses)
	}
	if reversed {
		return magnitude, delta, fault.New(fault.InvalidInput, "entry %s is already reversed", req.Reverses)
	}
	return magnitude, delta, nil
}

type head struct {
	lastHash string
	balance  money.Amount
	count    int64
}

// lockHead upserts and row-locks the pair's chain head, serializing all
// appenders of the pair for the rest of the transaction.
func lockHead(ctx context.Context, q store.Querier, retailer, wholesaler uuid.UUID) (head, error) {
	var h head
	if _, err := q.Exec(ctx,
		`INSERT INTO ledger_heads (retailer_id, wholesaler_id)
		 VALUES ($1::uuid, $2::uuid) ON CONFLICT DO NOTHING`,
		retailer.String(), wholesaler.String()); err != nil {
		return h, fault.Wrap(err, fault.Internal, "creating chain head")
	}

	var lastHash *string
	var balance string
	var err = q.QueryRow(ctx,
		`SELECT last_hash, balance::text, entry_count FROM ledger_heads
		 WHERE retailer_id = $1::uuid AND wholesaler_id = $2::uuid FOR UPDATE`,
		retailer.String(), wholesaler.String()).Scan(&lastHash, &balance, &h.count)
	if err != nil {
		return h, fault.Wrap(err, fault.Internal, "locking chain head")
	}

	if lastHash != nil {
		h.lastHash = *lastHash
	}
	if h.balance, err = decimal.NewFromString(balance); err != nil {
		return h, fault.Wrap(err, fault.Internal, "parsing head balance")
	}
	return h, nil
}

func insertEntry(ctx context.Context, q store.Querier, e Entry) error {
	var orderID, reverses *string
	if e.OrderID != nil {
		var s = e.OrderID.String()
		orderID = &s
	}
	if e.ReversesEntry != nil {
		var s = e.ReversesEntry.String()
		reverses = &s
	}

	var _, err = q.Exec(ctx,
		`INSERT INTO ledger_entries
			(entry_id, retailer_id, wholesaler_id, seq, entry_type, amount, balance_after,
			 order_id, reverses_entry_id, due_date, created_by, prev_hash, content_hash, created_at)
		 VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6::numeric, $7::numeric,
			 $8::uuid, $9::uuid, $10, $11, NULLIF($12, ''), $13, $14)`,
		e.ID.String(), e.RetailerID.String(), e.WholesalerID.String(), e.Seq,
		string(e.Type), money.String(e.Amount), money.String(e.BalanceAfter),
		orderID, reverses, e.DueDate, e.CreatedBy, e.PrevHash, e.ContentHash, e.CreatedAt)
	if err != nil {
		return fault.Wrap(err, fault.Internal, "inserting ledger entry")
	}
	return nil
}
