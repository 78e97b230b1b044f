package main

import (
	"context"

	"github.com/jessevdk/go-flags"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/soukworks/souk/store"
)

const iniFilename = "souk.ini"

// connection is the database configuration shared by soukctl commands.
type connection struct {
	DBURL       string                `long:"db-url" env:"DB_URL" required:"true" description:"PostgreSQL connection URL"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func (c connection) open(ctx context.Context) (*store.DB, error) {
	return store.Open(ctx, c.DBURL)
}

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	_, _ = parser.AddCommand("apply-schema", "Apply the database schema", `
Apply the souk database schema to the configured PostgreSQL database.
Statements are idempotent: re-applying a current schema is a no-op.
`, &cmdApplySchema{})

	_, _ = parser.AddCommand("verify-ledger", "Verify credit ledger hash chains", `
Recompute every credit ledger hash chain and check entry hashes, sequence
numbers, running balances, and the stored chain head. With --retailer or
--wholesaler, verify only matching chains.
`, &cmdVerifyLedger{})

	_, _ = parser.AddCommand("force-award", "Force an order's winning wholesaler", `
Award an order to the given wholesaler regardless of its score ranking.
The wholesaler must hold an open offer, and stock and credit checks still
apply. An order which already FAILED is re-opened first.
`, &cmdForceAward{})

	_, _ = parser.AddCommand("advance", "Advance an order's delivery state", `
Record an order state transition observed outside the webhook surface,
such as the operational delivery steps (PROCESSING, PACKED,
OUT_FOR_DELIVERY, SHIPPED). The transition must be legal for the order's
current state.
`, &cmdAdvance{})

	flagsCmd, err := parser.Command.AddCommand("flags", "Inspect or set launch flags", "", &struct{}{})
	mbp.Must(err, "failed to add command")

	_, _ = flagsCmd.AddCommand("list", "List launch flags", `
List every launch flag with its current value.
`, &cmdFlagsList{})

	_, _ = flagsCmd.AddCommand("set", "Set a launch flag", `
Upsert a launch flag. Running daemons cache flag reads briefly; a change
takes effect fleet-wide within seconds.
`, &cmdFlagsSet{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
