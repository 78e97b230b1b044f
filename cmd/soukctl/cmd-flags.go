package main

import (
	"context"
	"fmt"

	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/soukworks/souk/store"
)

type cmdFlagsList struct {
	connection
}

func (cmd cmdFlagsList) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var ctx = context.Background()
	db, err := cmd.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := store.ListFlags(ctx, db.Pool)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no launch flags are set")
		return nil
	}

	fmt.Printf("%-24s %-8s %s\n", "FLAG", "ENABLED", "VALUE")
	for _, f := range rows {
		var value = "-"
		if f.IntValue != nil {
			value = fmt.Sprint(*f.IntValue)
		}
		fmt.Printf("%-24s %-8v %s\n", f.Name, f.Enabled, value)
	}
	return nil
}

type cmdFlagsSet struct {
	connection
	Name     string `long:"name" required:"true" description:"Flag name, e.g. EMERGENCY_STOP"`
	Enabled  bool   `long:"enabled" description:"Enable the flag; omit to disable"`
	IntValue *int64 `long:"int-value" description:"Integer value carried by the flag, e.g. the order value cap"`
}

func (cmd cmdFlagsSet) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var ctx = context.Background()
	db, err := cmd.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err = store.SetFlag(ctx, db.Pool, cmd.Name, cmd.Enabled, cmd.IntValue); err != nil {
		return err
	}
	fmt.Printf("%s %s enabled=%v\n", green("OK"), cmd.Name, cmd.Enabled)
	return nil
}
