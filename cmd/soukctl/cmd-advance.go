package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/store"
)

type cmdAdvance struct {
	connection
	Order  string `long:"order" required:"true" description:"Order UUID"`
	To     string `long:"to" required:"true" description:"Target state, e.g. PROCESSING"`
	Reason string `long:"reason" description:"Reason recorded in the audit log"`
}

func (cmd cmdAdvance) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	orderID, err := uuid.Parse(cmd.Order)
	if err != nil {
		return fmt.Errorf("parsing --order: %w", err)
	}
	to, err := orders.ParseState(cmd.To)
	if err != nil {
		return err
	}

	var ctx = context.Background()
	db, err := cmd.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var runner = store.NewRunner(db, 3, 10*time.Second)
	var st orders.Store

	var updated orders.Order
	err = runner.Transact(ctx, "advance-order", "orders", func(q store.Querier) error {
		if _, err := st.GetForUpdate(ctx, q, orderID); err != nil {
			return err
		}
		var err error
		updated, err = st.Transition(ctx, q, orderID, to, orders.ActorAdmin, cmd.Reason)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s order %s is now %s\n", green("OK"), updated.ID, updated.State)
	return nil
}
