package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/money"
)

type cmdVerifyLedger struct {
	connection
	Retailer   string `long:"retailer" description:"Verify only chains of this retailer UUID"`
	Wholesaler string `long:"wholesaler" description:"Verify only chains of this wholesaler UUID"`
}

func (cmd cmdVerifyLedger) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var ctx = context.Background()
	db, err := cmd.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var led ledger.Ledger
	pairs, err := led.Pairs(ctx, db.Pool)
	if err != nil {
		return err
	}
	if pairs, err = cmd.filter(pairs); err != nil {
		return err
	}

	fmt.Println("Verifying", len(pairs), "chains...")
	var failed int
	for _, p := range pairs {
		fmt.Printf("(%s, %s): ", p.RetailerID, p.WholesalerID)

		report, err := led.VerifyPair(ctx, db.Pool, p.RetailerID, p.WholesalerID)
		if err != nil {
			fmt.Printf("%s\n", red("FAILED"))
			fmt.Println(red("ERROR:"), err)
			failed++
		} else {
			fmt.Printf("%s %d entries, balance %s\n",
				green("PASSED"), report.Entries, money.String(report.Balance))
		}
	}

	fmt.Printf("\nVerified %d chains, %d passed, %d failed\n", len(pairs), len(pairs)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d chains failed verification", failed)
	}
	return nil
}

func (cmd cmdVerifyLedger) filter(pairs []ledger.Pair) ([]ledger.Pair, error) {
	var out = pairs[:0]
	var retailer, wholesaler *uuid.UUID

	if cmd.Retailer != "" {
		id, err := uuid.Parse(cmd.Retailer)
		if err != nil {
			return nil, fmt.Errorf("parsing --retailer: %w", err)
		}
		retailer = &id
	}
	if cmd.Wholesaler != "" {
		id, err := uuid.Parse(cmd.Wholesaler)
		if err != nil {
			return nil, fmt.Errorf("parsing --wholesaler: %w", err)
		}
		wholesaler = &id
	}

	for _, p := range pairs {
		if retailer != nil && p.RetailerID != *retailer {
			continue
		}
		if wholesaler != nil && p.WholesalerID != *wholesaler {
			continue
		}
		out = append(out, p)
	}

	log.WithField("chains", len(out)).Debug("selected chains to verify")
	return out, nil
}

var green = color.New(color.FgGreen).SprintFunc()
var red = color.New(color.FgRed).SprintFunc()
