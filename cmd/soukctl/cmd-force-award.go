package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/soukworks/souk/decision"
	"github.com/soukworks/souk/notify"
	"github.com/soukworks/souk/store"
)

type cmdForceAward struct {
	connection
	Order      string `long:"order" required:"true" description:"Order UUID"`
	Wholesaler string `long:"wholesaler" required:"true" description:"Wholesaler UUID to award the order to"`
}

func (cmd cmdForceAward) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	orderID, err := uuid.Parse(cmd.Order)
	if err != nil {
		return fmt.Errorf("parsing --order: %w", err)
	}
	wholesalerID, err := uuid.Parse(cmd.Wholesaler)
	if err != nil {
		return fmt.Errorf("parsing --wholesaler: %w", err)
	}

	var ctx = context.Background()
	db, err := cmd.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var runner = store.NewRunner(db, 3, 10*time.Second)
	var engine = decision.NewEngine(runner, notify.Inline{})

	res, err := engine.ForceAward(ctx, orderID, wholesalerID)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"order":      res.OrderID,
		"wholesaler": res.Winner,
		"offer":      res.OfferID,
	}).Info("forced award committed")

	fmt.Printf("%s order %s awarded to %s (offer %s, score %.3f)\n",
		green("OK"), res.OrderID, res.Winner, res.OfferID, res.Score)
	return nil
}
