package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdApplySchema struct {
	connection
}

func (cmd cmdApplySchema) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	log.WithFields(log.Fields{
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
	}).Info("soukctl apply-schema")

	var ctx = context.Background()
	db, err := cmd.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err = db.ApplySchema(ctx); err != nil {
		return err
	}
	fmt.Println(green("OK"), "schema applied")
	return nil
}
