package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"
	"go.gazette.dev/core/task"

	"github.com/soukworks/souk/command"
	"github.com/soukworks/souk/decision"
	"github.com/soukworks/souk/idempotency"
	"github.com/soukworks/souk/ingress"
	"github.com/soukworks/souk/notify"
	"github.com/soukworks/souk/store"
	"github.com/soukworks/souk/workers"
)

const iniFilename = "souk.ini"

// Config is the top-level configuration object of a souk daemon.
var Config = new(struct {
	Souk struct {
		Addr           string `long:"addr" env:"ADDR" default:":8080" description:"Address of the webhook ingress"`
		DBURL          string `long:"db-url" env:"DB_URL" required:"true" description:"PostgreSQL connection URL"`
		RedisURL       string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for order events; events are logged inline when unset"`
		ApplySchema    bool   `long:"apply-schema" env:"APPLY_SCHEMA" description:"Apply the database schema on startup"`
		IdempotencyTTL int    `long:"idempotency-ttl-sec" env:"IDEMPOTENCY_TTL_SEC" default:"86400" description:"Seconds a cached webhook response stays replayable"`
		TxMaxRetries   int    `long:"transaction-max-retries" env:"TRANSACTION_MAX_RETRIES" default:"3" description:"Serialization retries per transaction"`
		TxTimeoutMS    int    `long:"transaction-timeout-ms" env:"TRANSACTION_TIMEOUT_MS" default:"10000" description:"Per-attempt transaction deadline in milliseconds"`
	} `group:"Souk" namespace:"souk"`

	Workers struct {
		TickBidding         int `long:"tick-bidding" env:"WORKER_TICK_BIDDING" default:"120" description:"Seconds between bid-window expiry sweeps"`
		TickConfirmation    int `long:"tick-confirmation" env:"WORKER_TICK_CONFIRMATION" default:"120" description:"Seconds between confirmation-timeout sweeps"`
		TickIdempotencyGC   int `long:"tick-idempotency-gc" env:"WORKER_TICK_IDEMPOTENCY_GC" default:"3600" description:"Seconds between idempotency GC sweeps"`
		TickPending         int `long:"tick-pending" env:"WORKER_TICK_PENDING" default:"21600" description:"Seconds between stale-order sweeps"`
		ConfirmationTimeout int `long:"confirmation-timeout-min" env:"CONFIRMATION_TIMEOUT_MIN" default:"15" description:"Minutes the awarded wholesaler has to confirm"`
	} `group:"Workers" namespace:"workers"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	mbp.InitLog(Config.Log)

	log.WithFields(log.Fields{
		"config":    Config,
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
	}).Info("soukd configuration")

	var ctx = context.Background()

	db, err := store.Open(ctx, Config.Souk.DBURL)
	mbp.Must(err, "opening database")
	defer db.Close()

	if Config.Souk.ApplySchema {
		mbp.Must(db.ApplySchema(ctx), "applying schema")
	}

	var runner = store.NewRunner(db, Config.Souk.TxMaxRetries,
		time.Duration(Config.Souk.TxTimeoutMS)*time.Millisecond)
	var launchFlags = store.NewFlags(db)
	var idem = idempotency.New(db, time.Duration(Config.Souk.IdempotencyTTL)*time.Second)

	var emitter notify.Emitter = notify.Inline{}
	if Config.Souk.RedisURL != "" {
		rd, err := notify.NewRedis(ctx, Config.Souk.RedisURL)
		mbp.Must(err, "connecting to Redis")
		defer rd.Close()
		emitter = rd
	}
	emitter = notify.NewDeduped(emitter)

	var engine = decision.NewEngine(runner, emitter)
	var exec = &command.Executor{
		DB:      db,
		Runner:  runner,
		Idem:    idem,
		Flags:   launchFlags,
		Engine:  engine,
		Emitter: emitter,
	}

	var (
		tasks    = task.NewGroup(context.Background())
		signalCh = make(chan os.Signal, 1)
	)

	var srv = ingress.NewServer(Config.Souk.Addr, exec, ingress.Reader{DB: db}, db.Pool)
	srv.QueueTasks(tasks)

	var sweeper = workers.NewSweeper(workers.Config{
		BiddingTick:        time.Duration(Config.Workers.TickBidding) * time.Second,
		ConfirmationTick:   time.Duration(Config.Workers.TickConfirmation) * time.Second,
		IdempotencyGCTick:  time.Duration(Config.Workers.TickIdempotencyGC) * time.Second,
		PendingTick:        time.Duration(Config.Workers.TickPending) * time.Second,
		ConfirmationWindow: time.Duration(Config.Workers.ConfirmationTimeout) * time.Minute,
	}, db, runner, engine, idem, emitter)
	sweeper.QueueTasks(tasks)

	log.WithField("addr", Config.Souk.Addr).Info("starting soukd")

	// Install signal handler & start service tasks.
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	tasks.Queue("watch signalCh", func() error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			tasks.Cancel()
		case <-tasks.Context().Done():
		}
		return nil
	})
	tasks.GoRun()

	// Block until all tasks complete. Assert none returned an error.
	mbp.Must(tasks.Wait(), "soukd task failed")
	log.Info("goodbye")

	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve the order fulfillment engine", `
Serve the souk order fulfillment engine with the provided configuration,
until signaled to exit (via SIGTERM).
`, &cmdServe{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
