// Command example wires the whole subsystem together: a gorm backed event
// log, the event-application repository, a multi-channel dispatcher and a
// balance projection, configured through environment variables.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/altsrc/sourced"
	"github.com/altsrc/sourced/aggregate"
	"github.com/altsrc/sourced/dispatch"
	"github.com/altsrc/sourced/example/account"
	"github.com/altsrc/sourced/gormstore"
	sotel "github.com/altsrc/sourced/otel"
	"github.com/altsrc/sourced/projection"
	"github.com/altsrc/sourced/redisstore"
	"github.com/caarlos0/env/v11"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type config struct {
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"accounts.db"`
	PostgresDSN     string `env:"POSTGRES_DSN"`
	RedisAddr       string `env:"REDIS_ADDR"`
	CheckpointEvery uint64 `env:"CHECKPOINT_EVERY" envDefault:"5"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	checkErr(err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := newStore(cfg)
	checkErr(err)

	defer func() {
		checkErr(store.Close())
	}()

	engine, err := newBalancesEngine(cfg, store, logger)
	checkErr(err)

	dispatcher := dispatch.New()
	dispatcher.Use(dispatch.Logging(logger))

	checkErr(dispatcher.RegisterChannel(
		"projections",
		sotel.WithSinkTelemetry("projections", engine),
	))

	checkErr(dispatcher.RegisterChannel(
		"audit",
		dispatch.SinkFunc(func(ctx context.Context, evt sourced.Event) error {
			logger.InfoContext(ctx, "audit",
				slog.String("event_type", evt.Type),
				slog.String("aggregate_id", evt.AggregateID),
				slog.Uint64("version", evt.Version),
			)

			return nil
		}),
		dispatch.WithFilter(func(evt sourced.Event) bool {
			return evt.Type != sourced.TypeName(account.MoneyDeposited{})
		}),
	))

	handlers := make(map[string]sourced.EventHandler)

	for _, payload := range account.Payloads() {
		handlers[sourced.TypeName(payload)] = store.AppendHandler()
	}

	repo, err := sourced.NewRepository(
		store,
		handlers,
		sourced.WithDispatcher(dispatcher),
		sourced.WithDeclaredEvents(account.Payloads()...),
	)
	checkErr(err)

	saver := sotel.WithRepositoryTelemetry(repo)

	ctx := context.Background()

	id := account.ID(uuid.NewString())

	acc := account.Open(id, "Jane Doe")
	checkErr(acc.Deposit(100))
	checkErr(saver.Save(ctx, acc))

	// Subsequent commands go through load-execute-save
	exec := aggregate.NewExecutor(store, saver, account.Blank)

	checkErr(exec(ctx, id.String(), func(a *account.Account) error {
		return a.Withdraw(25)
	}))

	balances, err := engine.State(ctx)
	checkErr(err)

	fmt.Printf("balances: %v\n", balances)

	// A full rebuild from the log yields the same state
	checkErr(engine.Rebuild(ctx, store.Source(
		gormstore.WithEventTypes(engine.EventTypes()...),
	)))

	balances, err = engine.State(ctx)
	checkErr(err)

	fmt.Printf("balances after rebuild: %v\n", balances)
}

func newStore(cfg config) (*gormstore.Store, error) {
	enc := gormstore.NewJSONEncoder(account.Payloads()...)

	if cfg.PostgresDSN != "" {
		return gormstore.New(enc, gormstore.WithPostgresDB(cfg.PostgresDSN))
	}

	return gormstore.New(enc, gormstore.WithSQLiteDB(cfg.SQLitePath))
}

func newBalancesEngine(cfg config, store *gormstore.Store, logger *slog.Logger) (*projection.Engine[Balances], error) {
	var (
		states      projection.StateStore[Balances]
		checkpoints projection.CheckpointStore
	)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		states = redisstore.NewStateStore[Balances](client)
		checkpoints = redisstore.NewCheckpointStore(client)
	} else {
		states = gormstore.NewStateStore[Balances](store)
		checkpoints = gormstore.NewCheckpointStore(store)
	}

	return projection.New(
		BalancesProjection(),
		states,
		checkpoints,
		projection.WithCheckpointEvery[Balances](cfg.CheckpointEvery),
		projection.WithLogger[Balances](logger),
	)
}

func checkErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
