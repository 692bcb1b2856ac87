package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/config"
	"github.com/abustany/monthly-board/pkg/endpoint"
	"github.com/abustany/monthly-board/pkg/kvstore"
	"github.com/abustany/monthly-board/pkg/postservice"
	"github.com/abustany/monthly-board/pkg/poststore"
)

func die(logger log.Logger, err error) {
	logger.Log("startup_error", err)
	os.Exit(1)
}

func importCSV(ctx context.Context, store *poststore.Store, path string) (uint, error) {
	fd, err := os.Open(path)

	if err != nil {
		return 0, errors.Wrap(err, "Error while opening CSV file")
	}

	defer fd.Close()

	return poststore.LoadFromCSV(ctx, store, fd, true)
}

func main() {
	envFile := flag.String("env-file", ".env", "Path of a .env file to read settings from")
	listenAddress := flag.String("listen", "", "Address on which to start the HTTP server (overrides BOARD_LISTEN)")
	csvPath := flag.String("import", "", "CSV file of posts to import at startup")
	migrateOnly := flag.Bool("migrate-only", false, "Migrate legacy posts and exit")

	flag.Parse()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	mainLogger := log.With(logger, "module", "main")

	if err := config.LoadEnvFile(*envFile); err != nil {
		die(mainLogger, err)
	}

	cfg, err := config.New()

	if err != nil {
		die(mainLogger, err)
	}

	if *listenAddress != "" {
		cfg.ListenAddress = *listenAddress
	}

	location, err := cfg.Location()

	if err != nil {
		die(mainLogger, err)
	}

	ctx := context.Background()
	kv, err := kvstore.Open(ctx, cfg.StoreOptions())

	if err != nil {
		die(mainLogger, errors.Wrap(err, "Error while opening storage backend"))
	}

	defer kv.Close()

	store := poststore.New(kv, location)
	service := postservice.New(store, postservice.WithLogger(logger))

	// The board stays usable when the legacy posts cannot be migrated: they
	// are left in place and the migration runs again on the next start.
	if _, err := service.Load(ctx); err != nil {
		if !poststore.IsRecovered(err) && errors.Cause(err) != poststore.ErrCorruptLegacyData {
			die(mainLogger, err)
		}

		level.Warn(mainLogger).Log("event", "migration_failed", "err", err)
	}

	if *migrateOnly {
		return
	}

	if *csvPath != "" {
		n, err := importCSV(ctx, store, *csvPath)

		if err != nil && !poststore.IsRecovered(err) {
			die(mainLogger, errors.Wrap(err, "Error while importing posts"))
		}

		mainLogger.Log("event", "csv_import", "imported", n, "err", err)
	}

	ep := endpoint.NewHttpEndpoint(logger, service, endpoint.Options{
		Backgrounds: cfg.Backgrounds,
		Location:    location,
		Timeout:     cfg.Timeout,
	})

	mainLogger.Log("listen", cfg.ListenAddress, "backend", cfg.Backend)
	err = http.ListenAndServe(cfg.ListenAddress, ep)

	if err != nil {
		die(mainLogger, errors.Wrap(err, "Error while starting HTTP server"))
	}
}
