package main

import (
	"context"
	"database/sql"
	"flag"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"revpilot/internal/adapters/collab"
	"revpilot/internal/adapters/observability"
	redisad "revpilot/internal/adapters/redis"
	"revpilot/internal/app"
	"revpilot/internal/domain"
	"revpilot/internal/shared"
	mysqlrepo "revpilot/internal/storage/mysql"
)

// The pipeline runner recomputes every derived snapshot for one as-of date
// (the default) or backfills a date range, fanned out across hotels.
func main() {
	var (
		asOfFlag = flag.String("as-of", "", "as-of date YYYY-MM-DD (default: today)")
		fromFlag = flag.String("from", "", "backfill start date YYYY-MM-DD")
		toFlag   = flag.String("to", "", "backfill end date YYYY-MM-DD (requires -from)")
	)
	flag.Parse()

	ctx := context.Background()
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	asOf := domain.Midnight(time.Now())
	if *asOfFlag != "" {
		d, err := domain.ParseDate(*asOfFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("bad -as-of")
		}
		asOf = d
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	client, err := collab.New(cfg.CollabBase, cfg.CollabKey, cfg.CollabRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize collaborator client")
	}

	windows := app.PickupWindows{T30: 30, T7: 7, T3: 3}
	if len(cfg.PickupWindows) == 3 {
		windows = app.PickupWindows{T30: cfg.PickupWindows[0], T7: cfg.PickupWindows[1], T3: cfg.PickupWindows[2]}
	}
	pipe := app.NewPipeline(
		app.NewOTBService(repo, cache, cfg.HorizonDays),
		app.NewFeatureService(repo, windows),
		app.NewForecastService(repo, client),
		app.NewPricingService(repo, client, cache),
		cfg.Workers,
	)

	hotels, err := repo.ListHotels(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list hotels failed")
	}
	log.Info().Int("hotels", len(hotels)).
		Str("as_of", domain.FormatDate(asOf)).Int("workers", cfg.Workers).
		Msg("pipeline starting")

	run := func(ctx context.Context, hotelID string) error {
		if *fromFlag != "" {
			from, err := domain.ParseDate(*fromFlag)
			if err != nil {
				return err
			}
			to := asOf
			if *toFlag != "" {
				if to, err = domain.ParseDate(*toFlag); err != nil {
					return err
				}
			}
			return pipe.Backfill(ctx, hotelID, from, to)
		}
		return pipe.RunDay(ctx, hotelID, asOf)
	}

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, h := range hotels {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}
		wg.Add(1)
		go func(hotelID string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := run(ctx, hotelID); err != nil {
				log.Warn().Str("hotel", hotelID).Err(err).Msg("pipeline failed")
				return
			}
			log.Info().Str("hotel", hotelID).Msg("pipeline ok")
		}(h.ID)
	}

	wg.Wait()
	log.Info().Msg("pipeline completed")
}
