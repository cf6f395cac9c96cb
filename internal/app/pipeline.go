package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"revpilot/internal/adapters/observability"
	"revpilot/internal/domain"
)

// Pipeline runs the derived stages for one hotel in dependency order:
// OTB reconstruction, then features, then forecast, then pricing. Each stage
// reads only what earlier stages persisted, so a day can always be replayed.
type Pipeline struct {
	OTB      *OTBService
	Features *FeatureService
	Forecast *ForecastService
	Pricing  *PricingService
	Workers  int
}

func NewPipeline(otb *OTBService, feats *FeatureService, fc *ForecastService, pr *PricingService, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{OTB: otb, Features: feats, Forecast: fc, Pricing: pr, Workers: workers}
}

// RunDay recomputes every derived snapshot for (hotelID, asOf). Stages run
// sequentially; the first failure stops the day so later stages never read a
// half-built snapshot.
func (p *Pipeline) RunDay(ctx context.Context, hotelID string, asOf time.Time) error {
	asOf = domain.Midnight(asOf)

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"otb", func(ctx context.Context) error {
			_, err := p.OTB.Rebuild(ctx, hotelID, asOf)
			return err
		}},
		{"features", func(ctx context.Context) error {
			_, err := p.Features.Build(ctx, hotelID, asOf)
			return err
		}},
		{"forecast", func(ctx context.Context) error {
			_, err := p.Forecast.Run(ctx, hotelID, asOf)
			return err
		}},
		{"pricing", func(ctx context.Context) error {
			_, err := p.Pricing.Run(ctx, hotelID, asOf)
			return err
		}},
	}

	for _, st := range stages {
		start := time.Now()
		err := st.run(ctx)
		observability.ObserveStage(st.name, err, time.Since(start))
		if err != nil {
			log.Error().Err(err).Str("hotel", hotelID).
				Str("as_of", domain.FormatDate(asOf)).Str("stage", st.name).
				Msg("pipeline stage failed")
			return err
		}
	}
	log.Info().Str("hotel", hotelID).Str("as_of", domain.FormatDate(asOf)).Msg("pipeline day done")
	return nil
}

// Backfill replays the pipeline for every as-of date in [from, to]. The OTB
// stage for distinct as-of dates is independent, so it fans out first; the
// trailing stages then run per date because features read the OTB history of
// earlier dates.
func (p *Pipeline) Backfill(ctx context.Context, hotelID string, from, to time.Time) error {
	from = domain.Midnight(from)
	to = domain.Midnight(to)

	var dates []time.Time
	for d := from; domain.SameOrBefore(d, to); d = domain.AddDays(d, 1) {
		dates = append(dates, d)
	}

	sem := semaphore.NewWeighted(int64(p.Workers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, d := range dates {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(asOf time.Time) {
			defer wg.Done()
			defer sem.Release(1)

			start := time.Now()
			_, err := p.OTB.Rebuild(ctx, hotelID, asOf)
			observability.ObserveStage("otb", err, time.Since(start))
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				log.Warn().Err(err).Str("hotel", hotelID).
					Str("as_of", domain.FormatDate(asOf)).Msg("backfill otb failed")
			}
		}(d)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	// Derived stages in as-of order: pickups and pace for a date read the OTB
	// snapshots of dates before it.
	for _, d := range dates {
		if _, err := p.Features.Build(ctx, hotelID, d); err != nil {
			return err
		}
		if _, err := p.Forecast.Run(ctx, hotelID, d); err != nil {
			return err
		}
		if _, err := p.Pricing.Run(ctx, hotelID, d); err != nil {
			return err
		}
	}
	log.Info().Str("hotel", hotelID).Str("from", domain.FormatDate(from)).
		Str("to", domain.FormatDate(to)).Int("days", len(dates)).Msg("backfill done")
	return nil
}
