package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"revpilot/internal/adapters/observability"
	"revpilot/internal/domain"
)

// PricingService turns forecasts into price recommendations via the external
// pricing collaborator. Stay dates without a forecast are skipped outright;
// the adapter's job is to record what the collaborator said, not to invent
// prices.
type PricingService struct {
	repo   domain.Repository
	client domain.PricingClient
	cache  domain.Cache
}

func NewPricingService(repo domain.Repository, client domain.PricingClient, cache domain.Cache) *PricingService {
	return &PricingService{repo: repo, client: client, cache: cache}
}

func recsCacheKey(hotelID string, asOf time.Time) string {
	return fmt.Sprintf("recs:%s:%s", hotelID, domain.FormatDate(asOf))
}

func (s *PricingService) Run(ctx context.Context, hotelID string, asOf time.Time) (StageStats, error) {
	asOf = domain.Midnight(asOf)

	hotel, err := s.repo.GetHotel(ctx, hotelID)
	if err != nil {
		return StageStats{}, err
	}
	forecasts, err := s.repo.ListForecasts(ctx, hotelID, asOf)
	if err != nil {
		return StageStats{}, err
	}

	var stats StageStats
	for _, fc := range forecasts {
		res, err := s.client.Price(ctx, domain.PriceRequest{
			Hotel:        hotel,
			Forecast:     fc,
			CurrentPrice: hotel.BasePrice,
		})
		if err != nil {
			if errors.Is(err, domain.ErrUnavailable) {
				stats.Missed++
				observability.ObserveCollabMiss("pricing")
				log.Warn().Str("hotel", hotelID).
					Str("as_of", domain.FormatDate(asOf)).
					Str("stay", domain.FormatDate(fc.StayDate)).
					Msg("price recommendation unavailable")
				continue
			}
			return stats, err
		}
		rec := domain.PriceRecommendation{
			HotelID:          hotelID,
			AsOfDate:         asOf,
			StayDate:         fc.StayDate,
			CurrentPrice:     hotel.BasePrice,
			RecommendedPrice: res.RecommendedPrice,
			ExpectedRevenue:  res.ExpectedRevenue,
			UpliftPct:        res.UpliftPct,
			Explanation:      res.Explanation,
		}
		if err := s.repo.UpsertRecommendation(ctx, rec); err != nil {
			return stats, err
		}
		stats.Written++
	}

	// Invalidate even when nothing was written: a fully-missed run must not
	// keep serving a list cached before the recompute.
	if s.cache != nil {
		if err := s.cache.Del(ctx, recsCacheKey(hotelID, asOf)); err != nil {
			log.Warn().Err(err).Str("hotel", hotelID).Msg("recommendation cache invalidation failed")
		}
	}
	log.Info().Str("hotel", hotelID).Str("as_of", domain.FormatDate(asOf)).
		Int("written", stats.Written).Int("missed", stats.Missed).Msg("pricing stage done")
	return stats, nil
}
