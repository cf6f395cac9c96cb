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

// ForecastService is the thin boundary around the demand-forecast
// collaborator. One features row in, at most one forecast row out; an
// unavailable collaborator leaves a gap, never a fabricated zero.
type ForecastService struct {
	repo   domain.Repository
	client domain.ForecastClient
}

func NewForecastService(repo domain.Repository, client domain.ForecastClient) *ForecastService {
	return &ForecastService{repo: repo, client: client}
}

type StageStats struct {
	Written int
	Missed  int
}

func (s *ForecastService) Run(ctx context.Context, hotelID string, asOf time.Time) (StageStats, error) {
	asOf = domain.Midnight(asOf)

	hotel, err := s.repo.GetHotel(ctx, hotelID)
	if err != nil {
		return StageStats{}, err
	}
	feats, err := s.repo.ListFeatures(ctx, hotelID, asOf)
	if err != nil {
		return StageStats{}, err
	}
	if len(feats) == 0 {
		return StageStats{}, fmt.Errorf("%w: no features for hotel %s as of %s",
			domain.ErrSnapshotMissing, hotelID, domain.FormatDate(asOf))
	}

	var stats StageStats
	for _, f := range feats {
		res, err := s.client.Forecast(ctx, domain.ForecastRequest{Hotel: hotel, Features: f})
		if err != nil {
			if errors.Is(err, domain.ErrUnavailable) {
				stats.Missed++
				observability.ObserveCollabMiss("forecast")
				log.Warn().Str("hotel", hotelID).
					Str("as_of", domain.FormatDate(asOf)).
					Str("stay", domain.FormatDate(f.StayDate)).
					Msg("forecast unavailable")
				continue
			}
			return stats, err
		}
		row := domain.DemandForecast{
			HotelID:         hotelID,
			AsOfDate:        asOf,
			StayDate:        f.StayDate,
			RemainingDemand: res.RemainingDemand,
			ModelVersion:    res.ModelVersion,
		}
		if err := s.repo.UpsertForecast(ctx, row); err != nil {
			return stats, err
		}
		stats.Written++
	}
	log.Info().Str("hotel", hotelID).Str("as_of", domain.FormatDate(asOf)).
		Int("written", stats.Written).Int("missed", stats.Missed).Msg("forecast stage done")
	return stats, nil
}
