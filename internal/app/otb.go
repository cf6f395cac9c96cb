package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"revpilot/internal/domain"
)

// OTBService reconstructs the on-the-books position for one hotel and as-of
// date by replaying the reservation ledger. The replay is read-only; results
// land in daily_otb via a transactional slice replace.
type OTBService struct {
	repo        domain.Repository
	cache       domain.Cache
	horizonDays int
}

func NewOTBService(repo domain.Repository, cache domain.Cache, horizonDays int) *OTBService {
	return &OTBService{repo: repo, cache: cache, horizonDays: horizonDays}
}

// Rebuild computes one DailyOTB row per stay date in [asOf, asOf+horizon),
// zero rows included, and returns how many rows were written.
//
// Rules, in order:
//   - only events with booking_date <= asOf exist ("knowledge at A");
//   - the latest event per reservation_ref wins (corrections supersede);
//   - a cancellation only counts once cancel_date <= asOf;
//   - a surviving reservation occupies every night arrival <= S < departure,
//     with total revenue divided evenly across nights.
func (s *OTBService) Rebuild(ctx context.Context, hotelID string, asOf time.Time) (int, error) {
	asOf = domain.Midnight(asOf)

	if _, err := s.repo.GetHotel(ctx, hotelID); err != nil {
		return 0, fmt.Errorf("otb rebuild %s: %w", hotelID, err)
	}

	events, err := s.repo.ListEventsAsOf(ctx, hotelID, asOf)
	if err != nil {
		return 0, err
	}

	// Events arrive ordered by (booking_date, loaded_at, id); keeping the last
	// one per reservation_ref collapses the correction stream deterministically.
	latest := make(map[string]int, len(events))
	for i, e := range events {
		if err := checkEvent(e); err != nil {
			return 0, err
		}
		latest[e.ReservationRef] = i
	}

	// Accumulate in ledger order, not map order: float additions must happen
	// in the same sequence every run for identical stores to produce
	// bit-identical revenue.
	rooms := make([]int, s.horizonDays)
	revenue := make([]float64, s.horizonDays)
	for i, e := range events {
		if latest[e.ReservationRef] != i {
			continue
		}
		if !e.ActiveAt(asOf) {
			continue
		}
		nights := e.Nights()
		perNight := e.Revenue / float64(nights)
		for i := 0; i < nights; i++ {
			stay := domain.AddDays(e.ArrivalDate, i)
			off := domain.DaysBetween(asOf, stay)
			if off < 0 || off >= s.horizonDays {
				continue
			}
			rooms[off] += e.Rooms
			revenue[off] += perNight
		}
	}

	otb := make([]domain.DailyOTB, s.horizonDays)
	for i := 0; i < s.horizonDays; i++ {
		otb[i] = domain.DailyOTB{
			HotelID:    hotelID,
			AsOfDate:   asOf,
			StayDate:   domain.AddDays(asOf, i),
			RoomsOTB:   rooms[i],
			RevenueOTB: revenue[i],
		}
	}

	if err := s.repo.ReplaceDailyOTB(ctx, hotelID, asOf, otb); err != nil {
		return 0, err
	}
	if s.cache != nil {
		// Every stay date in the horizon just gained an as-of row, so its
		// cached pickup history is stale.
		keys := make([]string, s.horizonDays)
		for i := range keys {
			keys[i] = otbHistCacheKey(hotelID, domain.AddDays(asOf, i))
		}
		if err := s.cache.Del(ctx, keys...); err != nil {
			log.Warn().Err(err).Str("hotel", hotelID).Msg("otb history cache invalidation failed")
		}
	}
	log.Info().Str("hotel", hotelID).Str("as_of", domain.FormatDate(asOf)).
		Int("stay_dates", len(otb)).Int("reservations", len(latest)).
		Msg("otb rebuilt")
	return len(otb), nil
}

// checkEvent guards the replay against ledger rows that should be impossible
// after import validation; hitting one is fatal, not a zero snapshot.
func checkEvent(e domain.ReservationEvent) error {
	if e.Rooms <= 0 || e.Revenue < 0 || !e.ArrivalDate.Before(e.DepartureDate) || !e.Status.Valid() {
		return fmt.Errorf("%w: event %d (%s)", domain.ErrCorruptEvent, e.ID, e.ReservationRef)
	}
	return nil
}
