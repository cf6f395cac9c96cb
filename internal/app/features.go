package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"revpilot/internal/domain"
)

// lastYearOffset preserves day-of-week alignment: 52 weeks, not 365 days.
const lastYearOffset = -364

// PickupWindows are the trailing as-of distances (days) behind the three
// pickup signals. Sizes come from configuration, not from the service.
type PickupWindows struct {
	T30, T7, T3 int
}

// FeatureService derives trend features from DailyOTB snapshot history.
type FeatureService struct {
	repo    domain.Repository
	windows PickupWindows
}

func NewFeatureService(repo domain.Repository, windows PickupWindows) *FeatureService {
	return &FeatureService{repo: repo, windows: windows}
}

// Build computes FeaturesDaily for every stay date that has a DailyOTB row at
// asOf. A missing snapshot for asOf itself means the OTB stage has not run:
// that is a hard failure, never a defaulted zero.
func (s *FeatureService) Build(ctx context.Context, hotelID string, asOf time.Time) (int, error) {
	asOf = domain.Midnight(asOf)

	hotel, err := s.repo.GetHotel(ctx, hotelID)
	if err != nil {
		return 0, err
	}

	current, err := s.repo.ListOTBByAsOf(ctx, hotelID, asOf)
	if err != nil {
		return 0, err
	}
	if len(current) == 0 {
		return 0, fmt.Errorf("%w: hotel %s as of %s", domain.ErrSnapshotMissing, hotelID, domain.FormatDate(asOf))
	}

	t30, err := s.snapshotIndex(ctx, hotelID, domain.AddDays(asOf, -s.windows.T30))
	if err != nil {
		return 0, err
	}
	t7, err := s.snapshotIndex(ctx, hotelID, domain.AddDays(asOf, -s.windows.T7))
	if err != nil {
		return 0, err
	}
	t3, err := s.snapshotIndex(ctx, hotelID, domain.AddDays(asOf, -s.windows.T3))
	if err != nil {
		return 0, err
	}
	ly, err := s.snapshotIndex(ctx, hotelID, domain.AddDays(asOf, lastYearOffset))
	if err != nil {
		return 0, err
	}

	feats := make([]domain.FeaturesDaily, 0, len(current))
	for _, cur := range current {
		stayKey := domain.FormatDate(cur.StayDate)
		wd := cur.StayDate.Weekday()

		f := domain.FeaturesDaily{
			HotelID:    hotelID,
			AsOfDate:   asOf,
			StayDate:   cur.StayDate,
			DOW:        int(wd),
			IsWeekend:  wd == time.Friday || wd == time.Saturday, // hotel weekend nights
			Month:      int(cur.StayDate.Month()),
			RoomsOTB:   cur.RoomsOTB,
			RevenueOTB: cur.RevenueOTB,
			PickupT30:  pickup(cur.RoomsOTB, t30, stayKey),
			PickupT7:   pickup(cur.RoomsOTB, t7, stayKey),
			PickupT3:   pickup(cur.RoomsOTB, t3, stayKey),
		}
		// Last year means the same booking horizon: stay-364 seen at asOf-364,
		// which also lands on the same weekday.
		lyKey := domain.FormatDate(domain.AddDays(cur.StayDate, lastYearOffset))
		if prev, ok := ly[lyKey]; ok && prev.RoomsOTB > 0 {
			pace := float64(cur.RoomsOTB) / float64(prev.RoomsOTB)
			f.PaceVsLY = &pace
		}
		if supply := hotel.Capacity - cur.RoomsOTB; supply > 0 {
			f.RemainingSupply = supply
		}
		feats = append(feats, f)
	}

	if err := s.repo.ReplaceFeatures(ctx, hotelID, asOf, feats); err != nil {
		return 0, err
	}
	log.Info().Str("hotel", hotelID).Str("as_of", domain.FormatDate(asOf)).
		Int("rows", len(feats)).Msg("features built")
	return len(feats), nil
}

// snapshotIndex loads one earlier as-of slice keyed by stay date. An empty
// slice is fine here: early in a hotel's history the older snapshot simply
// does not exist and pickups fall back to zero.
func (s *FeatureService) snapshotIndex(ctx context.Context, hotelID string, asOf time.Time) (map[string]domain.DailyOTB, error) {
	rows, err := s.repo.ListOTBByAsOf(ctx, hotelID, asOf)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]domain.DailyOTB, len(rows))
	for _, r := range rows {
		idx[domain.FormatDate(r.StayDate)] = r
	}
	return idx, nil
}

func pickup(current int, prior map[string]domain.DailyOTB, stayKey string) int {
	prev, ok := prior[stayKey]
	if !ok {
		return 0
	}
	return current - prev.RoomsOTB
}
