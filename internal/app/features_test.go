package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"revpilot/internal/domain"
)

func seedOTBSlice(t *testing.T, repo *memRepo, hotelID string, asOf time.Time, rooms map[string]int) {
	t.Helper()
	var rows []domain.DailyOTB
	for stayStr, n := range rooms {
		stay, err := domain.ParseDate(stayStr)
		if err != nil {
			t.Fatalf("bad stay date %q: %v", stayStr, err)
		}
		rows = append(rows, domain.DailyOTB{
			HotelID: hotelID, AsOfDate: asOf, StayDate: stay,
			RoomsOTB: n, RevenueOTB: float64(n) * 100,
		})
	}
	if err := repo.ReplaceDailyOTB(context.Background(), hotelID, asOf, rows); err != nil {
		t.Fatalf("seed otb: %v", err)
	}
}

func findFeature(t *testing.T, feats []domain.FeaturesDaily, stay time.Time) domain.FeaturesDaily {
	t.Helper()
	for _, f := range feats {
		if f.StayDate.Equal(stay) {
			return f
		}
	}
	t.Fatalf("no feature row for stay %s", domain.FormatDate(stay))
	return domain.FeaturesDaily{}
}

func TestBuild_PickupWindows(t *testing.T) {
	repo := newMemRepo()
	seedHotel(t, repo, "h1", 100)

	asOf := domain.Date(2024, 6, 1)
	stay := "2024-07-01"
	seedOTBSlice(t, repo, "h1", asOf, map[string]int{stay: 40})
	seedOTBSlice(t, repo, "h1", domain.AddDays(asOf, -30), map[string]int{stay: 10})
	seedOTBSlice(t, repo, "h1", domain.AddDays(asOf, -7), map[string]int{stay: 25})
	// no snapshot at asOf-3: pickup_t3 falls back to zero

	svc := NewFeatureService(repo, PickupWindows{T30: 30, T7: 7, T3: 3})
	if _, err := svc.Build(context.Background(), "h1", asOf); err != nil {
		t.Fatalf("build: %v", err)
	}

	feats, _ := repo.ListFeatures(context.Background(), "h1", asOf)
	f := findFeature(t, feats, domain.Date(2024, 7, 1))
	if f.PickupT30 != 30 {
		t.Errorf("pickup_t30 = %d, want 30", f.PickupT30)
	}
	if f.PickupT7 != 15 {
		t.Errorf("pickup_t7 = %d, want 15", f.PickupT7)
	}
	if f.PickupT3 != 0 {
		t.Errorf("pickup_t3 = %d, want 0 (missing snapshot)", f.PickupT3)
	}
}

func TestBuild_PaceVsLastYear(t *testing.T) {
	repo := newMemRepo()
	seedHotel(t, repo, "h1", 100)

	asOf := domain.Date(2024, 6, 1)
	stay := domain.Date(2024, 7, 1)
	lyAsOf := domain.AddDays(asOf, -364)
	lyStay := domain.AddDays(stay, -364)
	if stay.Weekday() != lyStay.Weekday() {
		t.Fatalf("364-day offset must preserve weekday")
	}

	seedOTBSlice(t, repo, "h1", asOf, map[string]int{
		domain.FormatDate(stay):             30,
		domain.FormatDate(stay.AddDate(0, 0, 1)): 12,
	})
	seedOTBSlice(t, repo, "h1", lyAsOf, map[string]int{
		domain.FormatDate(lyStay): 20,
		// second stay date has a zero-room LY row: pace must stay nil
		domain.FormatDate(lyStay.AddDate(0, 0, 1)): 0,
	})

	svc := NewFeatureService(repo, PickupWindows{T30: 30, T7: 7, T3: 3})
	if _, err := svc.Build(context.Background(), "h1", asOf); err != nil {
		t.Fatalf("build: %v", err)
	}
	feats, _ := repo.ListFeatures(context.Background(), "h1", asOf)

	f := findFeature(t, feats, stay)
	if f.PaceVsLY == nil {
		t.Fatal("pace_vs_ly = nil, want 1.5")
	}
	if *f.PaceVsLY != 1.5 {
		t.Errorf("pace_vs_ly = %v, want 1.5", *f.PaceVsLY)
	}

	g := findFeature(t, feats, stay.AddDate(0, 0, 1))
	if g.PaceVsLY != nil {
		t.Errorf("pace_vs_ly = %v, want nil when last year had zero rooms", *g.PaceVsLY)
	}
}

func TestBuild_CalendarAndSupply(t *testing.T) {
	repo := newMemRepo()
	seedHotel(t, repo, "h1", 50)

	asOf := domain.Date(2024, 6, 1)
	friday := domain.Date(2024, 6, 7)
	sunday := domain.Date(2024, 6, 9)
	seedOTBSlice(t, repo, "h1", asOf, map[string]int{
		domain.FormatDate(friday): 60, // overbooked
		domain.FormatDate(sunday): 10,
	})

	svc := NewFeatureService(repo, PickupWindows{T30: 30, T7: 7, T3: 3})
	if _, err := svc.Build(context.Background(), "h1", asOf); err != nil {
		t.Fatalf("build: %v", err)
	}
	feats, _ := repo.ListFeatures(context.Background(), "h1", asOf)

	f := findFeature(t, feats, friday)
	if !f.IsWeekend || f.DOW != int(time.Friday) || f.Month != 6 {
		t.Errorf("friday calendar attrs wrong: %+v", f)
	}
	if f.RemainingSupply != 0 {
		t.Errorf("remaining_supply = %d, want 0 (clamped)", f.RemainingSupply)
	}

	g := findFeature(t, feats, sunday)
	if g.IsWeekend {
		t.Error("sunday night should not be a hotel weekend night")
	}
	if g.RemainingSupply != 40 {
		t.Errorf("remaining_supply = %d, want 40", g.RemainingSupply)
	}
}

func TestBuild_MissingSnapshotFailsLoudly(t *testing.T) {
	repo := newMemRepo()
	seedHotel(t, repo, "h1", 100)

	svc := NewFeatureService(repo, PickupWindows{T30: 30, T7: 7, T3: 3})
	_, err := svc.Build(context.Background(), "h1", domain.Date(2024, 6, 1))
	if !errors.Is(err, domain.ErrSnapshotMissing) {
		t.Fatalf("err = %v, want ErrSnapshotMissing", err)
	}
}
