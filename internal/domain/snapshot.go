package domain

import "time"

// The four derived daily tables share the snapshot key
// (HotelID, AsOfDate, StayDate). Recomputation for a key always overwrites.

// DailyOTB is the reconstructed on-the-books position for one stay date as
// known on one as-of date. Zero rooms is a real value, not "missing".
type DailyOTB struct {
	HotelID    string
	AsOfDate   time.Time
	StayDate   time.Time
	RoomsOTB   int
	RevenueOTB float64
}

// FeaturesDaily holds the trend signals derived from OTB snapshot history.
// PaceVsLY is nil when last year's snapshot is absent or has zero rooms;
// consumers must not read nil as zero.
type FeaturesDaily struct {
	HotelID         string
	AsOfDate        time.Time
	StayDate        time.Time
	DOW             int // 0=Sunday, matching time.Weekday
	IsWeekend       bool
	Month           int
	RoomsOTB        int
	RevenueOTB      float64
	PickupT30       int
	PickupT7        int
	PickupT3        int
	PaceVsLY        *float64
	RemainingSupply int
}

type DemandForecast struct {
	HotelID         string
	AsOfDate        time.Time
	StayDate        time.Time
	RemainingDemand float64
	ModelVersion    string
}

type PriceRecommendation struct {
	HotelID          string
	AsOfDate         time.Time
	StayDate         time.Time
	CurrentPrice     float64
	RecommendedPrice float64
	ExpectedRevenue  float64
	UpliftPct        float64
	Explanation      string
}
