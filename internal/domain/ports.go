package domain

import (
	"context"
	"time"
)

// AppendResult reports per-row outcomes of one batch append. Duplicate rows
// (same hotel+reservation_ref within the job) are skipped without aborting
// the remainder.
type AppendResult struct {
	Accepted   int
	Duplicates int
}

type Repository interface {
	// Hotels & users
	UpsertHotel(ctx context.Context, h Hotel) error
	GetHotel(ctx context.Context, id string) (Hotel, error)
	ListHotels(ctx context.Context) ([]Hotel, error)
	CreateUser(ctx context.Context, u User) error
	GetUserByEmail(ctx context.Context, email string) (User, error)

	// Import jobs
	CreateJob(ctx context.Context, j ImportJob) error
	UpdateJob(ctx context.Context, j ImportJob) error
	GetJob(ctx context.Context, id string) (ImportJob, error)
	FindJobByFingerprint(ctx context.Context, hotelID, fileHash string) (ImportJob, error)
	HotelHasProcessingJob(ctx context.Context, hotelID string) (bool, error)
	ListJobs(ctx context.Context, hotelID string, limit int) ([]ImportJob, error)

	// Reservation store: append-only, read by booking-date cutoff.
	AppendEvents(ctx context.Context, events []ReservationEvent) (AppendResult, error)
	ListEventsAsOf(ctx context.Context, hotelID string, asOf time.Time) ([]ReservationEvent, error)

	// Snapshots: Replace* swaps the whole (hotel, as_of) slice in one
	// transaction so readers never see a partial recomputation.
	ReplaceDailyOTB(ctx context.Context, hotelID string, asOf time.Time, rows []DailyOTB) error
	GetDailyOTB(ctx context.Context, hotelID string, asOf, stay time.Time) (DailyOTB, error)
	ListOTBByAsOf(ctx context.Context, hotelID string, asOf time.Time) ([]DailyOTB, error)
	ListOTBByStay(ctx context.Context, hotelID string, stay time.Time) ([]DailyOTB, error)
	ReplaceFeatures(ctx context.Context, hotelID string, asOf time.Time, rows []FeaturesDaily) error
	ListFeatures(ctx context.Context, hotelID string, asOf time.Time) ([]FeaturesDaily, error)
	UpsertForecast(ctx context.Context, f DemandForecast) error
	ListForecasts(ctx context.Context, hotelID string, asOf time.Time) ([]DemandForecast, error)
	UpsertRecommendation(ctx context.Context, r PriceRecommendation) error
	GetRecommendation(ctx context.Context, hotelID string, asOf, stay time.Time) (PriceRecommendation, error)
	ListRecommendations(ctx context.Context, hotelID string, asOf time.Time) ([]PriceRecommendation, error)

	// Decision ledger: insert-only.
	AppendDecision(ctx context.Context, d PricingDecision) error
	ListDecisions(ctx context.Context, hotelID string, limit int) ([]PricingDecision, error)
}

// ForecastClient calls the external demand-forecast collaborator. ErrUnavailable
// means "no forecast for this key", never a fabricated zero.
type ForecastClient interface {
	Forecast(ctx context.Context, req ForecastRequest) (ForecastResult, error)
}

type PricingClient interface {
	Price(ctx context.Context, req PriceRequest) (PriceResult, error)
}

type ForecastRequest struct {
	Hotel    Hotel
	Features FeaturesDaily
}

type ForecastResult struct {
	RemainingDemand float64
	ModelVersion    string
}

type PriceRequest struct {
	Hotel        Hotel
	Forecast     DemandForecast
	CurrentPrice float64
}

type PriceResult struct {
	RecommendedPrice float64
	ExpectedRevenue  float64
	UpliftPct        float64
	Explanation      string
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, keys ...string) error
}
