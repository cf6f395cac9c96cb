package app

import (
	"context"
	"fmt"
	"time"

	"revpilot/internal/domain"
)

// QueryService serves the read side: recommendation lists, OTB history for a
// stay date, and import job lookups. Heavy snapshot reads go through the
// cache; job lookups hit storage directly because their state changes
// mid-import.
type QueryService struct {
	repo     domain.Repository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.Repository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func otbHistCacheKey(hotelID string, stay time.Time) string {
	return fmt.Sprintf("otbhist:%s:%s", hotelID, domain.FormatDate(stay))
}

func (s *QueryService) Recommendations(ctx context.Context, hotelID string, asOf time.Time) ([]domain.PriceRecommendation, error) {
	asOf = domain.Midnight(asOf)
	key := recsCacheKey(hotelID, asOf)

	var out []domain.PriceRecommendation
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	recs, err := s.repo.ListRecommendations(ctx, hotelID, asOf)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, recs, int(s.cacheTTL.Seconds()))
	return recs, nil
}

// OTBHistory returns every snapshot ever taken of one stay date, oldest as-of
// first. This is the pickup curve a stay date traces as bookings arrive.
func (s *QueryService) OTBHistory(ctx context.Context, hotelID string, stay time.Time) ([]domain.DailyOTB, error) {
	stay = domain.Midnight(stay)
	key := otbHistCacheKey(hotelID, stay)

	var out []domain.DailyOTB
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	rows, err := s.repo.ListOTBByStay(ctx, hotelID, stay)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, rows, int(s.cacheTTL.Seconds()))
	return rows, nil
}

func (s *QueryService) JobStatus(ctx context.Context, jobID string) (domain.ImportJob, error) {
	return s.repo.GetJob(ctx, jobID)
}

func (s *QueryService) ImportHistory(ctx context.Context, hotelID string, limit int) ([]domain.ImportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListJobs(ctx, hotelID, limit)
}
