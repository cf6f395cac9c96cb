package app

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"revpilot/internal/domain"
)

// memRepo is an in-memory domain.Repository with the same contracts the MySQL
// adapter honors: event ordering, fingerprint lookups, slice replaces.
type memRepo struct {
	mu      sync.Mutex
	hotels  map[string]domain.Hotel
	users   map[string]domain.User
	jobs    map[string]domain.ImportJob
	events  []domain.ReservationEvent
	nextID  int64
	otb     map[string][]domain.DailyOTB       // hotel|asOf
	feats   map[string][]domain.FeaturesDaily  // hotel|asOf
	fcasts  map[string]domain.DemandForecast   // hotel|asOf|stay
	recs    map[string]domain.PriceRecommendation
	decided []domain.PricingDecision
}

func newMemRepo() *memRepo {
	return &memRepo{
		hotels: map[string]domain.Hotel{},
		users:  map[string]domain.User{},
		jobs:   map[string]domain.ImportJob{},
		otb:    map[string][]domain.DailyOTB{},
		feats:  map[string][]domain.FeaturesDaily{},
		fcasts: map[string]domain.DemandForecast{},
		recs:   map[string]domain.PriceRecommendation{},
	}
}

func sliceKey(hotelID string, asOf time.Time) string {
	return hotelID + "|" + domain.FormatDate(asOf)
}

func tripleKey(hotelID string, asOf, stay time.Time) string {
	return hotelID + "|" + domain.FormatDate(asOf) + "|" + domain.FormatDate(stay)
}

func (r *memRepo) UpsertHotel(_ context.Context, h domain.Hotel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hotels[h.ID] = h
	return nil
}

func (r *memRepo) GetHotel(_ context.Context, id string) (domain.Hotel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hotels[id]
	if !ok {
		return domain.Hotel{}, domain.ErrNotFound
	}
	return h, nil
}

func (r *memRepo) ListHotels(_ context.Context) ([]domain.Hotel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Hotel, 0, len(r.hotels))
	for _, h := range r.hotels {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) CreateUser(_ context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Email] = u
	return nil
}

func (r *memRepo) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (r *memRepo) CreateJob(_ context.Context, j domain.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
	return nil
}

func (r *memRepo) UpdateJob(_ context.Context, j domain.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; !ok {
		return domain.ErrNotFound
	}
	r.jobs[j.ID] = j
	return nil
}

func (r *memRepo) GetJob(_ context.Context, id string) (domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ImportJob{}, domain.ErrNotFound
	}
	return j, nil
}

func (r *memRepo) FindJobByFingerprint(_ context.Context, hotelID, fileHash string) (domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.HotelID == hotelID && j.FileHash == fileHash {
			return j, nil
		}
	}
	return domain.ImportJob{}, domain.ErrNotFound
}

func (r *memRepo) HotelHasProcessingJob(_ context.Context, hotelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.HotelID == hotelID && j.Status == domain.JobProcessing {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListJobs(_ context.Context, hotelID string, limit int) ([]domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ImportJob
	for _, j := range r.jobs {
		if j.HotelID == hotelID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) AppendEvents(_ context.Context, events []domain.ReservationEvent) (domain.AppendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	for _, e := range r.events {
		seen[e.HotelID+"|"+e.ReservationRef+"|"+e.JobID] = true
	}
	var res domain.AppendResult
	for _, e := range events {
		k := e.HotelID + "|" + e.ReservationRef + "|" + e.JobID
		if seen[k] {
			res.Duplicates++
			continue
		}
		seen[k] = true
		r.nextID++
		e.ID = r.nextID
		r.events = append(r.events, e)
		res.Accepted++
	}
	return res, nil
}

func (r *memRepo) ListEventsAsOf(_ context.Context, hotelID string, asOf time.Time) ([]domain.ReservationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ReservationEvent
	for _, e := range r.events {
		if e.HotelID == hotelID && e.KnownAt(asOf) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookingDate.Equal(out[j].BookingDate) {
			return out[i].BookingDate.Before(out[j].BookingDate)
		}
		if !out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].LoadedAt.Before(out[j].LoadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memRepo) ReplaceDailyOTB(_ context.Context, hotelID string, asOf time.Time, rows []domain.DailyOTB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.otb[sliceKey(hotelID, asOf)] = append([]domain.DailyOTB(nil), rows...)
	return nil
}

func (r *memRepo) GetDailyOTB(_ context.Context, hotelID string, asOf, stay time.Time) (domain.DailyOTB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.otb[sliceKey(hotelID, asOf)] {
		if row.StayDate.Equal(domain.Midnight(stay)) {
			return row, nil
		}
	}
	return domain.DailyOTB{}, domain.ErrNotFound
}

func (r *memRepo) ListOTBByAsOf(_ context.Context, hotelID string, asOf time.Time) ([]domain.DailyOTB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DailyOTB(nil), r.otb[sliceKey(hotelID, asOf)]...), nil
}

func (r *memRepo) ListOTBByStay(_ context.Context, hotelID string, stay time.Time) ([]domain.DailyOTB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stay = domain.Midnight(stay)
	var out []domain.DailyOTB
	for _, rows := range r.otb {
		for _, row := range rows {
			if row.HotelID == hotelID && row.StayDate.Equal(stay) {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AsOfDate.Before(out[j].AsOfDate) })
	return out, nil
}

func (r *memRepo) ReplaceFeatures(_ context.Context, hotelID string, asOf time.Time, rows []domain.FeaturesDaily) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feats[sliceKey(hotelID, asOf)] = append([]domain.FeaturesDaily(nil), rows...)
	return nil
}

func (r *memRepo) ListFeatures(_ context.Context, hotelID string, asOf time.Time) ([]domain.FeaturesDaily, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.FeaturesDaily(nil), r.feats[sliceKey(hotelID, asOf)]...), nil
}

func (r *memRepo) UpsertForecast(_ context.Context, f domain.DemandForecast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fcasts[tripleKey(f.HotelID, f.AsOfDate, f.StayDate)] = f
	return nil
}

func (r *memRepo) ListForecasts(_ context.Context, hotelID string, asOf time.Time) ([]domain.DemandForecast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DemandForecast
	for _, f := range r.fcasts {
		if f.HotelID == hotelID && f.AsOfDate.Equal(domain.Midnight(asOf)) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StayDate.Before(out[j].StayDate) })
	return out, nil
}

func (r *memRepo) UpsertRecommendation(_ context.Context, rec domain.PriceRecommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[tripleKey(rec.HotelID, rec.AsOfDate, rec.StayDate)] = rec
	return nil
}

func (r *memRepo) GetRecommendation(_ context.Context, hotelID string, asOf, stay time.Time) (domain.PriceRecommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[tripleKey(hotelID, asOf, stay)]
	if !ok {
		return domain.PriceRecommendation{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *memRepo) ListRecommendations(_ context.Context, hotelID string, asOf time.Time) ([]domain.PriceRecommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PriceRecommendation
	for _, rec := range r.recs {
		if rec.HotelID == hotelID && rec.AsOfDate.Equal(domain.Midnight(asOf)) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StayDate.Before(out[j].StayDate) })
	return out, nil
}

func (r *memRepo) AppendDecision(_ context.Context, d domain.PricingDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decided = append(r.decided, d)
	return nil
}

func (r *memRepo) ListDecisions(_ context.Context, hotelID string, limit int) ([]domain.PricingDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PricingDecision
	for _, d := range r.decided {
		if d.HotelID == hotelID {
			out = append(out, d)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

var _ domain.Repository = (*memRepo)(nil)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// memCache round-trips values through JSON like the redis adapter does.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) Set(_ context.Context, key string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

type stubForecast struct {
	fn func(domain.ForecastRequest) (domain.ForecastResult, error)
}

func (s stubForecast) Forecast(_ context.Context, req domain.ForecastRequest) (domain.ForecastResult, error) {
	return s.fn(req)
}

type stubPricing struct {
	fn func(domain.PriceRequest) (domain.PriceResult, error)
}

func (s stubPricing) Price(_ context.Context, req domain.PriceRequest) (domain.PriceResult, error) {
	return s.fn(req)
}

func seedHotel(t interface{ Fatalf(string, ...any) }, repo *memRepo, id string, capacity int) domain.Hotel {
	h := domain.Hotel{ID: id, Name: "Test Hotel", Timezone: "UTC", Capacity: capacity, Currency: "EUR", BasePrice: 120}
	if err := repo.UpsertHotel(context.Background(), h); err != nil {
		t.Fatalf("seed hotel: %v", err)
	}
	return h
}
