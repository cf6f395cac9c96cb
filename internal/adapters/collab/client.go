package collab

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"revpilot/internal/adapters/observability"
	"revpilot/internal/domain"
)

// Client talks to the external forecast and pricing collaborators. Both live
// behind the same base URL and key; each call is rate limited and retried on
// 429/transient 5xx. A collaborator that has no answer for a key (404 or 204)
// surfaces as domain.ErrUnavailable, which the pipeline records as absence.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("collaborator base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- wire types ----

type forecastPayload struct {
	HotelID         string   `json:"hotel_id"`
	AsOfDate        string   `json:"as_of_date"`
	StayDate        string   `json:"stay_date"`
	DOW             int      `json:"dow"`
	IsWeekend       bool     `json:"is_weekend"`
	Month           int      `json:"month"`
	RoomsOTB        int      `json:"rooms_otb"`
	RevenueOTB      float64  `json:"revenue_otb"`
	PickupT30       int      `json:"pickup_t30"`
	PickupT7        int      `json:"pickup_t7"`
	PickupT3        int      `json:"pickup_t3"`
	PaceVsLY        *float64 `json:"pace_vs_ly"`
	RemainingSupply int      `json:"remaining_supply"`
	Capacity        int      `json:"capacity"`
}

type forecastReply struct {
	RemainingDemand float64 `json:"remaining_demand"`
	ModelVersion    string  `json:"model_version"`
}

type pricePayload struct {
	HotelID         string  `json:"hotel_id"`
	AsOfDate        string  `json:"as_of_date"`
	StayDate        string  `json:"stay_date"`
	RemainingDemand float64 `json:"remaining_demand"`
	ModelVersion    string  `json:"model_version"`
	CurrentPrice    float64 `json:"current_price"`
	Capacity        int     `json:"capacity"`
	Currency        string  `json:"currency"`
}

type priceReply struct {
	RecommendedPrice float64 `json:"recommended_price"`
	ExpectedRevenue  float64 `json:"expected_revenue"`
	UpliftPct        float64 `json:"uplift_pct"`
	Explanation      string  `json:"explanation"`
}

// ---- public API ----

func (c *Client) Forecast(ctx context.Context, req domain.ForecastRequest) (domain.ForecastResult, error) {
	f := req.Features
	payload := forecastPayload{
		HotelID:         f.HotelID,
		AsOfDate:        domain.FormatDate(f.AsOfDate),
		StayDate:        domain.FormatDate(f.StayDate),
		DOW:             f.DOW,
		IsWeekend:       f.IsWeekend,
		Month:           f.Month,
		RoomsOTB:        f.RoomsOTB,
		RevenueOTB:      f.RevenueOTB,
		PickupT30:       f.PickupT30,
		PickupT7:        f.PickupT7,
		PickupT3:        f.PickupT3,
		PaceVsLY:        f.PaceVsLY,
		RemainingSupply: f.RemainingSupply,
		Capacity:        req.Hotel.Capacity,
	}
	var out forecastReply
	if err := c.post(ctx, "forecast", payload, &out); err != nil {
		return domain.ForecastResult{}, err
	}
	if out.ModelVersion == "" {
		return domain.ForecastResult{}, fmt.Errorf("forecast reply missing model_version")
	}
	return domain.ForecastResult{RemainingDemand: out.RemainingDemand, ModelVersion: out.ModelVersion}, nil
}

func (c *Client) Price(ctx context.Context, req domain.PriceRequest) (domain.PriceResult, error) {
	payload := pricePayload{
		HotelID:         req.Forecast.HotelID,
		AsOfDate:        domain.FormatDate(req.Forecast.AsOfDate),
		StayDate:        domain.FormatDate(req.Forecast.StayDate),
		RemainingDemand: req.Forecast.RemainingDemand,
		ModelVersion:    req.Forecast.ModelVersion,
		CurrentPrice:    req.CurrentPrice,
		Capacity:        req.Hotel.Capacity,
		Currency:        req.Hotel.Currency,
	}
	var out priceReply
	if err := c.post(ctx, "price", payload, &out); err != nil {
		return domain.PriceResult{}, err
	}
	return domain.PriceResult{
		RecommendedPrice: out.RecommendedPrice,
		ExpectedRevenue:  out.ExpectedRevenue,
		UpliftPct:        out.UpliftPct,
		Explanation:      out.Explanation,
	}, nil
}

// ---- internals ----

// post performs a POST with client-side rate limiting, retries, and JSON
// decode into out. Retries on 429 and transient 5xx, honoring Retry-After.
// Exhausted retries and explicit no-result statuses map to ErrUnavailable.
func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := c.base + "/" + endpoint

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "revpilot/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.ObserveExternal("collab", endpoint, 0, time.Since(start))
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, lastErr)
		}
		observability.ObserveExternal("collab", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent, http.StatusNotFound:
			// collaborator has no answer for this key
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return domain.ErrUnavailable

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, lastErr)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrUnavailable, lastErr)
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms, 800ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}

var _ domain.ForecastClient = (*Client)(nil)
var _ domain.PricingClient = (*Client)(nil)
